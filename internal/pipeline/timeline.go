package pipeline

import (
	"time"

	"github.com/ppiankov/feedlens/internal/model"
)

// Stage indexes in visiting order
const (
	StageIngestion = iota
	StageRepresentation
	StageRetrieval
	StageContextAssembly
	StageSynthesis

	StageCount
)

var timeline = [StageCount]model.StageDescriptor{
	{
		Index:        StageIngestion,
		Name:         "ingestion",
		Title:        "Dataset Ingestion",
		Detail:       "Loading and preprocessing customer feedback data",
		NominalDelay: 800 * time.Millisecond,
	},
	{
		Index:        StageRepresentation,
		Name:         "representation",
		Title:        "Embedding Generation",
		Detail:       "Converting query and reviews into a comparable form",
		NominalDelay: 600 * time.Millisecond,
	},
	{
		Index:        StageRetrieval,
		Name:         "retrieval",
		Title:        "Vector Search",
		Detail:       "Finding the most relevant reviews by meaning",
		NominalDelay: 1000 * time.Millisecond,
	},
	{
		Index:        StageContextAssembly,
		Name:         "context_assembly",
		Title:        "Context Injection",
		Detail:       "Preparing retrieved evidence for analysis",
		NominalDelay: 500 * time.Millisecond,
	},
	{
		Index:        StageSynthesis,
		Name:         "synthesis",
		Title:        "LLM Summarization",
		Detail:       "Generating structured insights from feedback",
		NominalDelay: 1200 * time.Millisecond,
	},
}

// Stages returns the fixed five-stage timeline. The slice is a copy.
func Stages() []model.StageDescriptor {
	out := make([]model.StageDescriptor, StageCount)
	copy(out, timeline[:])
	return out
}

// StageAt returns the descriptor for index i
func StageAt(i int) (model.StageDescriptor, bool) {
	if i < 0 || i >= StageCount {
		return model.StageDescriptor{}, false
	}
	return timeline[i], true
}

// TotalNominalDelay is the sum of all stage pacing hints
func TotalNominalDelay() time.Duration {
	var total time.Duration
	for _, s := range timeline {
		total += s.NominalDelay
	}
	return total
}
