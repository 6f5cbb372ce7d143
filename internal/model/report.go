package model

import (
	"fmt"
	"sort"
)

// InsightReport is the structured summary synthesized from retrieved evidence
type InsightReport struct {
	ExecutiveSummary string   `json:"executive_summary" yaml:"executive_summary"`
	KeyInsights      []string `json:"key_insights" yaml:"key_insights"`
	PainPoints       []string `json:"pain_points" yaml:"pain_points"`
	Positives        []string `json:"positives" yaml:"positives"`
	Recommendation   string   `json:"recommendation" yaml:"recommendation"`
}

// Clone returns a deep copy
func (r InsightReport) Clone() InsightReport {
	out := r
	out.KeyInsights = append([]string(nil), r.KeyInsights...)
	out.PainPoints = append([]string(nil), r.PainPoints...)
	out.Positives = append([]string(nil), r.Positives...)
	return out
}

// AnalysisResult is the output of one completed run. It is replaced in full by the next run.
type AnalysisResult struct {
	Evidence []EvidenceItem `json:"evidence"`
	Insight  InsightReport  `json:"insight"`
}

// SortEvidence orders evidence by descending relevance, keeping input order for ties
func SortEvidence(items []EvidenceItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RelevanceScore > items[j].RelevanceScore
	})
}

// AverageRelevance is the mean relevance score, 0 when there is no evidence
func (r *AnalysisResult) AverageRelevance() float64 {
	if r == nil || len(r.Evidence) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range r.Evidence {
		sum += e.RelevanceScore
	}
	return sum / float64(len(r.Evidence))
}

// Validate checks the shape contract every provider must honour
func (r *AnalysisResult) Validate(topK int) error {
	if r == nil {
		return fmt.Errorf("nil result")
	}
	if len(r.Evidence) > topK {
		return fmt.Errorf("result has %d evidence items, limit is %d", len(r.Evidence), topK)
	}
	seen := make(map[string]bool, len(r.Evidence))
	for i, e := range r.Evidence {
		if err := e.Validate(); err != nil {
			return err
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate evidence id %s", e.ID)
		}
		seen[e.ID] = true
		if i > 0 && r.Evidence[i-1].RelevanceScore < e.RelevanceScore {
			return fmt.Errorf("evidence not sorted by relevance at index %d", i)
		}
	}
	return nil
}

// Clone returns a deep copy
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := &AnalysisResult{
		Evidence: make([]EvidenceItem, len(r.Evidence)),
		Insight:  r.Insight.Clone(),
	}
	for i, e := range r.Evidence {
		out.Evidence[i] = e.Clone()
	}
	return out
}
