package pipeline

import (
	"fmt"
	"time"

	"github.com/ppiankov/feedlens/internal/model"
)

// Phase is the coarse lifecycle position of the orchestrator
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStaging
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStaging:
		return "staging"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*p = PhaseIdle
	case "staging":
		*p = PhaseStaging
	case "succeeded":
		*p = PhaseSucceeded
	case "failed":
		*p = PhaseFailed
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// Terminal reports whether the phase ends a run
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// RunState is an immutable snapshot of the orchestrator.
//
// Result is set only in PhaseSucceeded, Error only in PhaseFailed, and
// StageIndex is -1 outside PhaseStaging. Snapshots share the Result pointer;
// observers must treat it as read-only.
type RunState struct {
	Phase      Phase                 `json:"phase"`
	StageIndex int                   `json:"stage_index"`
	Result     *model.AnalysisResult `json:"result,omitempty"`
	Error      string                `json:"error,omitempty"`
	Query      *model.Query          `json:"query,omitempty"`
	Generation uint64                `json:"generation"`
	StartedAt  time.Time             `json:"started_at,omitzero"`
	UpdatedAt  time.Time             `json:"updated_at,omitzero"`
}

func idleState(gen uint64, now time.Time) RunState {
	return RunState{Phase: PhaseIdle, StageIndex: -1, Generation: gen, UpdatedAt: now}
}

// HasResults is true once a run has succeeded
func (s RunState) HasResults() bool {
	return s.Phase == PhaseSucceeded && s.Result != nil
}

// AverageRelevance is the mean relevance of the current result, 0 without one
func (s RunState) AverageRelevance() float64 {
	return s.Result.AverageRelevance()
}

// Elapsed is the time since the run started, frozen at the terminal transition
func (s RunState) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return s.UpdatedAt.Sub(s.StartedAt)
}

// Stage returns the descriptor of the active stage while staging
func (s RunState) Stage() (model.StageDescriptor, bool) {
	if s.Phase != PhaseStaging {
		return model.StageDescriptor{}, false
	}
	return StageAt(s.StageIndex)
}

func (s RunState) String() string {
	switch s.Phase {
	case PhaseStaging:
		return fmt.Sprintf("staging(%d)", s.StageIndex)
	case PhaseFailed:
		return fmt.Sprintf("failed(%s)", s.Error)
	default:
		return s.Phase.String()
	}
}
