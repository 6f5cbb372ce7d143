package model

import (
	"fmt"
	"strings"
)

// EvidenceItem is a single retrieved feedback record with its relevance to the query
type EvidenceItem struct {
	ID              string   `json:"id" yaml:"id"`                                                 // Unique within a result set
	Text            string   `json:"text" yaml:"text"`                                             // Review body
	Rating          int      `json:"rating" yaml:"rating"`                                         // Star rating 1..5
	SupportCount    *int     `json:"support_count,omitempty" yaml:"support_count,omitempty"`       // Thumbs-up votes
	Date            string   `json:"date,omitempty" yaml:"date,omitempty"`                         // Review date (YYYY-MM-DD)
	RelevanceScore  float64  `json:"relevance_score" yaml:"relevance_score"`                       // Similarity in [0,1]
	EmphasizedSpans []string `json:"emphasized_spans,omitempty" yaml:"emphasized_spans,omitempty"` // Substrings of Text to highlight
}

// Validate checks the per-item invariants
func (e EvidenceItem) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("evidence item has empty id")
	}
	if e.Rating < 1 || e.Rating > 5 {
		return fmt.Errorf("evidence %s: rating %d outside 1..5", e.ID, e.Rating)
	}
	if e.SupportCount != nil && *e.SupportCount < 0 {
		return fmt.Errorf("evidence %s: negative support count", e.ID)
	}
	if e.RelevanceScore < 0 || e.RelevanceScore > 1 {
		return fmt.Errorf("evidence %s: relevance %.3f outside [0,1]", e.ID, e.RelevanceScore)
	}
	for _, span := range e.EmphasizedSpans {
		if !strings.Contains(e.Text, span) {
			return fmt.Errorf("evidence %s: emphasized span %q not in text", e.ID, span)
		}
	}
	return nil
}

// Clone returns a deep copy so callers can adjust scores without touching shared pools
func (e EvidenceItem) Clone() EvidenceItem {
	out := e
	if e.SupportCount != nil {
		n := *e.SupportCount
		out.SupportCount = &n
	}
	if e.EmphasizedSpans != nil {
		out.EmphasizedSpans = append([]string(nil), e.EmphasizedSpans...)
	}
	return out
}

// IntPtr is a small helper for optional counts
func IntPtr(n int) *int {
	return &n
}
