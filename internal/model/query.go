package model

import (
	"errors"
	"fmt"
	"strings"
)

// Result-count bounds accepted by the orchestrator
const (
	MinTopK     = 3
	MaxTopK     = 10
	DefaultTopK = 5
)

// ErrEmptyQuery is matched by errors.Is for blank submissions
var ErrEmptyQuery = errors.New("query text is empty")

// Query is one immutable submission
type Query struct {
	Text string `json:"text"`
	TopK int    `json:"top_k"`
}

// ValidationError reports a rejected submission. No run is started for it.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewQuery trims the text, clamps topK into [MinTopK, MaxTopK] and rejects blank text
func NewQuery(text string, topK int) (Query, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Query{}, &ValidationError{Field: "text", Reason: "must not be empty", Err: ErrEmptyQuery}
	}
	return Query{Text: trimmed, TopK: ClampTopK(topK)}, nil
}

// ClampTopK forces k into the accepted range
func ClampTopK(k int) int {
	if k < MinTopK {
		return MinTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}
