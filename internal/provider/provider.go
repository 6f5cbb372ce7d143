package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/feedlens/internal/model"
)

// ResultProvider turns a query into ranked evidence and an insight report.
//
// Implementations must return at most q.TopK evidence items sorted by
// descending relevance, each relevance in [0,1].
type ResultProvider interface {
	// Name returns the provider name
	Name() string

	// Resolve produces the complete result for a query
	Resolve(ctx context.Context, q model.Query) (*model.AnalysisResult, error)
}

// Incremental providers expose retrieval and synthesis separately so the
// orchestrator can align them with the Retrieval and Synthesis stages.
type Incremental interface {
	ResultProvider

	// Retrieve selects up to q.TopK evidence items
	Retrieve(ctx context.Context, q model.Query) ([]model.EvidenceItem, error)

	// Synthesize produces the insight report from retrieved evidence
	Synthesize(ctx context.Context, q model.Query, evidence []model.EvidenceItem) (*model.InsightReport, error)
}

// ErrorKind classifies provider failures
type ErrorKind string

const (
	KindNoEvidenceFound ErrorKind = "no_evidence_found"
	KindUpstreamFailure ErrorKind = "upstream_failure"
	KindTimeout         ErrorKind = "timeout"
)

// Error is returned by providers when a query cannot be answered
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Provider != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Provider)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NoEvidence builds a KindNoEvidenceFound error
func NoEvidence(provider string, format string, args ...any) *Error {
	return &Error{Kind: KindNoEvidenceFound, Provider: provider, Err: fmt.Errorf(format, args...)}
}

// Upstream wraps err as a KindUpstreamFailure error
func Upstream(provider string, err error) *Error {
	return &Error{Kind: KindUpstreamFailure, Provider: provider, Err: err}
}

// Timeout wraps err as a KindTimeout error
func Timeout(provider string, err error) *Error {
	return &Error{Kind: KindTimeout, Provider: provider, Err: err}
}

// KindOf extracts the error kind, or "" when err is not a provider error
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// Assemble builds a result from incremental outputs, enforcing the shape contract
func Assemble(q model.Query, evidence []model.EvidenceItem, insight *model.InsightReport) (*model.AnalysisResult, error) {
	if insight == nil {
		return nil, fmt.Errorf("missing insight report")
	}
	items := make([]model.EvidenceItem, len(evidence))
	for i, e := range evidence {
		items[i] = e.Clone()
	}
	model.SortEvidence(items)
	if len(items) > q.TopK {
		items = items[:q.TopK]
	}
	return &model.AnalysisResult{Evidence: items, Insight: insight.Clone()}, nil
}
