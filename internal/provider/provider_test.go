package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ppiankov/feedlens/internal/model"
)

func TestError_Format(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{NoEvidence("generative", "no review matches %q", "x"), `no_evidence_found (generative): no review matches "x"`},
		{Upstream("generative", errors.New("503")), "upstream_failure (generative): 503"},
		{Timeout("", context.DeadlineExceeded), "timeout: context deadline exceeded"},
		{&Error{Kind: KindUpstreamFailure}, "upstream_failure"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Timeout("mock", context.DeadlineExceeded))
	if KindOf(wrapped) != KindTimeout {
		t.Errorf("KindOf(wrapped) = %q", KindOf(wrapped))
	}
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Error("provider error should unwrap to its cause")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors have no kind")
	}
	if KindOf(nil) != "" {
		t.Error("nil has no kind")
	}
}

func TestAssemble(t *testing.T) {
	q := model.Query{Text: "q", TopK: 3}
	evidence := []model.EvidenceItem{
		{ID: "a", Text: "x", Rating: 1, RelevanceScore: 0.2},
		{ID: "b", Text: "x", Rating: 1, RelevanceScore: 0.9},
		{ID: "c", Text: "x", Rating: 1, RelevanceScore: 0.5},
		{ID: "d", Text: "x", Rating: 1, RelevanceScore: 0.7},
	}
	insight := &model.InsightReport{ExecutiveSummary: "s", KeyInsights: []string{"k"}}

	res, err := Assemble(q, evidence, insight)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	var ids []string
	for _, e := range res.Evidence {
		ids = append(ids, e.ID)
	}
	if strings.Join(ids, ",") != "b,d,c" {
		t.Errorf("ids = %v, want b,d,c", ids)
	}

	insight.KeyInsights[0] = "mutated"
	if res.Insight.KeyInsights[0] != "k" {
		t.Error("result shares insight slices with input")
	}

	if _, err := Assemble(q, evidence, nil); err == nil {
		t.Error("expected error for missing insight")
	}
}
