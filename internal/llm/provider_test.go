package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/feedlens/internal/model"
)

func testEvidence() []model.EvidenceItem {
	return []model.EvidenceItem{
		{ID: "1", Text: "Offline mode is broken since the update.", Rating: 2, SupportCount: model.IntPtr(234), Date: "2024-01-15", RelevanceScore: 0.94},
		{ID: "2", Text: "Downloaded songs keep disappearing.", Rating: 1, RelevanceScore: 0.91},
	}
}

const testInsightJSON = `{"executive_summary": "Offline playback is unreliable [#1].", "key_insights": ["Downloads vanish [#2]"], "pain_points": ["Offline mode"], "positives": [], "recommendation": "Fix downloads."}`

func TestBuildPrompt_BasicStructure(t *testing.T) {
	prompt := BuildPrompt("Why is offline broken?", testEvidence())

	checks := []string{
		`"Why is offline broken?"`,
		"[#1] rating 2/5, 234 thumbs up, 2024-01-15: Offline mode is broken",
		"[#2] rating 1/5: Downloaded songs",
		"executive_summary",
		"Cite reviews inline as [#id]",
	}
	for _, c := range checks {
		if !strings.Contains(prompt, c) {
			t.Errorf("prompt missing %q", c)
		}
	}
}

func TestBuildPrompt_ManyReviews(t *testing.T) {
	var evidence []model.EvidenceItem
	for i := 0; i < 25; i++ {
		evidence = append(evidence, model.EvidenceItem{ID: string(rune('a' + i)), Text: "x", Rating: 3})
	}

	prompt := BuildPrompt("q", evidence)
	if !strings.Contains(prompt, "... and 5 more reviews") {
		t.Error("expected truncation note for more than 20 reviews")
	}
}

func TestParseInsight(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "plain", raw: testInsightJSON},
		{name: "fenced", raw: "```json\n" + testInsightJSON + "\n```"},
		{name: "preamble", raw: "Here is the report:\n" + testInsightJSON},
		{name: "no object", raw: "I cannot help with that", wantErr: true},
		{name: "broken json", raw: `{"executive_summary": `, wantErr: true},
		{name: "empty summary", raw: `{"executive_summary": "  "}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInsight(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInsight: %v", err)
			}
			if got.ExecutiveSummary != "Offline playback is unreliable [#1]." {
				t.Errorf("summary = %q", got.ExecutiveSummary)
			}
			if diff := cmp.Diff([]string{"Downloads vanish [#2]"}, got.KeyInsights); diff != "" {
				t.Errorf("key insights (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFinish_CitationPolicy(t *testing.T) {
	req := GenerateRequest{Query: "q", Evidence: testEvidence()[:1]}

	if _, err := finish(testInsightJSON, req, true); err == nil || !strings.Contains(err.Error(), "citation leak") {
		t.Fatalf("expected citation leak for [#2], got %v", err)
	}

	resp, err := finish(testInsightJSON, req, false)
	if err != nil {
		t.Fatalf("non-strict finish: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "2"}, resp.CitedIDs); diff != "" {
		t.Errorf("cited ids (-want +got):\n%s", diff)
	}
}

func TestInsightSchema_Strict(t *testing.T) {
	raw, err := InsightSchema()
	if err != nil {
		t.Fatalf("InsightSchema: %v", err)
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := schema["$schema"]; ok {
		t.Error("$schema should be stripped")
	}
	if schema["additionalProperties"] != false {
		t.Errorf("additionalProperties = %v", schema["additionalProperties"])
	}
	required, _ := schema["required"].([]any)
	if len(required) != 5 {
		t.Errorf("expected 5 required fields, got %v", required)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.StrictEvidence {
		t.Error("strict evidence should default on")
	}
	if cfg.Timeout != 30 || cfg.MaxTokens != 1200 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{})
	if err != nil || p != nil {
		t.Fatalf("empty provider should disable generation, got %v, %v", p, err)
	}

	if _, err := NewProvider(Config{Provider: "bard"}); err == nil {
		t.Error("expected error for unknown provider")
	}

	p, err = NewProvider(Config{Provider: "Claude", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("name = %s", p.Name())
	}
}

func TestConfigFromModel(t *testing.T) {
	cfg := ConfigFromModel(model.LLMConfig{Provider: "ollama", Model: "llama3.1", NoProxy: "localhost"})
	if cfg.Timeout != 30 || cfg.MaxTokens != 1200 || !cfg.StrictEvidence {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Provider != "ollama" || cfg.Model != "llama3.1" || cfg.NoProxy != "localhost" {
		t.Errorf("fields not copied: %+v", cfg)
	}
}
