package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/feedlens/internal/model"
)

// Provider defines the interface for LLM backends that synthesize insight reports
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate produces an insight report grounded in the supplied evidence
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// GenerateRequest contains the input for insight generation
type GenerateRequest struct {
	// Query is the user's question
	Query string

	// Evidence is the STRICT allowlist of reviews the model may cite
	Evidence []model.EvidenceItem

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// GenerateResponse contains the model output
type GenerateResponse struct {
	// Insight is the parsed report
	Insight model.InsightReport

	// Raw is the unparsed model text
	Raw string

	// CitedIDs are the review IDs the model referenced as [#id]
	CitedIDs []string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// StrictEvidence rejects responses citing reviews outside the request
	StrictEvidence bool

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout:        30,
		StrictEvidence: true,
		MaxTokens:      1200,
	}
}

const systemPrompt = "You are a customer-feedback analyst. You answer only from the reviews provided and always reply with a single JSON object."

// BuildPrompt constructs the default evidence-grounded prompt
func BuildPrompt(query string, evidence []model.EvidenceItem) string {
	var b strings.Builder

	fmt.Fprintf(&b, "A product team asked: %q\n\n", query)
	b.WriteString("Answer ONLY from the customer reviews below.\n\n")
	b.WriteString("RULES:\n")
	b.WriteString("1. Cite reviews inline as [#id] using only the ids listed below.\n")
	b.WriteString("2. Do not invent complaints, numbers or features that no review mentions.\n")
	b.WriteString("3. If the reviews do not answer the question, say so in the executive summary.\n\n")
	b.WriteString("Reviews (most relevant first):\n")

	for i, e := range evidence {
		if i >= 20 { // Limit to keep the prompt small
			fmt.Fprintf(&b, "... and %d more reviews\n", len(evidence)-20)
			break
		}
		fmt.Fprintf(&b, "- [#%s] rating %d/5", e.ID, e.Rating)
		if e.SupportCount != nil {
			fmt.Fprintf(&b, ", %d thumbs up", *e.SupportCount)
		}
		if e.Date != "" {
			fmt.Fprintf(&b, ", %s", e.Date)
		}
		fmt.Fprintf(&b, ": %s\n", e.Text)
	}

	b.WriteString("\nRespond with JSON of the form:\n")
	b.WriteString(`{"executive_summary": "...", "key_insights": ["..."], "pain_points": ["..."], "positives": ["..."], "recommendation": "..."}`)
	b.WriteString("\n")

	return b.String()
}

var citationPattern = regexp.MustCompile(`\[#([A-Za-z0-9_\-]+)\]`)

// extractCitations returns the distinct review ids cited as [#id]
func extractCitations(text string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	return ids
}

// checkCitations enforces strict evidence mode
func checkCitations(cited []string, evidence []model.EvidenceItem) error {
	allowed := make(map[string]bool, len(evidence))
	for _, e := range evidence {
		allowed[e.ID] = true
	}
	for _, id := range cited {
		if !allowed[id] {
			return fmt.Errorf("citation leak: model cited unknown review %s", id)
		}
	}
	return nil
}

// ParseInsight decodes a model reply into an InsightReport. Code fences and
// text around the JSON object are tolerated.
func ParseInsight(raw string) (model.InsightReport, error) {
	var report model.InsightReport

	text := strings.TrimSpace(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return report, fmt.Errorf("no JSON object in model output")
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), &report); err != nil {
		return report, fmt.Errorf("decode insight: %w", err)
	}
	if strings.TrimSpace(report.ExecutiveSummary) == "" {
		return report, fmt.Errorf("model output has empty executive_summary")
	}
	return report, nil
}

// finish parses the reply and applies the citation policy shared by all backends
func finish(raw string, req GenerateRequest, strict bool) (*GenerateResponse, error) {
	insight, err := ParseInsight(raw)
	if err != nil {
		return nil, err
	}

	cited := extractCitations(raw)
	if strict {
		if err := checkCitations(cited, req.Evidence); err != nil {
			return nil, err
		}
	}

	return &GenerateResponse{
		Insight:  insight,
		Raw:      raw,
		CitedIDs: cited,
	}, nil
}

func resolveModel(reqModel, cfgModel, fallback string) string {
	if reqModel != "" {
		return reqModel
	}
	if cfgModel != "" {
		return cfgModel
	}
	return fallback
}

func resolveMaxTokens(reqMax, cfgMax int) int {
	if reqMax > 0 {
		return reqMax
	}
	if cfgMax > 0 {
		return cfgMax
	}
	return 1200
}
