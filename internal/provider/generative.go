package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ppiankov/feedlens/internal/corpus"
	"github.com/ppiankov/feedlens/internal/llm"
	"github.com/ppiankov/feedlens/internal/model"
)

// Generative retrieves reviews from a corpus by lexical ranking and asks an
// LLM to synthesize the report. Without an LLM it builds an extractive
// report from the evidence alone.
type Generative struct {
	ranker *corpus.Ranker
	llm    llm.Provider
	log    *slog.Logger
}

// NewGenerative creates a provider over c. gen may be nil.
func NewGenerative(c *corpus.Corpus, gen llm.Provider) *Generative {
	return &Generative{
		ranker: corpus.NewRanker(c),
		llm:    gen,
		log:    slog.Default().With("component", "provider", "provider", "generative"),
	}
}

// Name returns the provider name
func (g *Generative) Name() string {
	return "generative"
}

// Retrieve ranks the corpus and returns up to q.TopK matching reviews
func (g *Generative) Retrieve(ctx context.Context, q model.Query) ([]model.EvidenceItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hits := g.ranker.Rank(q.Text, q.TopK)
	if len(hits) == 0 {
		return nil, NoEvidence(g.Name(), "no review in %q matches %q", g.ranker.Corpus().Name, q.Text)
	}
	g.log.Debug("retrieved evidence", "hits", len(hits), "top_k", q.TopK)
	return hits, nil
}

// Synthesize produces the insight report for the retrieved evidence
func (g *Generative) Synthesize(ctx context.Context, q model.Query, evidence []model.EvidenceItem) (*model.InsightReport, error) {
	if len(evidence) == 0 {
		return nil, NoEvidence(g.Name(), "nothing to synthesize for %q", q.Text)
	}

	if g.llm == nil {
		report := extractiveInsight(q, evidence)
		return &report, nil
	}

	resp, err := g.llm.Generate(ctx, llm.GenerateRequest{Query: q.Text, Evidence: evidence})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, Timeout(g.Name(), fmt.Errorf("%s: %w", g.llm.Name(), err))
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, Upstream(g.Name(), fmt.Errorf("%s: %w", g.llm.Name(), err))
	}

	g.log.Info("synthesized insight", "llm", g.llm.Name(), "model", resp.Model,
		"tokens", resp.TokensUsed, "cited", len(resp.CitedIDs))
	report := resp.Insight
	return &report, nil
}

// Resolve runs retrieval and synthesis back to back
func (g *Generative) Resolve(ctx context.Context, q model.Query) (*model.AnalysisResult, error) {
	evidence, err := g.Retrieve(ctx, q)
	if err != nil {
		return nil, err
	}
	insight, err := g.Synthesize(ctx, q, evidence)
	if err != nil {
		return nil, err
	}
	return Assemble(q, evidence, insight)
}

// extractiveInsight summarizes evidence without generating new claims:
// every line quotes or counts what the reviews say.
func extractiveInsight(q model.Query, evidence []model.EvidenceItem) model.InsightReport {
	total := 0
	for _, e := range evidence {
		total += e.Rating
	}
	avg := float64(total) / float64(len(evidence))

	report := model.InsightReport{
		ExecutiveSummary: fmt.Sprintf("%d reviews match %q, with an average rating of %.1f/5.", len(evidence), q.Text, avg),
		KeyInsights:      []string{},
		PainPoints:       []string{},
		Positives:        []string{},
	}

	for _, p := range topPhrases(evidence, 5) {
		report.KeyInsights = append(report.KeyInsights, fmt.Sprintf("%q is mentioned in %d of %d reviews", p.text, p.count, len(evidence)))
	}

	for _, e := range evidence {
		line := fmt.Sprintf("%s [#%s]", firstSentence(e.Text), e.ID)
		switch {
		case e.Rating <= 2:
			report.PainPoints = append(report.PainPoints, line)
		case e.Rating >= 4:
			report.Positives = append(report.Positives, line)
		}
	}

	if len(report.PainPoints) > 0 && len(report.KeyInsights) > 0 {
		report.Recommendation = fmt.Sprintf("Review the %d low-rated reports first; the most common theme is %q.",
			len(report.PainPoints), topPhrases(evidence, 1)[0].text)
	} else {
		report.Recommendation = "No low-rated reviews matched; no corrective action is indicated by this evidence."
	}
	return report
}

type phraseCount struct {
	text  string
	count int
}

func topPhrases(evidence []model.EvidenceItem, n int) []phraseCount {
	counts := make(map[string]int)
	display := make(map[string]string)
	var order []string
	for _, e := range evidence {
		seen := make(map[string]bool)
		for _, span := range e.EmphasizedSpans {
			key := strings.ToLower(span)
			if seen[key] {
				continue
			}
			seen[key] = true
			if _, ok := counts[key]; !ok {
				order = append(order, key)
				display[key] = span
			}
			counts[key]++
		}
	}

	out := make([]phraseCount, 0, len(order))
	for _, key := range order {
		out = append(out, phraseCount{text: display[key], count: counts[key]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func firstSentence(text string) string {
	if i := strings.IndexAny(text, ".!?"); i > 0 {
		return text[:i+1]
	}
	return text
}
