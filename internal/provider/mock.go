package provider

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/feedlens/internal/corpus"
	"github.com/ppiankov/feedlens/internal/model"
)

//go:embed mock_insights.yaml
var mockInsightsYAML []byte

type mockInsights struct {
	Base                      model.InsightReport `yaml:"base"`
	PositiveSummary           string              `yaml:"positive_summary"`
	ImprovementRecommendation string              `yaml:"improvement_recommendation"`
}

const (
	mockScoreStep  = 0.03
	mockScoreFloor = 0.75
)

var (
	positivePrefixes    = []string{"positive", "like", "good"}
	improvementPrefixes = []string{"recommend", "improve"}
)

// Mock answers every query from a fixed review pool with canned insights.
// The executive summary and recommendation switch on query keywords.
type Mock struct {
	pool     *corpus.Corpus
	insights mockInsights
	latency  time.Duration
}

// MockOption configures a Mock
type MockOption func(*Mock)

// WithLatency makes Resolve take d, simulating a remote backend
func WithLatency(d time.Duration) MockOption {
	return func(m *Mock) { m.latency = d }
}

// WithPool replaces the embedded sample reviews. Reviews keep their
// precomputed scores and highlights.
func WithPool(c *corpus.Corpus) MockOption {
	return func(m *Mock) { m.pool = c }
}

// NewMock creates the default keyword-dispatch provider
func NewMock(opts ...MockOption) *Mock {
	m := &Mock{pool: corpus.Sample()}
	if err := yaml.Unmarshal(mockInsightsYAML, &m.insights); err != nil {
		panic(fmt.Sprintf("provider: embedded mock insights: %v", err))
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the provider name
func (m *Mock) Name() string {
	return "mock"
}

// Resolve returns the first TopK pool reviews with rank-decayed relevance
func (m *Mock) Resolve(ctx context.Context, q model.Query) (*model.AnalysisResult, error) {
	if m.latency > 0 {
		t := time.NewTimer(m.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	if m.pool.Len() == 0 {
		return nil, NoEvidence(m.Name(), "review pool is empty")
	}

	n := min(q.TopK, m.pool.Len())
	evidence := make([]model.EvidenceItem, n)
	for i, r := range m.pool.Reviews[:n] {
		evidence[i] = r.Evidence(mockRelevance(r.Score, i), r.Highlights)
	}

	insight := m.insightFor(q.Text)
	return &model.AnalysisResult{Evidence: evidence, Insight: insight}, nil
}

// mockRelevance lowers the stored score by a fixed step per rank, never below the floor
func mockRelevance(score float64, rank int) float64 {
	adjusted := math.Max(mockScoreFloor, score-float64(rank)*mockScoreStep)
	return math.Min(1, math.Round(adjusted*100)/100)
}

func (m *Mock) insightFor(text string) model.InsightReport {
	report := m.insights.Base.Clone()
	words := queryWords(text)
	if hasPrefixWord(words, positivePrefixes) {
		report.ExecutiveSummary = m.insights.PositiveSummary
	}
	if hasPrefixWord(words, improvementPrefixes) {
		report.Recommendation = m.insights.ImprovementRecommendation
	}
	return report
}

func queryWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

func hasPrefixWord(words, prefixes []string) bool {
	for _, w := range words {
		for _, p := range prefixes {
			if strings.HasPrefix(w, p) {
				return true
			}
		}
	}
	return false
}
