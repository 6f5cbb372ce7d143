// Package corpus holds the customer reviews that queries are answered from:
// the embedded sample pool, loaders for local and remote datasets, and the
// lexical ranker used by the generative provider.
package corpus

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/feedlens/internal/model"
)

// Review is one customer review as ingested
type Review struct {
	ID         string   `yaml:"id" json:"id"`
	Text       string   `yaml:"text" json:"text"`
	Rating     int      `yaml:"rating" json:"rating"`
	ThumbsUp   *int     `yaml:"thumbs_up,omitempty" json:"thumbs_up,omitempty"`
	Date       string   `yaml:"date,omitempty" json:"date,omitempty"`
	Score      float64  `yaml:"score,omitempty" json:"score,omitempty"`           // Precomputed relevance, sample pool only
	Highlights []string `yaml:"highlights,omitempty" json:"highlights,omitempty"` // Precomputed spans, sample pool only
}

// Evidence converts the review into an evidence item with the given relevance
func (r Review) Evidence(relevance float64, spans []string) model.EvidenceItem {
	item := model.EvidenceItem{
		ID:              r.ID,
		Text:            r.Text,
		Rating:          r.Rating,
		Date:            r.Date,
		RelevanceScore:  relevance,
		EmphasizedSpans: spans,
	}
	if r.ThumbsUp != nil {
		item.SupportCount = model.IntPtr(*r.ThumbsUp)
	}
	return item.Clone()
}

// Corpus is a named, immutable set of reviews
type Corpus struct {
	Name    string   `yaml:"name" json:"name"`
	Reviews []Review `yaml:"reviews" json:"reviews"`
}

// Len returns the number of reviews
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Reviews)
}

// Validate normalizes ratings and rejects empty or duplicate records
func (c *Corpus) Validate() error {
	seen := make(map[string]bool, len(c.Reviews))
	for i := range c.Reviews {
		r := &c.Reviews[i]
		r.ID = strings.TrimSpace(r.ID)
		if r.ID == "" {
			r.ID = fmt.Sprintf("r%d", i+1)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate review id %q", r.ID)
		}
		seen[r.ID] = true

		if strings.TrimSpace(r.Text) == "" {
			return fmt.Errorf("review %s has empty text", r.ID)
		}
		if r.Rating < 1 || r.Rating > 5 {
			return fmt.Errorf("review %s: rating %d outside 1..5", r.ID, r.Rating)
		}
		if r.ThumbsUp != nil && *r.ThumbsUp < 0 {
			return fmt.Errorf("review %s: negative thumbs up", r.ID)
		}
		for _, h := range r.Highlights {
			if !strings.Contains(r.Text, h) {
				return fmt.Errorf("review %s: highlight %q not in text", r.ID, h)
			}
		}
	}
	return nil
}

//go:embed sample_reviews.yaml
var sampleYAML []byte

var (
	sampleOnce sync.Once
	sample     *Corpus
)

// Sample returns the built-in five-review pool. Callers must not modify it.
func Sample() *Corpus {
	sampleOnce.Do(func() {
		var c Corpus
		if err := yaml.Unmarshal(sampleYAML, &c); err != nil {
			panic(fmt.Sprintf("corpus: embedded sample: %v", err))
		}
		if err := c.Validate(); err != nil {
			panic(fmt.Sprintf("corpus: embedded sample: %v", err))
		}
		sample = &c
	})
	return sample
}
