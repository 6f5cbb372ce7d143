package corpus

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/feedlens/internal/model"
)

// token is a normalized term with its byte range in the source text
type token struct {
	term       string
	start, end int
}

var stopwords = func() map[string]bool {
	words := strings.Fields(`a about all an and any are as at be but by can do does for from get
		had has have how i if in is it me my of on or our say so than that the their them there
		they this to us was we what when where which who why will with you your
		user customer people feedback review tell show summarize please`)
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[stem(w)] = true
	}
	return m
}()

// tokenize splits text into normalized terms. Apostrophes inside words are kept.
func tokenize(text string) []token {
	var tokens []token
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		raw := strings.TrimRight(text[start:end], "'’")
		if term := stem(raw); term != "" {
			tokens = append(tokens, token{term: term, start: start, end: start + len(raw)})
		}
		start = -1
	}

	for i, r := range text {
		wordRune := unicode.IsLetter(r) || unicode.IsDigit(r)
		if !wordRune && start >= 0 && (r == '\'' || r == '’') {
			next, _ := utf8.DecodeRuneInString(text[i+utf8.RuneLen(r):])
			wordRune = unicode.IsLetter(next)
		}
		switch {
		case wordRune && start < 0:
			start = i
		case !wordRune:
			flush(i)
		}
	}
	flush(len(text))
	return tokens
}

// stem applies light suffix stripping so inflections of a word compare equal
func stem(word string) string {
	w := strings.ToLower(word)
	w = strings.TrimSuffix(w, "'s")
	w = strings.TrimSuffix(w, "’s")

	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		w = w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "ing") && len(w) > 5:
		w = w[:len(w)-3]
	case strings.HasSuffix(w, "ed") && len(w) > 4:
		w = w[:len(w)-2]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3:
		w = w[:len(w)-1]
	}
	if strings.HasSuffix(w, "e") && len(w) > 4 {
		w = w[:len(w)-1]
	}
	return w
}

// QueryTerms returns the distinct content terms of a query
func QueryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range tokenize(query) {
		if stopwords[t.term] || len(t.term) < 2 || seen[t.term] {
			continue
		}
		seen[t.term] = true
		terms = append(terms, t.term)
	}
	return terms
}

// Ranker scores corpus reviews against a query by term coverage
type Ranker struct {
	corpus *Corpus
	tokens [][]token
}

// NewRanker tokenizes every review of c once
func NewRanker(c *Corpus) *Ranker {
	r := &Ranker{corpus: c, tokens: make([][]token, c.Len())}
	for i, review := range c.Reviews {
		r.tokens[i] = tokenize(review.Text)
	}
	return r
}

// Corpus returns the ranked corpus
func (r *Ranker) Corpus() *Corpus {
	return r.corpus
}

type scored struct {
	index int
	score float64
	spans []string
}

// Rank returns at most topK reviews that share a term with the query, most
// relevant first. Reviews with no shared term are never returned.
func (r *Ranker) Rank(query string, topK int) []model.EvidenceItem {
	terms := QueryTerms(query)
	if len(terms) == 0 || topK <= 0 {
		return nil
	}
	wanted := make(map[string]bool, len(terms))
	for _, t := range terms {
		wanted[t] = true
	}

	var hits []scored
	for i, toks := range r.tokens {
		matched := make(map[string]bool)
		occurrences := 0
		for _, t := range toks {
			if wanted[t.term] {
				matched[t.term] = true
				occurrences++
			}
		}
		if len(matched) == 0 {
			continue
		}

		coverage := float64(len(matched)) / float64(len(terms))
		density := math.Min(1, 5*float64(occurrences)/float64(len(toks)))
		score := math.Round((0.8*coverage+0.2*density)*1000) / 1000

		hits = append(hits, scored{
			index: i,
			score: math.Min(1, score),
			spans: spans(r.corpus.Reviews[i].Text, toks, wanted),
		})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return thumbs(r.corpus.Reviews[hits[a].index]) > thumbs(r.corpus.Reviews[hits[b].index])
	})
	if len(hits) == 0 {
		return nil
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]model.EvidenceItem, len(hits))
	for i, h := range hits {
		out[i] = r.corpus.Reviews[h.index].Evidence(h.score, h.spans)
	}
	return out
}

// spans returns matched phrases as exact substrings of text. Matches
// separated only by whitespace merge into one phrase.
func spans(text string, toks []token, wanted map[string]bool) []string {
	var out []string
	seen := make(map[string]bool)
	start, end := -1, -1

	emit := func() {
		if start < 0 {
			return
		}
		phrase := text[start:end]
		if !seen[phrase] {
			seen[phrase] = true
			out = append(out, phrase)
		}
		start, end = -1, -1
	}

	for _, t := range toks {
		if !wanted[t.term] {
			emit()
			continue
		}
		if start >= 0 && strings.TrimSpace(text[end:t.start]) == "" {
			end = t.end
			continue
		}
		emit()
		start, end = t.start, t.end
	}
	emit()
	return out
}

func thumbs(r Review) int {
	if r.ThumbsUp == nil {
		return 0
	}
	return *r.ThumbsUp
}
