package corpus

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format names a corpus encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// FormatFromPath guesses the format from a file name or URL path
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported corpus format %q (use .yaml, .json or .csv)", filepath.Ext(path))
	}
}

// LoadFile reads a corpus from disk
func LoadFile(path string) (*Corpus, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	c, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return c, nil
}

// Parse decodes a corpus. YAML and JSON accept either a {name, reviews}
// document or a bare list of reviews. Review text is stripped of markup.
func Parse(data []byte, format Format) (*Corpus, error) {
	var (
		c   *Corpus
		err error
	)

	switch format {
	case FormatYAML:
		c, err = parseStructured(data, yaml.Unmarshal)
	case FormatJSON:
		c, err = parseStructured(data, json.Unmarshal)
	case FormatCSV:
		c, err = parseCSV(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported corpus format %q", format)
	}
	if err != nil {
		return nil, err
	}

	kept := c.Reviews[:0]
	for _, r := range c.Reviews {
		r.Text = StripMarkup(r.Text)
		if r.Text == "" {
			continue
		}
		kept = append(kept, r)
	}
	c.Reviews = kept

	if len(c.Reviews) == 0 {
		return nil, errors.New("corpus contains no reviews")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseStructured(data []byte, unmarshal func([]byte, any) error) (*Corpus, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '-') {
		var reviews []Review
		if err := unmarshal(data, &reviews); err != nil {
			return nil, fmt.Errorf("decode reviews: %w", err)
		}
		return &Corpus{Reviews: reviews}, nil
	}

	var c Corpus
	if err := unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	return &c, nil
}

// csvColumns maps accepted header names to review fields. The aliases cover
// the common app-store review exports.
var csvColumns = map[string]string{
	"id":             "id",
	"review_id":      "id",
	"reviewid":       "id",
	"text":           "text",
	"review":         "text",
	"content":        "text",
	"body":           "text",
	"rating":         "rating",
	"score":          "rating",
	"stars":          "rating",
	"thumbs_up":      "thumbs_up",
	"total_thumbsup": "thumbs_up",
	"thumbsupcount":  "thumbs_up",
	"helpful":        "thumbs_up",
	"date":           "date",
	"time_submitted": "date",
	"at":             "date",
}

func parseCSV(r io.Reader) (*Corpus, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	index := make(map[string]int)
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if field, ok := csvColumns[key]; ok {
			if _, dup := index[field]; !dup {
				index[field] = i
			}
		}
	}
	if _, ok := index["text"]; !ok {
		return nil, errors.New("csv has no review text column")
	}
	if _, ok := index["rating"]; !ok {
		return nil, errors.New("csv has no rating column")
	}

	get := func(rec []string, field string) string {
		i, ok := index[field]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	c := &Corpus{}
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}

		rating, err := strconv.Atoi(get(rec, "rating"))
		if err != nil {
			return nil, fmt.Errorf("csv line %d: bad rating %q", line, get(rec, "rating"))
		}

		review := Review{
			ID:     get(rec, "id"),
			Text:   get(rec, "text"),
			Rating: rating,
			Date:   normalizeDate(get(rec, "date")),
		}
		if review.ID == "" {
			review.ID = strconv.Itoa(len(c.Reviews) + 1)
		}
		if v := get(rec, "thumbs_up"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("csv line %d: bad thumbs up %q", line, v)
			}
			review.ThumbsUp = &n
		}
		c.Reviews = append(c.Reviews, review)
	}
	return c, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
}

// normalizeDate reduces known timestamp layouts to YYYY-MM-DD
func normalizeDate(s string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
