package corpus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/feedlens/internal/model"
)

func TestSample(t *testing.T) {
	c := Sample()
	if c.Len() != 5 {
		t.Fatalf("sample has %d reviews, want 5", c.Len())
	}
	for i, r := range c.Reviews {
		ev := r.Evidence(r.Score, r.Highlights)
		if err := ev.Validate(); err != nil {
			t.Errorf("review %d: %v", i, err)
		}
		if ev.SupportCount == nil {
			t.Errorf("review %s: missing thumbs up", r.ID)
		}
	}
	if c.Reviews[0].Score != 0.94 || c.Reviews[4].Score != 0.85 {
		t.Errorf("unexpected sample scores: %v, %v", c.Reviews[0].Score, c.Reviews[4].Score)
	}
	if Sample() != c {
		t.Error("Sample should return the same pool")
	}
}

func TestReviewEvidence_Copies(t *testing.T) {
	r := Review{ID: "x", Text: "fine app", Rating: 4, ThumbsUp: model.IntPtr(3)}
	ev := r.Evidence(0.5, []string{"fine"})
	*ev.SupportCount = 99
	if *r.ThumbsUp != 3 {
		t.Error("evidence shares thumbs up pointer with review")
	}
}

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  hello   world ", "hello world"},
		{"<p>Great &amp; fast</p><script>x()</script>app<br/>works", "Great & fast app works"},
		{"Love it &lt;3", "Love it <3"},
		{"<div><style>.a{}</style>Only <b>this</b></div>", "Only this"},
	}
	for _, tt := range tests {
		if got := StripMarkup(tt.in); got != tt.want {
			t.Errorf("StripMarkup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParse_CSV(t *testing.T) {
	data := "Time_submitted,Review,Rating,Total_thumbsup,Reply\n" +
		"2022-07-09 15:00:00,Great music service,5,2,\n" +
		"2022-07-08 10:12:00,\"Crashes <b>every</b> time, please fix\",1,17,Thanks\n"

	c, err := Parse([]byte(data), FormatCSV)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []Review{
		{ID: "1", Text: "Great music service", Rating: 5, ThumbsUp: model.IntPtr(2), Date: "2022-07-09"},
		{ID: "2", Text: "Crashes every time, please fix", Rating: 1, ThumbsUp: model.IntPtr(17), Date: "2022-07-08"},
	}
	if diff := cmp.Diff(want, c.Reviews); diff != "" {
		t.Errorf("reviews (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"csv without rating", "review\nhello\n", FormatCSV},
		{"csv bad rating", "review,rating\nhello,five\n", FormatCSV},
		{"rating out of range", "review,rating\nhello,9\n", FormatCSV},
		{"empty yaml list", "[]", FormatYAML},
		{"duplicate ids", `[{"id":"a","text":"x","rating":1},{"id":"a","text":"y","rating":2}]`, FormatJSON},
		{"markup only", `[{"id":"a","text":"<br/>","rating":1}]`, FormatJSON},
		{"unknown format", "x", Format("xml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data), tt.format); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParse_StructuredShapes(t *testing.T) {
	doc := "name: beta\nreviews:\n  - text: Sync is slow\n    rating: 2\n  - text: Nice widgets\n    rating: 5\n"
	c, err := Parse([]byte(doc), FormatYAML)
	if err != nil {
		t.Fatalf("Parse yaml: %v", err)
	}
	if c.Name != "beta" || c.Len() != 2 || c.Reviews[0].ID != "r1" {
		t.Errorf("unexpected corpus: %+v", c)
	}

	list := `[{"id": "9", "text": "Battery drain", "rating": 1, "thumbs_up": 4}]`
	c, err = Parse([]byte(list), FormatJSON)
	if err != nil {
		t.Fatalf("Parse json: %v", err)
	}
	if c.Len() != 1 || *c.Reviews[0].ThumbsUp != 4 {
		t.Errorf("unexpected corpus: %+v", c)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app_reviews.csv")
	if err := os.WriteFile(path, []byte("content,score\nLoads fast,5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.Name != "app_reviews" || c.Len() != 1 {
		t.Errorf("unexpected corpus: %+v", c)
	}

	if _, err := LoadFile(filepath.Join(dir, "reviews.txt")); err == nil {
		t.Error("expected unsupported format error")
	}
}

func testCorpusConfig() model.CorpusConfig {
	return model.CorpusConfig{
		UserAgent:     "feedlens/0.1",
		MaxBytes:      1 << 20,
		FetchTimeout:  5 * time.Second,
		RespectRobots: true,
	}
}

func TestLoad_Remote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		case "/data/spotify_reviews":
			if r.Header.Get("User-Agent") != "feedlens/0.1" {
				t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
			}
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			_, _ = w.Write([]byte("Review,Rating\nOffline mode fails,2\n"))
		case "/private/reviews.csv":
			t.Error("robots-disallowed path was fetched")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := testCorpusConfig()
	cfg.Source = server.URL + "/data/spotify_reviews"

	c, err := Load(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Name != "spotify reviews" || c.Len() != 1 {
		t.Errorf("unexpected corpus: %+v", c)
	}

	cfg.Source = server.URL + "/private/reviews.csv"
	if _, err := Load(context.Background(), cfg, nil); !errors.Is(err, ErrDisallowed) {
		t.Errorf("expected ErrDisallowed, got %v", err)
	}

	cfg.Source = server.URL + "/missing.csv"
	if _, err := Load(context.Background(), cfg, nil); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestFetcher_MaxBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("review,rating\n" + strings.Repeat("long review text,3\n", 100)))
	}))
	defer server.Close()

	cfg := testCorpusConfig()
	cfg.RespectRobots = false
	cfg.MaxBytes = 64

	_, err := NewFetcher(cfg, nil).Fetch(context.Background(), server.URL+"/big.csv")
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestLoad_Sample(t *testing.T) {
	for _, source := range []string{"", "sample"} {
		c, err := Load(context.Background(), model.CorpusConfig{Source: source}, nil)
		if err != nil || c != Sample() {
			t.Errorf("source %q: expected sample pool, got %v, %v", source, c, err)
		}
	}
}
