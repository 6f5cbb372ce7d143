package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ppiankov/feedlens/internal/model"
	"github.com/ppiankov/feedlens/internal/util"
)

// ErrDisallowed is returned when robots.txt forbids fetching a corpus URL
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Fetcher downloads review datasets over HTTP
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
	log        *slog.Logger
}

// NewFetcher creates a Fetcher from corpus and proxy settings
func NewFetcher(cfg model.CorpusConfig, proxy func(*http.Request) (*url.URL, error)) *Fetcher {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}

	f := &Fetcher{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: proxy},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		log:       slog.Default().With("component", "corpus"),
	}
	if cfg.RespectRobots {
		f.robots = util.NewRobotsChecker(cfg.UserAgent, timeout, proxy)
	}
	return f
}

// Fetch downloads and parses the corpus at rawURL
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Corpus, error) {
	if f.robots != nil {
		allowed, _, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/csv,application/json,application/yaml;q=0.9,*/*;q=0.5")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	// Read one byte past the limit to detect truncation
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("corpus exceeds %d bytes", f.maxBytes)
	}

	finalURL := resp.Request.URL
	format, err := formatFromResponse(resp.Header.Get("Content-Type"), finalURL.Path)
	if err != nil {
		return nil, err
	}

	c, err := Parse(body, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", finalURL, err)
	}
	if c.Name == "" {
		c.Name = datasetName(finalURL)
	}

	f.log.Info("fetched corpus", "url", finalURL.String(), "reviews", c.Len(), "bytes", len(body))
	return c, nil
}

func formatFromResponse(contentType, urlPath string) (Format, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "text/csv", "application/csv":
		return FormatCSV, nil
	case "application/json":
		return FormatJSON, nil
	case "application/yaml", "application/x-yaml", "text/yaml":
		return FormatYAML, nil
	}
	return FormatFromPath(urlPath)
}

// datasetName derives a readable name from the last URL path segment
func datasetName(u *url.URL) string {
	base := path.Base(strings.Trim(u.Path, "/"))
	if base == "." || base == "" {
		return u.Host
	}
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	base = strings.ReplaceAll(base, "_", " ")
	return strings.ReplaceAll(base, "-", " ")
}

// Load resolves a corpus source: "" or "sample" for the embedded pool,
// an http(s) URL for a remote dataset, anything else as a file path.
func Load(ctx context.Context, cfg model.CorpusConfig, proxy func(*http.Request) (*url.URL, error)) (*Corpus, error) {
	source := strings.TrimSpace(cfg.Source)
	switch {
	case source == "" || source == "sample":
		return Sample(), nil
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		return NewFetcher(cfg, proxy).Fetch(ctx, source)
	default:
		return LoadFile(source)
	}
}
