package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/feedlens/internal/cache"
	"github.com/ppiankov/feedlens/internal/model"
)

// WithTimeout bounds every provider call by d. Overruns become KindTimeout
// errors; the result keeps the Incremental capability of p.
func WithTimeout(p ResultProvider, d time.Duration) ResultProvider {
	if d <= 0 {
		return p
	}
	t := timeoutProvider{inner: p, d: d}
	if inc, ok := p.(Incremental); ok {
		return &timeoutIncremental{timeoutProvider: t, inc: inc}
	}
	return &t
}

type timeoutProvider struct {
	inner ResultProvider
	d     time.Duration
}

func (t *timeoutProvider) Name() string {
	return t.inner.Name()
}

func (t *timeoutProvider) Resolve(ctx context.Context, q model.Query) (*model.AnalysisResult, error) {
	return withDeadline(ctx, t, func(ctx context.Context) (*model.AnalysisResult, error) {
		return t.inner.Resolve(ctx, q)
	})
}

type timeoutIncremental struct {
	timeoutProvider
	inc Incremental
}

func (t *timeoutIncremental) Retrieve(ctx context.Context, q model.Query) ([]model.EvidenceItem, error) {
	return withDeadline(ctx, &t.timeoutProvider, func(ctx context.Context) ([]model.EvidenceItem, error) {
		return t.inc.Retrieve(ctx, q)
	})
}

func (t *timeoutIncremental) Synthesize(ctx context.Context, q model.Query, evidence []model.EvidenceItem) (*model.InsightReport, error) {
	return withDeadline(ctx, &t.timeoutProvider, func(ctx context.Context) (*model.InsightReport, error) {
		return t.inc.Synthesize(ctx, q, evidence)
	})
}

func withDeadline[T any](parent context.Context, t *timeoutProvider, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(parent, t.d)
	defer cancel()

	out, err := fn(ctx)
	if err != nil && parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, Timeout(t.Name(), fmt.Errorf("no answer within %s", t.d))
	}
	return out, err
}

// Cached serves repeated queries from c. Results are stored as JSON under
// cache.QueryKey; only successful results are cached. When p is Incremental
// so is the result: evidence and insight reports are cached separately.
func Cached(p ResultProvider, c cache.Cache, ttl time.Duration) ResultProvider {
	if c == nil {
		return p
	}
	cp := cachedProvider{
		inner: p,
		cache: c,
		ttl:   ttl,
		log:   slog.Default().With("component", "provider", "provider", p.Name()),
	}
	if inc, ok := p.(Incremental); ok {
		return &cachedIncremental{cachedProvider: cp, inc: inc}
	}
	return &cp
}

type cachedProvider struct {
	inner ResultProvider
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

func (c *cachedProvider) Name() string {
	return c.inner.Name()
}

func (c *cachedProvider) Resolve(ctx context.Context, q model.Query) (*model.AnalysisResult, error) {
	key := cache.QueryKey(c.inner.Name(), q.Text, q.TopK)
	return readThrough(ctx, c, key, func() (*model.AnalysisResult, error) {
		return c.inner.Resolve(ctx, q)
	})
}

type cachedIncremental struct {
	cachedProvider
	inc Incremental
}

func (c *cachedIncremental) Retrieve(ctx context.Context, q model.Query) ([]model.EvidenceItem, error) {
	key := cache.QueryKey(c.inner.Name()+"/evidence", q.Text, q.TopK)
	return readThrough(ctx, &c.cachedProvider, key, func() ([]model.EvidenceItem, error) {
		return c.inc.Retrieve(ctx, q)
	})
}

func (c *cachedIncremental) Synthesize(ctx context.Context, q model.Query, evidence []model.EvidenceItem) (*model.InsightReport, error) {
	ids := make([]string, len(evidence))
	for i, e := range evidence {
		ids[i] = e.ID
	}
	key := cache.QueryKey(c.inner.Name()+"/insight", q.Text+"\x00"+strings.Join(ids, "\x00"), q.TopK)
	return readThrough(ctx, &c.cachedProvider, key, func() (*model.InsightReport, error) {
		return c.inc.Synthesize(ctx, q, evidence)
	})
}

// readThrough returns the cached value under key, or calls fn and stores
// its result when fn succeeds
func readThrough[T any](ctx context.Context, c *cachedProvider, key string, fn func() (T, error)) (T, error) {
	if data, ok := c.cache.Get(ctx, key); ok {
		var cached T
		if err := json.Unmarshal(data, &cached); err == nil {
			c.log.Debug("cache hit", "key", key)
			return cached, nil
		}
		c.log.Warn("dropping undecodable cache entry", "key", key)
		_ = c.cache.Delete(ctx, key)
	}

	out, err := fn()
	if err != nil {
		var zero T
		return zero, err
	}

	if data, err := json.Marshal(out); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.log.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return out, nil
}

// Waiter blocks until a call identified by key may proceed
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// RateLimited waits on w, keyed by provider name, once per query: before
// Resolve, or before Retrieve when p is Incremental.
func RateLimited(p ResultProvider, w Waiter) ResultProvider {
	if w == nil {
		return p
	}
	lp := limitedProvider{inner: p, waiter: w}
	if inc, ok := p.(Incremental); ok {
		return &limitedIncremental{limitedProvider: lp, inc: inc}
	}
	return &lp
}

type limitedProvider struct {
	inner  ResultProvider
	waiter Waiter
}

func (l *limitedProvider) Name() string {
	return l.inner.Name()
}

func (l *limitedProvider) wait(ctx context.Context) error {
	if err := l.waiter.Wait(ctx, l.inner.Name()); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

func (l *limitedProvider) Resolve(ctx context.Context, q model.Query) (*model.AnalysisResult, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.Resolve(ctx, q)
}

type limitedIncremental struct {
	limitedProvider
	inc Incremental
}

func (l *limitedIncremental) Retrieve(ctx context.Context, q model.Query) ([]model.EvidenceItem, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.inc.Retrieve(ctx, q)
}

func (l *limitedIncremental) Synthesize(ctx context.Context, q model.Query, evidence []model.EvidenceItem) (*model.InsightReport, error) {
	return l.inc.Synthesize(ctx, q, evidence)
}
