package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ppiankov/feedlens/internal/cache"
	"github.com/ppiankov/feedlens/internal/model"
	"github.com/ppiankov/feedlens/internal/pipeline"
	"github.com/ppiankov/feedlens/internal/provider"
	"github.com/ppiankov/feedlens/internal/worker"
)

// app holds the shared collaborators behind one or more orchestrators
type app struct {
	cfg      *model.Config
	provider provider.ResultProvider
	cache    cache.Cache
}

// newApp builds the configured provider with its cache and rate limiter
func newApp(ctx context.Context, cfg *model.Config) (*app, error) {
	c, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	deps := provider.Deps{Cache: c}
	if cfg.Rate.RequestsPerSecond > 0 {
		deps.Limiter = worker.NewLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	}

	p, err := provider.FromConfig(ctx, cfg, deps)
	if err != nil {
		closeCache(c)
		return nil, err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Provider: %s\n", p.Name())
		if cfg.Cache.Enabled {
			fmt.Fprintf(os.Stderr, "Cache:    %s (ttl %s)\n", cfg.Cache.Backend, cfg.Cache.TTL)
		}
		if deps.Limiter != nil {
			fmt.Fprintf(os.Stderr, "Rate:     %.2f req/s (burst %d)\n", cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
		}
	}

	return &app{cfg: cfg, provider: p, cache: c}, nil
}

// orchestrator creates a fresh orchestrator over the shared provider
func (a *app) orchestrator(opts ...pipeline.Option) *pipeline.Orchestrator {
	base := []pipeline.Option{pipeline.WithPaceScale(a.cfg.Pacing.Scale)}
	return pipeline.New(a.provider, append(base, opts...)...)
}

// Close releases backend connections
func (a *app) Close() {
	closeCache(a.cache)
}

func closeCache(c cache.Cache) {
	if closer, ok := c.(io.Closer); ok {
		_ = closer.Close()
	}
}
