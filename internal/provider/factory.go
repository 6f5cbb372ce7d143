package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ppiankov/feedlens/internal/cache"
	"github.com/ppiankov/feedlens/internal/corpus"
	"github.com/ppiankov/feedlens/internal/llm"
	"github.com/ppiankov/feedlens/internal/model"
	"github.com/ppiankov/feedlens/internal/util"
)

// Deps are the shared collaborators a configured provider is wrapped with
type Deps struct {
	Cache   cache.Cache // nil disables caching
	Limiter Waiter      // nil disables rate limiting
}

// FromConfig builds the provider named by cfg.Provider.Kind and applies the
// timeout, rate-limit and cache decorators in that order, innermost first.
func FromConfig(ctx context.Context, cfg *model.Config, deps Deps) (ResultProvider, error) {
	var base ResultProvider

	switch strings.ToLower(cfg.Provider.Kind) {
	case "", "mock":
		base = NewMock(WithLatency(cfg.Provider.Latency))

	case "generative":
		proxy := util.NewProxyFunc(cfg.LLM.HTTPProxy, cfg.LLM.HTTPSProxy, cfg.LLM.NoProxy)
		c, err := corpus.Load(ctx, cfg.Corpus, proxy)
		if err != nil {
			return nil, fmt.Errorf("load corpus: %w", err)
		}

		log := slog.Default().With("component", "provider")
		llmCfg := llm.ConfigFromModel(cfg.LLM)
		if needsKey(llmCfg.Provider) && llmCfg.APIKey == "" {
			log.Warn("LLM API key not set, using extractive synthesis", "llm", llmCfg.Provider)
			llmCfg.Provider = ""
		}

		gen, err := llm.NewProvider(llmCfg)
		if err != nil {
			return nil, fmt.Errorf("create LLM provider: %w", err)
		}
		if gen == nil {
			log.Info("no LLM configured, using extractive synthesis")
		}
		base = NewGenerative(c, gen)

	default:
		return nil, fmt.Errorf("unknown provider kind: %s (supported: mock, generative)", cfg.Provider.Kind)
	}

	p := WithTimeout(base, cfg.Provider.Timeout)
	p = RateLimited(p, deps.Limiter)
	p = Cached(p, deps.Cache, cfg.Cache.TTL)
	return p, nil
}

func needsKey(llmProvider string) bool {
	switch strings.ToLower(llmProvider) {
	case "openai", "anthropic", "claude":
		return true
	}
	return false
}
