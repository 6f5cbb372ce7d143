package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/feedlens/internal/model"
)

// NewProvider creates an LLM provider from configuration.
// An empty provider name disables generation and returns nil, nil.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)
	case "anthropic", "claude":
		return NewAnthropicProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(mc model.LLMConfig) Config {
	cfg := DefaultConfig()
	cfg.Provider = mc.Provider
	cfg.Model = mc.Model
	cfg.APIKey = mc.APIKey
	cfg.BaseURL = mc.BaseURL
	cfg.HTTPProxy = mc.HTTPProxy
	cfg.HTTPSProxy = mc.HTTPSProxy
	cfg.NoProxy = mc.NoProxy
	if mc.Timeout > 0 {
		cfg.Timeout = mc.Timeout
	}
	if mc.MaxTokens > 0 {
		cfg.MaxTokens = mc.MaxTokens
	}
	return cfg
}
