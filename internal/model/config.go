package model

import "time"

// Config is the complete feedlens configuration
type Config struct {
	Pacing      PacingConfig      `yaml:"pacing" mapstructure:"pacing"`
	Provider    ProviderConfig    `yaml:"provider" mapstructure:"provider"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Corpus      CorpusConfig      `yaml:"corpus" mapstructure:"corpus"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Rate        RateConfig        `yaml:"rate" mapstructure:"rate"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
}

// PacingConfig controls the visual pacing between stages
type PacingConfig struct {
	Scale    float64 `yaml:"scale" mapstructure:"scale"`       // Multiplier applied to nominal stage delays
	Disabled bool    `yaml:"disabled" mapstructure:"disabled"` // Skip pacing entirely
}

// ProviderConfig selects the result provider
type ProviderConfig struct {
	Kind    string        `yaml:"kind" mapstructure:"kind"`       // mock, generative
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"` // Applied to real providers
	Latency time.Duration `yaml:"latency" mapstructure:"latency"` // Simulated latency for the mock
}

// LLMConfig configures the generation backend of the generative provider
type LLMConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model      string `yaml:"model" mapstructure:"model"`
	APIKey     string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL    string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CorpusConfig locates the review corpus used for retrieval
type CorpusConfig struct {
	Source        string        `yaml:"source" mapstructure:"source"` // Empty = embedded sample reviews
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBytes      int64         `yaml:"max_bytes" mapstructure:"max_bytes"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// CacheConfig configures result caching in front of the provider
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Backend   string        `yaml:"backend" mapstructure:"backend"` // memory, disk, layered, redis
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	RedisAddr string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisDB   int           `yaml:"redis_db" mapstructure:"redis_db"`
}

// RateConfig limits calls into the provider
type RateConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"` // 0 = unlimited
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// ConcurrencyConfig sizes the batch worker pool
type ConcurrencyConfig struct {
	BatchWorkers int `yaml:"batch_workers" mapstructure:"batch_workers"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// OutputConfig controls rendering
type OutputConfig struct {
	Verbose bool   `yaml:"verbose" mapstructure:"verbose"`
	Format  string `yaml:"format" mapstructure:"format"` // text, markdown, json
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Pacing: PacingConfig{Scale: 1.0},
		Provider: ProviderConfig{
			Kind:    "mock",
			Timeout: 45 * time.Second,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			Timeout:   30,
			MaxTokens: 1200,
		},
		Corpus: CorpusConfig{
			UserAgent:     "feedlens/0.1 (+https://github.com/ppiankov/feedlens)",
			MaxBytes:      5_000_000,
			FetchTimeout:  30 * time.Second,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:   false,
			Backend:   "memory",
			TTL:       24 * time.Hour,
			Dir:       ".feedlens-cache",
			RedisAddr: "localhost:6379",
		},
		Rate: RateConfig{
			RequestsPerSecond: 0,
			Burst:             1,
		},
		Concurrency: ConcurrencyConfig{BatchWorkers: 4},
		Server:      ServerConfig{Addr: ":8088"},
		Output:      OutputConfig{Format: "text"},
	}
}
