// Package config loads runtime configuration from file or environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Provider  ProviderConfig  `mapstructure:"provider"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Salience  SalienceConfig  `mapstructure:"salience"`
	Eval      EvalConfig      `mapstructure:"eval"`
	Templates TemplatesConfig `mapstructure:"templates"`
	Results   ResultsConfig   `mapstructure:"results"`
}

// ProviderConfig stores completion backend settings.
type ProviderConfig struct {
	BaseURL         string        `mapstructure:"base_url"`          // OpenAI-compatible endpoint
	APIKeyEnv       string        `mapstructure:"api_key_env"`       // Env var holding the API key
	SummaryModel    string        `mapstructure:"summary_model"`     // Model for summarization calls
	ExtractionModel string        `mapstructure:"extraction_model"`  // Model for structured extraction
	ProbeModel      string        `mapstructure:"probe_model"`       // Agent-under-test model
	JudgeModel      string        `mapstructure:"judge_model"`       // LLM-as-judge model
	MaxAttempts     int           `mapstructure:"max_attempts"`      // Retry attempts for transient failures
	BaseBackoff     time.Duration `mapstructure:"base_backoff"`      // First retry delay, doubled per attempt
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`   // Per-attempt completion timeout
	EmbedTimeout    time.Duration `mapstructure:"embed_timeout"`     // Per-attempt embedding timeout
	RateLimitRPS    int           `mapstructure:"rate_limit_rps"`    // Token bucket capacity, 0 disables
	CacheCapacity   int           `mapstructure:"cache_capacity"`    // LRU embedding cache capacity
	CacheTTLSeconds int           `mapstructure:"cache_ttl_seconds"` // Cache entry TTL, 0 means no expiry
}

// EmbeddingConfig stores embedding backend settings.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"` // "local" or "http"
	BaseURL  string `mapstructure:"base_url"` // For http provider
	Model    string `mapstructure:"model"`
	Dims     int    `mapstructure:"dims"`
}

// SalienceConfig stores salience set tuning.
type SalienceConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"` // Dedupe cutoff, (0,1]
	TokenBudget         int     `mapstructure:"token_budget"`         // Advisory unless enforced
	EnforceBudget       bool    `mapstructure:"enforce_budget"`       // Truncate by priority when over budget
}

// EvalConfig stores harness and batch settings.
type EvalConfig struct {
	Concurrency   int  `mapstructure:"concurrency"`    // Max concurrent trials
	TrialsPerPair int  `mapstructure:"trials_per_pair"` // Trials per strategy/template pair
	EnableTracing bool `mapstructure:"enable_tracing"`
}

// TemplatesConfig stores template store settings.
type TemplatesConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"` // Invalidate cache on file changes
}

// ResultsConfig stores result persistence settings.
type ResultsConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"` // Empty disables the result store
	JSONPath   string `mapstructure:"json_path"`   // Batch report output file
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("driftbench")
		v.SetConfigType("yaml")
	}

	// Provider defaults
	v.SetDefault("provider.base_url", "http://localhost:11434/v1")
	v.SetDefault("provider.api_key_env", "DRIFTBENCH_API_KEY")
	v.SetDefault("provider.summary_model", "gpt-4o-mini")
	v.SetDefault("provider.extraction_model", "gpt-4o-mini")
	v.SetDefault("provider.probe_model", "gpt-4o-mini")
	v.SetDefault("provider.judge_model", "gpt-4o")
	v.SetDefault("provider.max_attempts", 3)
	v.SetDefault("provider.base_backoff", "500ms")
	v.SetDefault("provider.request_timeout", "30s")
	v.SetDefault("provider.embed_timeout", "5s")
	v.SetDefault("provider.rate_limit_rps", 10)
	v.SetDefault("provider.cache_capacity", 1000)
	v.SetDefault("provider.cache_ttl_seconds", 3600)

	// Embedding defaults: deterministic local embedder keeps runs offline
	// unless an HTTP backend is configured.
	v.SetDefault("embedding.provider", "local")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dims", 256)

	// Salience defaults
	v.SetDefault("salience.similarity_threshold", 0.85)
	v.SetDefault("salience.token_budget", 2000)
	v.SetDefault("salience.enforce_budget", false)

	// Eval defaults
	v.SetDefault("eval.concurrency", 4)
	v.SetDefault("eval.trials_per_pair", 3)
	v.SetDefault("eval.enable_tracing", true)

	// Template and result defaults
	v.SetDefault("templates.dir", "templates")
	v.SetDefault("templates.watch", false)
	v.SetDefault("results.sqlite_path", "driftbench.db")
	v.SetDefault("results.json_path", "results.json")

	v.AutomaticEnv()
	v.SetEnvPrefix("DRIFTBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment are used.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	cfg.clamp()
	return &cfg, nil
}

// clamp forces out-of-range values back to sane bounds instead of failing.
func (c *Config) clamp() {
	if c.Salience.SimilarityThreshold <= 0 || c.Salience.SimilarityThreshold > 1 {
		c.Salience.SimilarityThreshold = 0.85
	}
	if c.Provider.MaxAttempts < 1 {
		c.Provider.MaxAttempts = 1
	}
	if c.Provider.BaseBackoff <= 0 {
		c.Provider.BaseBackoff = 500 * time.Millisecond
	}
	if c.Provider.RequestTimeout <= 0 {
		c.Provider.RequestTimeout = 30 * time.Second
	}
	if c.Provider.EmbedTimeout <= 0 {
		c.Provider.EmbedTimeout = 5 * time.Second
	}
	if c.Eval.Concurrency < 1 {
		c.Eval.Concurrency = 1
	}
	if c.Eval.TrialsPerPair < 1 {
		c.Eval.TrialsPerPair = 1
	}
	if c.Embedding.Dims < 1 {
		c.Embedding.Dims = 256
	}
}
