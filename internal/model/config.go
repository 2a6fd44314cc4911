package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete veracity configuration.
// Sources, highest priority first: CLI flags, VERACITY_* env vars, config file, defaults.
type Config struct {
	Search       SearchConfig      `yaml:"search" mapstructure:"search"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	LLM          LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Analysis     AnalysisConfig    `yaml:"analysis" mapstructure:"analysis"`
	HTTP         HTTPConfig        `yaml:"http" mapstructure:"http"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Server       ServerConfig      `yaml:"server" mapstructure:"server"`
}

// SearchConfig configures the external search provider and retry policy
type SearchConfig struct {
	Provider   string        `yaml:"provider" mapstructure:"provider" validate:"oneof=brave tavily"`
	APIKey     string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL    string        `yaml:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"`
	Lang       string        `yaml:"lang" mapstructure:"lang"`
	MaxResults int           `yaml:"max_results" mapstructure:"max_results" validate:"gte=1,lte=50"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	Retry      RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures exponential backoff with jitter
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff" validate:"gtefield=InitialBackoff"`
	Multiplier     float64       `yaml:"multiplier" mapstructure:"multiplier" validate:"gte=1"`
	Jitter         float64       `yaml:"jitter" mapstructure:"jitter" validate:"gte=0,lte=1"`
}

// CacheConfig configures the evidence cache
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL             time.Duration `yaml:"ttl" mapstructure:"ttl" validate:"gt=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"gt=0"`
	Store           string        `yaml:"store" mapstructure:"store" validate:"oneof=none file badger"`
	Path            string        `yaml:"path,omitempty" mapstructure:"path" validate:"required_unless=Store none"`
}

// LLMConfig configures the language model provider
type LLMConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider" validate:"oneof=openai deepseek ollama anthropic claude"`
	Model       string        `yaml:"model,omitempty" mapstructure:"model"`
	APIKey      string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=64"`
	Temperature float32       `yaml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
}

// AnalysisConfig configures the tool-use loop
type AnalysisConfig struct {
	MaxTurns            int  `yaml:"max_turns" mapstructure:"max_turns" validate:"gte=1,lte=20"`
	ReparseConsumesTurn bool `yaml:"reparse_consumes_turn" mapstructure:"reparse_consumes_turn"`
	StrictEvidence      bool `yaml:"strict_evidence" mapstructure:"strict_evidence"`
}

// HTTPConfig configures outbound HTTP transport
type HTTPConfig struct {
	UserAgent  string `yaml:"user_agent" mapstructure:"user_agent"`
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// RateLimitConfig configures provider-level rate limiting
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gt=0"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size" validate:"gte=1"`
}

// ConcurrencyConfig configures batch processing
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers" validate:"gte=1"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" validate:"gt=0"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Search: SearchConfig{
			Provider:   "brave",
			Lang:       "en",
			MaxResults: 20,
			Timeout:    10 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: 500 * time.Millisecond,
				MaxBackoff:     8 * time.Second,
				Multiplier:     2.0,
				Jitter:         0.2,
			},
		},
		Cache: CacheConfig{
			Enabled:         true,
			TTL:             5 * time.Minute,
			CleanupInterval: 10 * time.Minute,
			Store:           "none",
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Timeout:     60 * time.Second,
			MaxTokens:   1500,
			Temperature: 0.2,
		},
		Analysis: AnalysisConfig{
			MaxTurns:            6,
			ReparseConsumesTurn: true,
			StrictEvidence:      true,
		},
		HTTP: HTTPConfig{
			UserAgent: "Veracity/0.1 (+https://github.com/ppiankov/veracity)",
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 1,
			BurstSize:         1,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 3 * time.Minute,
		},
	}
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints declared in the struct tags
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
