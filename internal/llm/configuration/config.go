// Package configuration holds the immutable settings of an LLM client. A
// Config is built once per run and passed by value at construction; nothing
// in this package reads global state.
package configuration

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig indicates a configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid llm configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Supported provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds the complete configuration of the LLM client.
type Config struct {
	Provider      ProviderConfig      `json:"provider"`
	Run           RunConfig           `json:"run"`
	Retry         RetryConfig         `json:"retry"`
	RateLimit     RateLimitConfig     `json:"rate_limit"`
	Cache         CacheConfig         `json:"cache"`
	Observability ObservabilityConfig `json:"observability"`

	// HTTPClient overrides the transport used by providers. Tests point it
	// at httptest servers.
	HTTPClient *http.Client `json:"-"`
}

// ProviderConfig identifies the inference endpoint and its credentials.
type ProviderConfig struct {
	Name     string `json:"name" validate:"required,oneof=openai anthropic"`
	Endpoint string `json:"endpoint" validate:"omitempty,url"`
	Model    string `json:"model" validate:"required"`

	APIKey    string            `json:"-"` // Sensitive, not serialized
	APIKeyEnv string            `json:"api_key_env"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// RunConfig carries the per-call options of a batch.
type RunConfig struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int `json:"max_retries" validate:"gte=0,lte=20"`
	// Timeout bounds a single attempt.
	Timeout time.Duration `json:"timeout" validate:"gt=0"`
	// SleepBetweenCalls pauses before every attempt, retries included.
	SleepBetweenCalls time.Duration `json:"sleep_between_calls" validate:"gte=0"`
	Temperature       float64       `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int           `json:"max_tokens" validate:"gt=0"`
}

// Attempts returns the total attempt budget of one call.
func (r RunConfig) Attempts() int { return r.MaxRetries + 1 }

// RetryConfig shapes the exponential backoff between attempts.
type RetryConfig struct {
	InitialInterval time.Duration `json:"initial_interval" validate:"gte=0"`
	MaxInterval     time.Duration `json:"max_interval" validate:"gtefield=InitialInterval"`
	Multiplier      float64       `json:"multiplier" validate:"gte=1"`
	UseJitter       bool          `json:"use_jitter"`
}

// RateLimitConfig configures the optional local token bucket applied on top
// of the fixed pause. Zero disables it.
type RateLimitConfig struct {
	RequestsPerMinute float64 `json:"requests_per_minute" validate:"gte=0"`
	Burst             int     `json:"burst" validate:"gte=0"`
}

// Enabled reports whether a token bucket should be installed.
func (r RateLimitConfig) Enabled() bool { return r.RequestsPerMinute > 0 }

// CacheConfig controls the Redis response cache.
type CacheConfig struct {
	Enabled       bool          `json:"enabled"`
	TTL           time.Duration `json:"ttl" validate:"gte=0"`
	RedisAddr     string        `json:"redis_addr" validate:"required_if=Enabled true"`
	RedisPassword string        `json:"-"` // Sensitive field excluded from JSON.
	RedisDB       int           `json:"redis_db" validate:"gte=0"`
}

// ObservabilityConfig controls request logging.
type ObservabilityConfig struct {
	LogLevel      string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat     string `json:"log_format" validate:"omitempty,oneof=text json"`
	RedactPrompts bool   `json:"redact_prompts"`
}

// Validate checks struct constraints and the provider credentials.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Provider.APIKey == "" {
		hint := "api key is empty"
		if c.Provider.APIKeyEnv != "" {
			hint = fmt.Sprintf("api key is empty; set %s", c.Provider.APIKeyEnv)
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, hint)
	}
	return nil
}
