// Package config loads the batch file that describes a benchmark run and
// turns it into the values the run's components are built from.
//
// Precedence, lowest first: built-in defaults, the JSON batch file, then
// STRATEGYBENCH_* environment variables. A .env file next to the batch file
// or in the working directory is loaded into the environment first and
// never overrides variables that are already set.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/strategybench/internal/llm/configuration"
	"github.com/ahrav/strategybench/internal/orchestrator"
)

// ErrInvalidBatch indicates a batch file that cannot be used.
var ErrInvalidBatch = errors.New("invalid batch configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Batch is the decoded batch file.
type Batch struct {
	Paths     PathsConfig     `json:"paths"`
	Provider  ProviderConfig  `json:"provider"`
	Run       RunConfig       `json:"run"`
	Retry     RetryConfig     `json:"retry"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Cache     CacheConfig     `json:"cache"`
	Log       LogConfig       `json:"log"`

	// Resume is retry_failed (the default) or keep_failed.
	Resume string `json:"resume" validate:"omitempty,oneof=retry_failed keep_failed"`
	// Strategies and Categories restrict the matrix. Empty means all.
	Strategies []string `json:"strategies" validate:"dive,required"`
	Categories []string `json:"categories" validate:"dive,required"`
	// StrictTemplates aborts a run up front when a category has no template.
	StrictTemplates bool `json:"strict_templates"`

	// dir is the directory of the batch file; relative paths resolve
	// against it.
	dir string
}

// PathsConfig locates the run's inputs and outputs.
type PathsConfig struct {
	Corpus     string `json:"corpus" validate:"required"`
	Templates  string `json:"templates" validate:"required"`
	Strategies string `json:"strategies" validate:"required"`
	Results    string `json:"results" validate:"required"`
	// Events is an optional JSON lines progress log.
	Events string `json:"events"`
	// Ledger is an optional SQLite run history.
	Ledger string `json:"ledger"`
}

// ProviderConfig selects the inference API.
type ProviderConfig struct {
	Name      string            `json:"name" validate:"required,oneof=openai anthropic"`
	Endpoint  string            `json:"endpoint" validate:"omitempty,url"`
	Model     string            `json:"model" validate:"required"`
	APIKeyEnv string            `json:"api_key_env" validate:"required"`
	Headers   map[string]string `json:"headers,omitempty"`

	apiKey string
}

// RunConfig mirrors the per-call options. Durations are seconds.
type RunConfig struct {
	MaxRetries        int     `json:"max_retries" validate:"gte=0,lte=20"`
	Timeout           Seconds `json:"timeout" validate:"gt=0"`
	SleepBetweenCalls Seconds `json:"sleep_between_calls" validate:"gte=0"`
	Temperature       float64 `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int     `json:"max_tokens" validate:"gt=0"`
}

// RetryConfig shapes the backoff between attempts. Durations are seconds.
type RetryConfig struct {
	InitialInterval Seconds `json:"initial_interval" validate:"gte=0"`
	MaxInterval     Seconds `json:"max_interval" validate:"gtefield=InitialInterval"`
	Multiplier      float64 `json:"multiplier" validate:"gte=1"`
	Jitter          bool    `json:"jitter"`
}

// RateLimitConfig enables the optional token bucket.
type RateLimitConfig struct {
	RequestsPerMinute float64 `json:"requests_per_minute" validate:"gte=0"`
	Burst             int     `json:"burst" validate:"gte=0"`
}

// CacheConfig enables the Redis response cache. TTL is seconds.
type CacheConfig struct {
	Enabled   bool    `json:"enabled"`
	RedisAddr string  `json:"redis_addr" validate:"required_if=Enabled true"`
	RedisDB   int     `json:"redis_db" validate:"gte=0"`
	TTL       Seconds `json:"ttl" validate:"gte=0"`

	redisPassword string
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level         string `json:"level" validate:"oneof=debug info warn error"`
	Format        string `json:"format" validate:"oneof=text json"`
	RedactPrompts bool   `json:"redact_prompts"`
}

// Default returns a batch with every optional value filled in.
func Default() Batch {
	d := configuration.DefaultConfig(configuration.ProviderOpenAI)
	return Batch{
		Provider: ProviderConfig{Name: configuration.ProviderOpenAI},
		Run: RunConfig{
			MaxRetries:        d.Run.MaxRetries,
			Timeout:           FromDuration(d.Run.Timeout),
			SleepBetweenCalls: FromDuration(d.Run.SleepBetweenCalls),
			Temperature:       d.Run.Temperature,
			MaxTokens:         d.Run.MaxTokens,
		},
		Retry: RetryConfig{
			InitialInterval: FromDuration(d.Retry.InitialInterval),
			MaxInterval:     FromDuration(d.Retry.MaxInterval),
			Multiplier:      d.Retry.Multiplier,
		},
		Cache: CacheConfig{TTL: FromDuration(d.Cache.TTL)},
		Log: LogConfig{
			Level:         d.Observability.LogLevel,
			Format:        d.Observability.LogFormat,
			RedactPrompts: d.Observability.RedactPrompts,
		},
		Resume: string(orchestrator.ResumeRetryFailed),
	}
}

// Load reads the batch file at path, applies the environment and
// validates the result. The .env files are loaded first.
func Load(path string) (*Batch, error) {
	if err := LoadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, err
	}
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment and no .env handling.
func LoadWith(path string, lookup func(string) (string, bool)) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}

	b := Default()
	if err := decode(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidBatch, path, err)
	}
	b.dir = filepath.Dir(path)

	if err := applyEnvOverrides(&b, lookup); err != nil {
		return nil, err
	}
	b.normalize()
	b.Provider.apiKey = lookupTrim(lookup, b.Provider.APIKeyEnv)

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// decode rejects unknown members so typos in the batch file surface.
func decode(data []byte, b *Batch) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(b); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after batch object")
	}
	return nil
}

// normalize fills values derived from others.
func (b *Batch) normalize() {
	b.Provider.Name = canonicalProvider(b.Provider.Name)
	if b.Provider.APIKeyEnv == "" {
		b.Provider.APIKeyEnv = defaultKeyEnv(b.Provider.Name)
	}
	if b.Provider.Endpoint == "" {
		b.Provider.Endpoint = configuration.DefaultEndpoint(b.Provider.Name)
	}
}

// Validate checks the struct constraints.
func (b *Batch) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBatch, err)
	}
	return nil
}

// HasAPIKey reports whether the key variable was set.
func (b *Batch) HasAPIKey() bool { return b.Provider.apiKey != "" }

// ResumePolicy returns the configured resume policy.
func (b *Batch) ResumePolicy() orchestrator.ResumePolicy {
	p, err := orchestrator.ParseResumePolicy(b.Resume)
	if err != nil {
		return orchestrator.ResumeRetryFailed
	}
	return p
}

// Resolve returns p relative to the batch file directory. Absolute and
// empty paths are returned unchanged.
func (b *Batch) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(b.dir, p)
}

// ClientConfig derives the immutable LLM client configuration.
func (b *Batch) ClientConfig() configuration.Config {
	return configuration.Config{
		Provider: configuration.ProviderConfig{
			Name:      b.Provider.Name,
			Endpoint:  b.Provider.Endpoint,
			Model:     b.Provider.Model,
			APIKey:    b.Provider.apiKey,
			APIKeyEnv: b.Provider.APIKeyEnv,
			Headers:   b.Provider.Headers,
		},
		Run: configuration.RunConfig{
			MaxRetries:        b.Run.MaxRetries,
			Timeout:           b.Run.Timeout.Duration(),
			SleepBetweenCalls: b.Run.SleepBetweenCalls.Duration(),
			Temperature:       b.Run.Temperature,
			MaxTokens:         b.Run.MaxTokens,
		},
		Retry: configuration.RetryConfig{
			InitialInterval: b.Retry.InitialInterval.Duration(),
			MaxInterval:     b.Retry.MaxInterval.Duration(),
			Multiplier:      b.Retry.Multiplier,
			UseJitter:       b.Retry.Jitter,
		},
		RateLimit: configuration.RateLimitConfig{
			RequestsPerMinute: b.RateLimit.RequestsPerMinute,
			Burst:             b.RateLimit.Burst,
		},
		Cache: configuration.CacheConfig{
			Enabled:       b.Cache.Enabled,
			TTL:           b.Cache.TTL.Duration(),
			RedisAddr:     b.Cache.RedisAddr,
			RedisPassword: b.Cache.redisPassword,
			RedisDB:       b.Cache.RedisDB,
		},
		Observability: configuration.ObservabilityConfig{
			LogLevel:      b.Log.Level,
			LogFormat:     b.Log.Format,
			RedactPrompts: b.Log.RedactPrompts,
		},
	}
}

// canonicalProvider accepts "claude" as a name for the Anthropic API.
func canonicalProvider(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "claude" {
		return configuration.ProviderAnthropic
	}
	return name
}

func defaultKeyEnv(provider string) string {
	switch provider {
	case configuration.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}
