package configuration

import (
	"time"
)

// Run defaults.
const (
	DefaultMaxRetries        = 3
	DefaultTimeout           = 60 * time.Second
	DefaultSleepBetweenCalls = 500 * time.Millisecond
	DefaultTemperature       = 0.7
	DefaultMaxTokens         = 2000
)

// Retry defaults. The schedule doubles from one second: 1s, 2s, 4s.
const (
	DefaultInitialInterval   = 1 * time.Second
	DefaultMaxInterval       = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// Cache defaults.
const (
	DefaultCacheTTL = 7 * 24 * time.Hour
)

// Default endpoints per provider.
const (
	DefaultOpenAIEndpoint    = "https://api.openai.com/v1"
	DefaultAnthropicEndpoint = "https://api.anthropic.com/v1"
)

// DefaultConfig returns a configuration for provider with the batch
// defaults filled in. The caller supplies the model and key.
func DefaultConfig(provider string) Config {
	return Config{
		Provider: ProviderConfig{
			Name:     provider,
			Endpoint: DefaultEndpoint(provider),
		},
		Run: RunConfig{
			MaxRetries:        DefaultMaxRetries,
			Timeout:           DefaultTimeout,
			SleepBetweenCalls: DefaultSleepBetweenCalls,
			Temperature:       DefaultTemperature,
			MaxTokens:         DefaultMaxTokens,
		},
		Retry: RetryConfig{
			InitialInterval: DefaultInitialInterval,
			MaxInterval:     DefaultMaxInterval,
			Multiplier:      DefaultBackoffMultiplier,
		},
		Cache: CacheConfig{
			TTL: DefaultCacheTTL,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			LogFormat:     "text",
			RedactPrompts: true,
		},
	}
}

// DefaultEndpoint returns the public endpoint of provider, or "" when the
// provider is unknown.
func DefaultEndpoint(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return DefaultOpenAIEndpoint
	case ProviderAnthropic:
		return DefaultAnthropicEndpoint
	default:
		return ""
	}
}
