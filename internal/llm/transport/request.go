package transport

import (
	"time"
)

// Request is one chat completion call as it travels through the middleware
// chain. Middleware may read every field but only the core handler acts on
// Timeout.
type Request struct {
	// Provider identifies which LLM service to use.
	Provider string `json:"provider"` // "openai"|"anthropic"
	// Model specifies the exact model version to use.
	Model string `json:"model"`

	System string `json:"system,omitempty"`
	User   string `json:"user"`

	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`

	// Timeout bounds a single attempt. Zero means no per-attempt bound.
	Timeout time.Duration `json:"timeout"`

	// Labels carry caller correlation data (strategy, category, index)
	// into request logs. They never reach the provider.
	Labels map[string]string `json:"-"`
}

// Response is the normalized output of any provider.
type Response struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Model        string `json:"model,omitempty"`
	// ProviderRequestID enables cross-system correlation.
	ProviderRequestID string `json:"provider_request_id,omitempty"`
	Usage             Usage  `json:"usage"`

	// Cached marks a response served without a provider call.
	Cached bool `json:"-"`
}

// Usage provides consistent usage metrics across providers.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	LatencyMs        int64 `json:"latency_ms"`
}
