package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ahrav/strategybench/internal/llm/configuration"
	llmerrors "github.com/ahrav/strategybench/internal/llm/errors"
	"github.com/ahrav/strategybench/internal/llm/transport"
)

// anthropicVersion is the Messages API version header value.
const anthropicVersion = "2023-06-01"

// AnthropicAdapter implements transport.Provider for Anthropic Claude models.
// It speaks the Messages API, where the system prompt travels in its own
// field rather than as a message.
type AnthropicAdapter struct {
	config configuration.ProviderConfig
	client *http.Client
}

// NewAnthropicAdapter creates an Anthropic provider adapter.
// If no endpoint is configured, it defaults to Anthropic's production API.
func NewAnthropicAdapter(cfg configuration.ProviderConfig, client *http.Client) *AnthropicAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = configuration.DefaultAnthropicEndpoint
	}
	cfg.Endpoint = strings.TrimSuffix(strings.TrimRight(cfg.Endpoint, "/"), "/messages")
	if client == nil {
		client = http.DefaultClient
	}
	return &AnthropicAdapter{config: cfg, client: client}
}

// Name returns the provider name.
func (a *AnthropicAdapter) Name() string { return configuration.ProviderAnthropic }

// Complete sends req to the Messages API.
func (a *AnthropicAdapter) Complete(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	httpReq, err := a.Build(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	return a.Parse(httpResp)
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

// Build constructs a Messages API request from req.
func (a *AnthropicAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	body := anthropicRequest{
		Model:       req.Model,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := a.config.Endpoint + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// Parse extracts normalized data from a Messages API response.
func (a *AnthropicAdapter) Parse(httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseAnthropicError(httpResp, body)
	}

	var resp struct {
		ID      string `json:"id"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Model      string `json:"model"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", llmerrors.ErrInvalidResponse, err)
	}

	var text strings.Builder
	found := false
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: no text content", llmerrors.ErrEmptyResponse)
	}

	requestID := httpResp.Header.Get("request-id")
	if requestID == "" {
		requestID = resp.ID
	}

	return &transport.Response{
		Content:           text.String(),
		FinishReason:      resp.StopReason,
		Model:             resp.Model,
		ProviderRequestID: requestID,
		Usage: transport.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

// parseAnthropicError converts Anthropic error responses to ProviderError.
func parseAnthropicError(httpResp *http.Response, body []byte) error {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	pe := &llmerrors.ProviderError{
		Provider:   configuration.ProviderAnthropic,
		StatusCode: httpResp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
		RetryAfter: parseRetryAfter(httpResp.Header, time.Now()),
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		pe.Message = errResp.Error.Message
		pe.Code = errResp.Error.Type
	}
	pe.Type = classifyErrorType(httpResp.StatusCode, pe.Code)
	return pe
}
