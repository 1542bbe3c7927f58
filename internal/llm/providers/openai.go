package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ahrav/strategybench/internal/llm/configuration"
	llmerrors "github.com/ahrav/strategybench/internal/llm/errors"
	"github.com/ahrav/strategybench/internal/llm/transport"
)

// OpenAIAdapter implements transport.Provider for OpenAI and any endpoint
// that speaks the chat/completions protocol.
type OpenAIAdapter struct {
	config configuration.ProviderConfig
	client *openai.Client
}

// NewOpenAIAdapter creates an OpenAI provider adapter.
// The endpoint may be given with or without the /chat/completions suffix.
func NewOpenAIAdapter(cfg configuration.ProviderConfig, httpClient *http.Client) *OpenAIAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = configuration.DefaultOpenAIEndpoint
	}
	cfg.Endpoint = strings.TrimSuffix(strings.TrimRight(cfg.Endpoint, "/"), "/chat/completions")

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.Endpoint
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if len(cfg.Headers) > 0 {
		httpClient = withHeaders(httpClient, cfg.Headers)
	}
	clientCfg.HTTPClient = httpClient

	return &OpenAIAdapter{config: cfg, client: openai.NewClientWithConfig(clientCfg)}
}

// Name returns the provider name.
func (a *OpenAIAdapter) Name() string { return configuration.ProviderOpenAI }

// Complete sends req as a chat completion.
func (a *OpenAIAdapter) Complete(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})

	completion, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, convertOpenAIError(err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", llmerrors.ErrEmptyResponse)
	}
	choice := completion.Choices[0]

	return &transport.Response{
		Content:           choice.Message.Content,
		FinishReason:      string(choice.FinishReason),
		Model:             completion.Model,
		ProviderRequestID: completion.ID,
		Usage: transport.Usage{
			PromptTokens:     int64(completion.Usage.PromptTokens),
			CompletionTokens: int64(completion.Usage.CompletionTokens),
			TotalTokens:      int64(completion.Usage.TotalTokens),
		},
	}, nil
}

// convertOpenAIError maps SDK errors carrying an HTTP status to
// ProviderError. Transport failures are returned unchanged so network
// classification still sees them.
func convertOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Type
		if s, ok := apiErr.Code.(string); ok && s != "" {
			code = s
		}
		return &llmerrors.ProviderError{
			Provider:   configuration.ProviderOpenAI,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Code:       code,
			Type:       classifyErrorType(apiErr.HTTPStatusCode, code),
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		msg := err.Error()
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &llmerrors.ProviderError{
			Provider:   configuration.ProviderOpenAI,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    msg,
			Type:       classifyErrorType(reqErr.HTTPStatusCode, ""),
		}
	}

	return fmt.Errorf("openai request failed: %w", err)
}

// headerTransport adds static headers to every outgoing request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for k, v := range t.headers {
		r.Header.Set(k, v)
	}
	return t.base.RoundTrip(r)
}

func withHeaders(c *http.Client, headers map[string]string) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone := *c
	clone.Transport = &headerTransport{base: base, headers: headers}
	return &clone
}
