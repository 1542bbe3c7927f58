package llm

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/strategybench/internal/llm/configuration"
	llmerrors "github.com/ahrav/strategybench/internal/llm/errors"
	"github.com/ahrav/strategybench/internal/llm/transport"
)

const responsePreviewLen = 200

// LoggingMiddleware writes structured logs for each call, with prompt
// redaction controlled by configuration.
type LoggingMiddleware struct {
	logger        *slog.Logger
	redactPrompts bool
}

// NewLoggingMiddleware creates request logging middleware.
func NewLoggingMiddleware(cfg configuration.ObservabilityConfig, logger *slog.Logger) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	lm := &LoggingMiddleware{
		logger:        logger.With("component", "llm.request"),
		redactPrompts: cfg.RedactPrompts,
	}
	return lm.Middleware
}

// Middleware wraps handlers with request logging.
func (m *LoggingMiddleware) Middleware(next transport.Handler) transport.Handler {
	return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		requestID := uuid.NewString()
		m.logRequest(ctx, req, requestID)

		start := time.Now()
		resp, err := next.Handle(ctx, req)
		duration := time.Since(start)

		if err != nil {
			m.handleError(ctx, req, err, requestID, duration)
		} else if resp != nil {
			m.handleSuccess(ctx, req, resp, requestID, duration)
		}
		return resp, err
	})
}

func (m *LoggingMiddleware) baseFields(req *transport.Request, requestID string) []any {
	fields := []any{
		"request_id", requestID,
		"provider", req.Provider,
		"model", req.Model,
	}
	keys := make([]string, 0, len(req.Labels))
	for k := range req.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, k, req.Labels[k])
	}
	return fields
}

func (m *LoggingMiddleware) logRequest(ctx context.Context, req *transport.Request, requestID string) {
	fields := append(m.baseFields(req, requestID),
		"max_tokens", req.MaxTokens,
		"temperature", req.Temperature,
		"timeout_seconds", req.Timeout.Seconds(),
	)

	if m.redactPrompts {
		fields = append(fields, "system_length", len(req.System), "user_length", len(req.User))
	} else {
		fields = append(fields, "system", req.System, "user", req.User)
	}

	m.logger.DebugContext(ctx, "LLM request started", fields...)
}

func (m *LoggingMiddleware) handleError(
	ctx context.Context,
	req *transport.Request,
	err error,
	requestID string,
	duration time.Duration,
) {
	fields := append(m.baseFields(req, requestID),
		"duration_ms", duration.Milliseconds(),
		"error", err.Error(),
	)

	var apiErr *llmerrors.APIError
	if errors.As(err, &apiErr) {
		fields = append(fields,
			"kind", apiErr.Kind,
			"error_type", apiErr.Type,
			"attempts", apiErr.Attempts,
			"status_code", apiErr.StatusCode)
	} else if ctx.Err() != nil {
		m.logger.InfoContext(ctx, "LLM request cancelled", fields...)
		return
	}

	m.logger.WarnContext(ctx, "LLM request failed", fields...)
}

func (m *LoggingMiddleware) handleSuccess(
	ctx context.Context,
	req *transport.Request,
	resp *transport.Response,
	requestID string,
	duration time.Duration,
) {
	fields := append(m.baseFields(req, requestID),
		"duration_ms", duration.Milliseconds(),
		"cached", resp.Cached,
		"finish_reason", resp.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_tokens", resp.Usage.TotalTokens,
		"provider_request_id", resp.ProviderRequestID,
	)

	if m.redactPrompts {
		fields = append(fields, "response_length", len(resp.Content))
	} else {
		content := resp.Content
		if r := []rune(content); len(r) > responsePreviewLen {
			content = string(r[:responsePreviewLen]) + "..."
		}
		fields = append(fields, "response_preview", content)
	}

	m.logger.InfoContext(ctx, "LLM request completed", fields...)
}
