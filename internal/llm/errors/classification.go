package errors

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Classification is the retry guidance derived from a failed call.
type Classification struct {
	Type       ErrorType
	Retryable  bool
	StatusCode int
	// RetryAfter is the delay requested by the provider, zero when absent.
	RetryAfter time.Duration
}

// ClassifyStatus maps an HTTP status code to an error type.
func ClassifyStatus(code int) ErrorType {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case code == http.StatusUnauthorized:
		return ErrorTypeAuth
	case code == http.StatusForbidden:
		return ErrorTypePermission
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case code == http.StatusPaymentRequired:
		return ErrorTypeQuota
	case code >= 500:
		return ErrorTypeProvider
	case code >= 400:
		return ErrorTypeValidation
	default:
		return ErrorTypeUnknown
	}
}

// ClassifyError examines err and reports whether another attempt could
// succeed. Typed errors are checked first, then sentinels and transport
// failures, and finally message patterns for untyped errors.
func ClassifyError(err error) Classification {
	if err == nil {
		return Classification{}
	}

	if c, ok := classifyTypedErrors(err); ok {
		return c
	}
	if c, ok := classifySentinelErrors(err); ok {
		return c
	}
	return classifyStringPatternErrors(err)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool { return ClassifyError(err).Retryable }

func classifyTypedErrors(err error) (Classification, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return Classification{
			Type:       providerErr.Type,
			Retryable:  providerErr.IsRetryable(),
			StatusCode: providerErr.StatusCode,
			RetryAfter: providerErr.GetRetryAfter(),
		}, true
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return Classification{
			Type:       ErrorTypeRateLimit,
			Retryable:  true,
			StatusCode: http.StatusTooManyRequests,
			RetryAfter: rateLimitErr.GetRetryAfter(),
		}, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Classification{Type: ErrorTypeTimeout, Retryable: true}, true
		}
		return Classification{Type: ErrorTypeNetwork, Retryable: true}, true
	}

	return Classification{}, false
}

func classifySentinelErrors(err error) (Classification, bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Classification{Type: ErrorTypeTimeout, Retryable: true}, true
	case errors.Is(err, ErrRateLimitExceeded):
		return Classification{Type: ErrorTypeRateLimit, Retryable: true}, true
	case errors.Is(err, ErrProviderUnavailable):
		return Classification{Type: ErrorTypeProvider, Retryable: true}, true
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return Classification{Type: ErrorTypeNetwork, Retryable: true}, true
	case errors.Is(err, ErrInvalidResponse), errors.Is(err, ErrEmptyResponse):
		return Classification{Type: ErrorTypeProvider, Retryable: true}, true
	case errors.Is(err, ErrUnknownProvider), errors.Is(err, context.Canceled):
		return Classification{Type: ErrorTypeUnknown}, true
	}
	return Classification{}, false
}

func classifyStringPatternErrors(err error) Classification {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "rate limit"):
		return Classification{Type: ErrorTypeRateLimit, Retryable: true}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return Classification{Type: ErrorTypeTimeout, Retryable: true}
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication"):
		return Classification{Type: ErrorTypeAuth}
	case strings.Contains(msg, "forbidden") || strings.Contains(msg, "permission"):
		return Classification{Type: ErrorTypePermission}
	case strings.Contains(msg, "quota"):
		return Classification{Type: ErrorTypeQuota}
	case strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "network"):
		return Classification{Type: ErrorTypeNetwork, Retryable: true}
	default:
		return Classification{Type: ErrorTypeUnknown}
	}
}
