package errors_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/ahrav/strategybench/internal/llm/errors"
)

// TestClassifyStatus verifies the HTTP status to error type mapping.
func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code      int
		want      llmerrors.ErrorType
		transient bool
	}{
		{http.StatusTooManyRequests, llmerrors.ErrorTypeRateLimit, true},
		{http.StatusUnauthorized, llmerrors.ErrorTypeAuth, false},
		{http.StatusForbidden, llmerrors.ErrorTypePermission, false},
		{http.StatusRequestTimeout, llmerrors.ErrorTypeTimeout, true},
		{http.StatusGatewayTimeout, llmerrors.ErrorTypeTimeout, true},
		{http.StatusPaymentRequired, llmerrors.ErrorTypeQuota, false},
		{http.StatusInternalServerError, llmerrors.ErrorTypeProvider, true},
		{http.StatusServiceUnavailable, llmerrors.ErrorTypeProvider, true},
		{http.StatusBadRequest, llmerrors.ErrorTypeValidation, false},
		{http.StatusNotFound, llmerrors.ErrorTypeValidation, false},
		{http.StatusOK, llmerrors.ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			got := llmerrors.ClassifyStatus(tt.code)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.transient, got.Transient())
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// TestClassifyError verifies transient and permanent classification across
// typed, sentinel and untyped errors.
func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  llmerrors.ErrorType
		retryable bool
	}{
		{
			name:      "provider 503",
			err:       &llmerrors.ProviderError{Provider: "openai", StatusCode: 503, Type: llmerrors.ErrorTypeProvider},
			wantType:  llmerrors.ErrorTypeProvider,
			retryable: true,
		},
		{
			name:     "provider 401",
			err:      &llmerrors.ProviderError{Provider: "openai", StatusCode: 401, Type: llmerrors.ErrorTypeAuth},
			wantType: llmerrors.ErrorTypeAuth,
		},
		{
			name:      "wrapped rate limit",
			err:       fmt.Errorf("send: %w", &llmerrors.RateLimitError{Provider: "openai", RetryAfter: 3}),
			wantType:  llmerrors.ErrorTypeRateLimit,
			retryable: true,
		},
		{
			name:      "net timeout",
			err:       &net.OpError{Op: "read", Err: timeoutErr{}},
			wantType:  llmerrors.ErrorTypeTimeout,
			retryable: true,
		},
		{
			name:      "connection refused",
			err:       &net.OpError{Op: "dial", Err: errors.New("connection refused")},
			wantType:  llmerrors.ErrorTypeNetwork,
			retryable: true,
		},
		{
			name:      "deadline",
			err:       fmt.Errorf("attempt: %w", context.DeadlineExceeded),
			wantType:  llmerrors.ErrorTypeTimeout,
			retryable: true,
		},
		{
			name:      "unexpected eof",
			err:       io.ErrUnexpectedEOF,
			wantType:  llmerrors.ErrorTypeNetwork,
			retryable: true,
		},
		{
			name:     "canceled",
			err:      context.Canceled,
			wantType: llmerrors.ErrorTypeUnknown,
		},
		{
			name:     "unknown provider",
			err:      llmerrors.ErrUnknownProvider,
			wantType: llmerrors.ErrorTypeUnknown,
		},
		{
			name:      "rate limit text",
			err:       errors.New("Rate limit reached for requests"),
			wantType:  llmerrors.ErrorTypeRateLimit,
			retryable: true,
		},
		{
			name:     "quota text",
			err:      errors.New("insufficient quota"),
			wantType: llmerrors.ErrorTypeQuota,
		},
		{
			name:     "opaque",
			err:      errors.New("boom"),
			wantType: llmerrors.ErrorTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := llmerrors.ClassifyError(tt.err)
			assert.Equal(t, tt.wantType, c.Type)
			assert.Equal(t, tt.retryable, c.Retryable)
			assert.Equal(t, tt.retryable, llmerrors.IsTransient(tt.err))
		})
	}

	assert.Equal(t, llmerrors.Classification{}, llmerrors.ClassifyError(nil))
}

// TestClassifyError_RetryAfter verifies that provider delays are surfaced.
func TestClassifyError_RetryAfter(t *testing.T) {
	err := &llmerrors.ProviderError{Provider: "anthropic", StatusCode: 429, Type: llmerrors.ErrorTypeRateLimit, RetryAfter: 7}
	c := llmerrors.ClassifyError(err)
	assert.Equal(t, 7*time.Second, c.RetryAfter)
	assert.Equal(t, 429, c.StatusCode)

	assert.ErrorIs(t, &llmerrors.RateLimitError{Provider: "local", LocalLimit: true}, llmerrors.ErrRateLimitExceeded)
}

// TestAPIError verifies the terminal error's matching and message.
func TestAPIError(t *testing.T) {
	cause := &llmerrors.ProviderError{Provider: "openai", StatusCode: 400, Message: "bad", Type: llmerrors.ErrorTypeValidation}

	rejected := llmerrors.NewAPIError(llmerrors.KindRejected, 1, cause)
	assert.ErrorIs(t, rejected, llmerrors.ErrRequestRejected)
	assert.NotErrorIs(t, rejected, llmerrors.ErrRetriesExhausted)
	assert.Equal(t, 400, rejected.StatusCode)
	assert.Equal(t, llmerrors.ErrorTypeValidation, rejected.Type)
	assert.Contains(t, rejected.Error(), "status 400")

	var pe *llmerrors.ProviderError
	require.ErrorAs(t, rejected, &pe)
	assert.Equal(t, "bad", pe.Message)

	exhausted := llmerrors.NewAPIError(llmerrors.KindExhausted, 3, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, exhausted, llmerrors.ErrRetriesExhausted)
	assert.ErrorIs(t, exhausted, io.ErrUnexpectedEOF)
	assert.Contains(t, exhausted.Error(), "after 3 attempts")
}
