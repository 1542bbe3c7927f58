package errors

import (
	"errors"
	"fmt"
)

// Kind distinguishes the two ways a call can end without output.
type Kind string

const (
	// KindRejected means the provider refused the request permanently.
	// No further attempts were made.
	KindRejected Kind = "rejected"

	// KindExhausted means every allowed attempt failed transiently.
	KindExhausted Kind = "exhausted"
)

var (
	// ErrRetriesExhausted indicates the attempt budget ran out.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrRequestRejected indicates a non-transient provider failure.
	ErrRequestRejected = errors.New("request rejected")
)

// APIError is the terminal failure of a client call. The caller records it
// against the question and moves on.
type APIError struct {
	Kind       Kind      `json:"kind"`
	Type       ErrorType `json:"type"`
	Attempts   int       `json:"attempts"`
	StatusCode int       `json:"status_code,omitempty"`
	Cause      error     `json:"-"`
}

// NewAPIError builds the terminal error for cause after attempts tries.
func NewAPIError(kind Kind, attempts int, cause error) *APIError {
	c := ClassifyError(cause)
	return &APIError{
		Kind:       kind,
		Type:       c.Type,
		Attempts:   attempts,
		StatusCode: c.StatusCode,
		Cause:      cause,
	}
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindExhausted:
		return fmt.Sprintf("%v after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Cause)
	default:
		if e.StatusCode != 0 {
			return fmt.Sprintf("%v (status %d): %v", ErrRequestRejected, e.StatusCode, e.Cause)
		}
		return fmt.Sprintf("%v: %v", ErrRequestRejected, e.Cause)
	}
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is.
func (e *APIError) Unwrap() []error {
	sentinel := ErrRequestRejected
	if e.Kind == KindExhausted {
		sentinel = ErrRetriesExhausted
	}
	if e.Cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Cause}
}
