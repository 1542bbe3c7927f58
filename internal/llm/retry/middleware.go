// Package retry bounds the attempts of one LLM call. Transient failures are
// retried with exponential backoff until the attempt budget runs out;
// permanent failures end the call at once.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/strategybench/internal/llm/configuration"
	llmerrors "github.com/ahrav/strategybench/internal/llm/errors"
	"github.com/ahrav/strategybench/internal/llm/transport"
)

var (
	errMaxAttemptsInvalid     = errors.New("maxAttempts must be greater than 0")
	errInitialIntervalInvalid = errors.New("initialInterval must be >= 0")
	errMaxIntervalInvalid     = errors.New("maxInterval must be >= initialInterval")
	errMultiplierInvalid      = errors.New("multiplier must be >= 1.0")
)

// Retrier implements retry logic with exponential backoff. It respects
// provider Retry-After guidance up to the configured maximum interval.
type Retrier struct {
	config      configuration.RetryConfig
	maxAttempts int
	logger      *slog.Logger
	stats       *retryStats
}

// NewRetrier creates a retrier that makes at most maxAttempts attempts per
// call.
func NewRetrier(cfg configuration.RetryConfig, maxAttempts int) (*Retrier, error) {
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, maxAttempts)
	}
	if cfg.InitialInterval < 0 {
		return nil, fmt.Errorf("%w, got %v", errInitialIntervalInvalid, cfg.InitialInterval)
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		return nil, fmt.Errorf("%w, MaxInterval: %v, InitialInterval: %v", errMaxIntervalInvalid, cfg.MaxInterval, cfg.InitialInterval)
	}
	if cfg.Multiplier < 1.0 {
		return nil, fmt.Errorf("%w, got %f", errMultiplierInvalid, cfg.Multiplier)
	}

	return &Retrier{
		config:      cfg,
		maxAttempts: maxAttempts,
		logger:      slog.Default().With("component", "retry"),
		stats:       &retryStats{},
	}, nil
}

// MaxAttempts returns the attempt budget of one call.
func (r *Retrier) MaxAttempts() int { return r.maxAttempts }

// Middleware returns the retry middleware function.
//
// The wrapped handler returns either a response, the caller's context error
// unchanged, or a *llmerrors.APIError describing why no response was
// produced.
func (r *Retrier) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			var lastErr error
			for attempt := 1; attempt <= r.maxAttempts; attempt++ {
				resp, err := next.Handle(ctx, req)
				r.stats.totalAttempts.Add(1)

				if err == nil {
					if attempt > 1 {
						r.stats.successfulRetries.Add(1)
						r.logger.Info("request succeeded after retry",
							"attempt", attempt,
							"provider", req.Provider,
							"model", req.Model)
					} else {
						r.stats.successfulFirstAttempts.Add(1)
					}
					return resp, nil
				}

				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}

				class := llmerrors.ClassifyError(err)
				if !class.Retryable {
					r.stats.rejected.Add(1)
					r.logger.Debug("non-retryable error",
						"error", err,
						"attempt", attempt,
						"provider", req.Provider)
					return nil, llmerrors.NewAPIError(llmerrors.KindRejected, attempt, err)
				}

				lastErr = err
				if attempt == r.maxAttempts {
					break
				}

				backoff := r.calculateBackoff(attempt, class.RetryAfter)
				r.recordBackoffMetrics(backoff)

				r.logger.Warn("retrying after backoff",
					"attempt", attempt,
					"max_attempts", r.maxAttempts,
					"backoff", backoff,
					"error_type", class.Type,
					"error", err,
					"provider", req.Provider)

				if err := sleep(ctx, backoff); err != nil {
					return nil, err
				}
			}

			r.stats.failedRetries.Add(1)
			return nil, llmerrors.NewAPIError(llmerrors.KindExhausted, r.maxAttempts, lastErr)
		})
	}
}

// sleep waits for d or until ctx is done, returning ctx.Err() in the latter
// case.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
