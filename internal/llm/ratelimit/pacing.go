// Package ratelimit paces requests to the provider. Every attempt that
// reaches the network first waits a fixed pause and, when configured, a
// token from a local token bucket.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/strategybench/internal/llm/configuration"
	"github.com/ahrav/strategybench/internal/llm/transport"
)

var errNegativePause = errors.New("pause must be >= 0")

// Pacer implements the pacing middleware.
type Pacer struct {
	pause   time.Duration
	limiter *rate.Limiter // nil when no token bucket is configured
	logger  *slog.Logger

	waits     atomic.Int64
	waitNanos atomic.Int64
}

// NewPacer creates a pacer that sleeps pause before every attempt and, when
// cfg enables it, waits on a requests-per-minute token bucket.
func NewPacer(pause time.Duration, cfg configuration.RateLimitConfig) (*Pacer, error) {
	if pause < 0 {
		return nil, fmt.Errorf("%w, got %v", errNegativePause, pause)
	}

	p := &Pacer{
		pause:  pause,
		logger: slog.Default().With("component", "pacing"),
	}
	if cfg.Enabled() {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), burst)
	}
	return p, nil
}

// Middleware returns the pacing middleware function.
func (p *Pacer) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := p.Wait(ctx); err != nil {
				return nil, err
			}
			return next.Handle(ctx, req)
		})
	}
}

// Wait blocks for the pause and then for a token. It returns ctx.Err() if
// the context ends first.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		p.waits.Add(1)
		p.waitNanos.Add(int64(time.Since(start)))
	}()

	if p.pause > 0 {
		timer := time.NewTimer(p.pause)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// rate.Limiter refuses waits that would outlast the context
			// deadline; treat that as the deadline itself.
			p.logger.Debug("token wait refused", "error", err)
			return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
	}
	return nil
}

// Stats holds pacing metrics.
type Stats struct {
	Waits     int64         `json:"waits"`
	TotalWait time.Duration `json:"total_wait"`
}

// Stats returns a snapshot of the pacing metrics.
func (p *Pacer) Stats() Stats {
	return Stats{
		Waits:     p.waits.Load(),
		TotalWait: time.Duration(p.waitNanos.Load()),
	}
}
