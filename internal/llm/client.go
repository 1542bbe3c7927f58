// Package llm provides the resilient client a benchmark run uses to obtain
// model answers. One call renders to one chat completion request that passes
// through a middleware chain:
//
//	logging -> cache -> retry -> pacing -> core handler -> provider
//
// The chain guarantees bounded attempts, a pause before every attempt that
// reaches the network and a per-attempt timeout. A call ends with the model
// output, the caller's context error, or a *errors.APIError.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ahrav/strategybench/internal/llm/cache"
	"github.com/ahrav/strategybench/internal/llm/configuration"
	llmerrors "github.com/ahrav/strategybench/internal/llm/errors"
	"github.com/ahrav/strategybench/internal/llm/providers"
	"github.com/ahrav/strategybench/internal/llm/ratelimit"
	"github.com/ahrav/strategybench/internal/llm/retry"
	"github.com/ahrav/strategybench/internal/llm/transport"
	"github.com/ahrav/strategybench/internal/prompt"
)

// Client sends rendered prompts to the configured provider.
type Client struct {
	cfg     configuration.Config
	handler transport.Handler

	retrier *retry.Retrier
	pacer   *ratelimit.Pacer
	cache   *cache.Cache

	closers []io.Closer
	logger  *slog.Logger
}

type clientOptions struct {
	provider   transport.Provider
	cacheStore cache.Store
	logger     *slog.Logger
}

// Option customizes client construction.
type Option func(*clientOptions)

// WithProvider replaces the provider built from configuration. Tests use it
// to inject fakes.
func WithProvider(p transport.Provider) Option {
	return func(o *clientOptions) { o.provider = p }
}

// WithCacheStore supplies the cache backend instead of dialing Redis.
func WithCacheStore(s cache.Store) Option {
	return func(o *clientOptions) { o.cacheStore = s }
}

// WithLogger sets the logger used for request logs.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// NewClient validates cfg and assembles the middleware chain.
func NewClient(cfg configuration.Config, opts ...Option) (*Client, error) {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	if o.provider == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		p, err := providers.NewProvider(cfg.Provider, cfg.HTTPClient)
		if err != nil {
			return nil, err
		}
		o.provider = p
	}

	retrier, err := retry.NewRetrier(cfg.Retry, cfg.Run.Attempts())
	if err != nil {
		return nil, fmt.Errorf("configure retry: %w", err)
	}
	pacer, err := ratelimit.NewPacer(cfg.Run.SleepBetweenCalls, cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("configure pacing: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		retrier: retrier,
		pacer:   pacer,
		logger:  o.logger.With("component", "llm"),
	}

	store := o.cacheStore
	if store == nil && cfg.Cache.Enabled {
		rs, err := cache.DialRedis(context.Background(), cfg.Cache)
		if err != nil {
			c.logger.Warn("redis connection failed, cache disabled", "error", err)
		} else {
			store = rs
			c.closers = append(c.closers, rs)
		}
	}
	c.cache = cache.New(store, cfg.Cache.TTL)

	core := transport.NewCoreHandler(providers.NewRouter(o.provider))
	c.handler = transport.Chain(core,
		NewLoggingMiddleware(cfg.Observability, o.logger),
		c.cache.Middleware(),
		retrier.Middleware(),
		pacer.Middleware(),
	)
	c.logger.Debug("client ready",
		"provider", cfg.Provider.Name,
		"model", cfg.Provider.Model,
		"max_attempts", c.MaxAttempts(),
		"cache", c.cache.Enabled())
	return c, nil
}

// Send obtains the model output for p.
//
// The error is ctx.Err() when the caller's context ended, and a
// *llmerrors.APIError otherwise.
func (c *Client) Send(ctx context.Context, p prompt.Prompt) (string, error) {
	req := &transport.Request{
		Provider:    c.cfg.Provider.Name,
		Model:       c.cfg.Provider.Model,
		System:      p.System,
		User:        p.User,
		MaxTokens:   c.cfg.Run.MaxTokens,
		Temperature: c.cfg.Run.Temperature,
		Timeout:     c.cfg.Run.Timeout,
		Labels:      labelsFrom(ctx),
	}

	resp, err := c.handler.Handle(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var apiErr *llmerrors.APIError
		if errors.As(err, &apiErr) {
			return "", apiErr
		}
		return "", llmerrors.NewAPIError(llmerrors.KindRejected, 0, err)
	}
	return resp.Content, nil
}

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string { return c.cfg.Provider.Model }

// MaxAttempts returns the attempt budget of one Send.
func (c *Client) MaxAttempts() int { return c.retrier.MaxAttempts() }

// Stats aggregates the middleware metrics.
type Stats struct {
	Retry  retry.RetryStats `json:"retry"`
	Pacing ratelimit.Stats  `json:"pacing"`
	Cache  cache.Stats      `json:"cache"`
}

// Stats returns a snapshot of the client metrics.
func (c *Client) Stats() Stats {
	return Stats{
		Retry:  c.retrier.Stats(),
		Pacing: c.pacer.Stats(),
		Cache:  c.cache.Stats(),
	}
}

// Close releases the cache connection, if any.
func (c *Client) Close() error {
	var errs []error
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}

type labelsKey struct{}

// WithLabels returns a context whose Send calls carry the given key/value
// pairs into request logs.
func WithLabels(ctx context.Context, kv ...string) context.Context {
	labels := make(map[string]string, len(kv)/2)
	for k, v := range labelsFrom(ctx) {
		labels[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		labels[kv[i]] = kv[i+1]
	}
	return context.WithValue(ctx, labelsKey{}, labels)
}

func labelsFrom(ctx context.Context) map[string]string {
	labels, _ := ctx.Value(labelsKey{}).(map[string]string)
	return labels
}
