// Package transport defines the request pipeline of the LLM client: the
// request and response types, the Handler and Middleware abstractions and
// the core handler that applies the per-attempt deadline and dispatches to a
// provider.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider sends a request to one LLM service.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Router selects the provider for a request.
type Router interface {
	Pick(provider string) (Provider, error)
}

// Handler processes LLM requests through a composable middleware pipeline.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms Handler into enhanced Handler for composable behavior.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler.
// Middleware executes in the order provided with first middleware outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// ErrAttemptTimeout indicates that a single attempt ran past its deadline
// while the caller's context was still live.
var ErrAttemptTimeout = errors.New("attempt timed out")

// NewCoreHandler creates the innermost handler. It bounds each attempt by
// req.Timeout and hands the request to the routed provider.
func NewCoreHandler(router Router) Handler {
	return &coreHandler{router: router}
}

type coreHandler struct {
	router Router
}

// Handle implements Handler.
func (h *coreHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	provider, err := h.router.Pick(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to select provider: %w", err)
	}

	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := provider.Complete(reqCtx, req)
	latency := time.Since(start)

	if err != nil {
		// A deadline that belongs to this attempt alone is a transient
		// timeout; the caller's own cancellation passes through untouched.
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrAttemptTimeout, req.Timeout, context.DeadlineExceeded)
		}
		return nil, err
	}

	resp.Usage.LatencyMs = latency.Milliseconds()
	return resp, nil
}
