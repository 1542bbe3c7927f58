// Package cache provides response caching middleware for LLM calls. A
// repeated request with identical routing and prompt is served from the
// store without reaching the provider. Store failures degrade to a bypass.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ahrav/strategybench/internal/llm/transport"
)

// Store persists cached entries.
type Store interface {
	// Get returns the entry at key. A miss is (nil, nil).
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
}

// Cache implements response caching over a Store.
type Cache struct {
	store Store
	ttl   time.Duration

	logger *slog.Logger

	// Metrics counters accessed atomically.
	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// New creates a cache over store. A nil store yields a pass-through cache.
func New(store Store, ttl time.Duration) *Cache {
	return &Cache{
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "cache"),
	}
}

// Enabled reports whether lookups reach a store.
func (c *Cache) Enabled() bool { return c.store != nil }

// Middleware returns the caching middleware function.
func (c *Cache) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if c.store == nil {
				return next.Handle(ctx, req)
			}

			key, err := buildKey(req)
			if err != nil {
				c.errors.Add(1)
				c.logger.Warn("cache key build failed", "error", err)
				return next.Handle(ctx, req)
			}

			entry, err := c.store.Get(ctx, key)
			switch {
			case err != nil:
				c.errors.Add(1)
				c.logger.Warn("cache get error", "error", err, "key", key)
			case entry != nil:
				c.hits.Add(1)
				c.logger.Debug("cache hit", "key", key, "provider", req.Provider, "model", req.Model)
				return entry.toResponse(), nil
			default:
				c.misses.Add(1)
			}

			resp, err := next.Handle(ctx, req)
			if err != nil {
				return nil, err
			}

			if setErr := c.store.Set(ctx, key, newEntry(resp, time.Now()), c.ttl); setErr != nil {
				c.errors.Add(1)
				c.logger.Warn("cache set error", "error", setErr, "key", key)
			}
			return resp, nil
		})
	}
}
