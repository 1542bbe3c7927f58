package cache

// Stats holds performance metrics for the cache middleware.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
	// HitRate is the ratio of hits to lookups (hits + misses).
	HitRate float64 `json:"hit_rate"`

	// Pool counters are filled only for a RedisStore.
	PoolHits       uint32 `json:"pool_hits,omitempty"`
	PoolMisses     uint32 `json:"pool_misses,omitempty"`
	PoolTimeouts   uint32 `json:"pool_timeouts,omitempty"`
	PoolTotalConns uint32 `json:"pool_total_conns,omitempty"`
}

// Stats returns current cache performance metrics.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	stats := Stats{
		Hits:    hits,
		Misses:  misses,
		Errors:  c.errors.Load(),
		HitRate: hitRate,
	}

	if rs, ok := c.store.(*RedisStore); ok {
		pool := rs.PoolStats()
		stats.PoolHits = pool.Hits
		stats.PoolMisses = pool.Misses
		stats.PoolTimeouts = pool.Timeouts
		stats.PoolTotalConns = pool.TotalConns
	}
	return stats
}
