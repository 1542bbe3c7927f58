package retry

import (
	"math/rand/v2"
	"time"

	"github.com/ahrav/strategybench/internal/llm/configuration"
)

// calculateBackoff returns the delay after the given failed attempt. A
// provider Retry-After wins over the exponential schedule but is capped by
// MaxInterval.
func (r *Retrier) calculateBackoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, r.config.MaxInterval)
	}
	return ExponentialBackoff(attempt, r.config)
}

// ExponentialBackoff calculates the delay after the given attempt using
// exponential backoff with optional full jitter. Thread-safe using
// math/rand/v2. Returns zero for non-positive attempt numbers.
func ExponentialBackoff(attempt int, config configuration.RetryConfig) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := config.InitialInterval
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if backoff >= config.MaxInterval {
			backoff = config.MaxInterval
			break
		}
	}

	if config.UseJitter && backoff > 0 {
		// Full jitter: random between 0 and the calculated backoff.
		return time.Duration(rand.Int64N(int64(backoff) + 1)) // #nosec G404 -- non-cryptographic jitter is appropriate here
	}

	return backoff
}
