package retry

import (
	"sync/atomic"
	"time"
)

// retryStats provides thread-safe retry metrics using atomic operations.
type retryStats struct {
	totalAttempts           atomic.Int64 // Every attempt, first tries included
	successfulRetries       atomic.Int64 // Calls that succeeded after retry
	failedRetries           atomic.Int64 // Calls that exhausted every attempt
	successfulFirstAttempts atomic.Int64 // Calls that succeeded on the first attempt
	rejected                atomic.Int64 // Calls ended by a non-retryable error
	maxBackoff              atomic.Int64 // Longest backoff in nanoseconds
	totalBackoff            atomic.Int64 // Sum of backoffs in nanoseconds
}

// RetryStats holds aggregated metrics for retry middleware activity.
type RetryStats struct {
	// TotalAttempts is the number of attempts, including initial attempts and all retries.
	TotalAttempts int64 `json:"total_attempts"`
	// SuccessfulFirstAttempts is the count of calls that needed no retry.
	SuccessfulFirstAttempts int64 `json:"successful_first_attempts"`
	// SuccessfulRetries is the count of calls that succeeded only after one or more retries.
	SuccessfulRetries int64 `json:"successful_retries"`
	// FailedRetries is the count of calls that failed after exhausting all attempts.
	FailedRetries int64 `json:"failed_retries"`
	// Rejected is the count of calls that failed permanently.
	Rejected int64 `json:"rejected"`
	// AverageAttempts is the average number of attempts per call.
	AverageAttempts float64 `json:"average_attempts"`
	// MaxBackoff is the longest backoff duration applied during retries.
	MaxBackoff time.Duration `json:"max_backoff"`
	// TotalBackoff is the time spent waiting between attempts.
	TotalBackoff time.Duration `json:"total_backoff"`
}

// recordBackoffMetrics records backoff duration for monitoring.
func (r *Retrier) recordBackoffMetrics(backoff time.Duration) {
	backoffNanos := backoff.Nanoseconds()
	r.stats.totalBackoff.Add(backoffNanos)
	for {
		current := r.stats.maxBackoff.Load()
		if backoffNanos <= current {
			break
		}
		if r.stats.maxBackoff.CompareAndSwap(current, backoffNanos) {
			break
		}
	}
}

// Stats returns a snapshot of the current retry statistics.
func (r *Retrier) Stats() RetryStats {
	totalAttempts := r.stats.totalAttempts.Load()
	successfulRetries := r.stats.successfulRetries.Load()
	failedRetries := r.stats.failedRetries.Load()
	successfulFirstAttempts := r.stats.successfulFirstAttempts.Load()
	rejected := r.stats.rejected.Load()

	var averageAttempts float64
	if calls := successfulFirstAttempts + successfulRetries + failedRetries + rejected; calls > 0 {
		averageAttempts = float64(totalAttempts) / float64(calls)
	}

	return RetryStats{
		TotalAttempts:           totalAttempts,
		SuccessfulFirstAttempts: successfulFirstAttempts,
		SuccessfulRetries:       successfulRetries,
		FailedRetries:           failedRetries,
		Rejected:                rejected,
		AverageAttempts:         averageAttempts,
		MaxBackoff:              time.Duration(r.stats.maxBackoff.Load()),
		TotalBackoff:            time.Duration(r.stats.totalBackoff.Load()),
	}
}
