package engine

import "time"

const (
	baseRetryDelay = 15 * time.Second
	maxRetryDelay  = 30 * time.Minute
	maxRetryJitter = 3 * time.Second

	// After this many attempts the exponential curve is abandoned for a
	// fixed slow probe: keep trying forever, just not aggressively.
	maxGrowthAttempts = 6
)

// retryDelay computes the wait before the next attempt.
// attemptCount is the number of failures so far, starting at 1.
func retryDelay(attemptCount int, jitter func(max time.Duration) time.Duration) time.Duration {
	if attemptCount >= maxGrowthAttempts {
		return maxRetryDelay
	}

	d := baseRetryDelay * (1 << (attemptCount - 1))
	if jitter != nil {
		d += jitter(maxRetryJitter)
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}
