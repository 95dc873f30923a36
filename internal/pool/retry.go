package pool

import (
	"math/rand"
	"time"
)

const (
	jitterFloor = 0.8
	jitterSpan  = 0.4
)

// RetryPolicy describes how often and how many times a failed attempt is
// retried. Zero values fall back to sensible defaults.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt, so a
	// task is tried at most MaxRetries+1 times.
	MaxRetries int

	// Base is the backoff for the first retry; each further retry doubles it.
	Base time.Duration
}

// DefaultRetryPolicy returns the pool's default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Base:       100 * time.Millisecond,
	}
}

// MaxAttempts returns the total attempt budget per task
func (p RetryPolicy) MaxAttempts() int {
	return p.MaxRetries + 1
}

// Backoff returns the delay before retrying after attempt k (1-indexed):
// base * 2^(k-1), scaled by uniform jitter in [0.8, 1.2). The jitter keeps
// concurrent workers from synchronizing their retry storms.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.Base) * float64(uint64(1)<<(attempt-1))
	jitter := jitterFloor + jitterSpan*rand.Float64()
	return time.Duration(delay * jitter)
}
