// Package retry provides bounded exponential backoff, used both for
// in-process retries of GitHub API calls and for spacing out reruns of
// failed indexing jobs.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

const (
	// DefaultMaxAttempts applies when a caller passes a non-positive count.
	DefaultMaxAttempts = 3

	// baseDelay is the first backoff step.
	baseDelay = 1 * time.Second

	// maxDelay caps the progression.
	maxDelay = 10 * time.Second

	// jitterFraction is the maximum fraction of the delay added as jitter,
	// spreading out concurrent workers that failed at the same instant.
	jitterFraction = 0.25
)

// Do runs fn up to maxAttempts times, sleeping Backoff(attempt) between
// failures. It stops early on context cancellation and returns the last
// error when every attempt fails.
func Do(ctx context.Context, maxAttempts int, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		// No sleep after the final attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(Backoff(attempt)):
			}
		}
	}

	return lastErr
}

// Backoff returns the delay for a 0-indexed attempt: 1s, 2s, 4s, ... capped
// at maxDelay, plus jitter. The job queue uses the same progression to pick
// RunAfter times when rescheduling a failed job.
func Backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}

	jitter := time.Duration(float64(delay) * jitterFraction * rand.Float64())
	return delay + jitter
}
