package ghapp

import (
	"context"
	"time"

	gogithub "github.com/google/go-github/v60/github"
)

// throttleThreshold is the remaining request count below which we throttle.
const throttleThreshold = 100

// maxThrottleWait caps how long a single throttle pause may last.
const maxThrottleWait = 60 * time.Second

// RateLimitInfo holds rate limit information observed on a GitHub API response.
type RateLimitInfo struct {
	Remaining int
	Reset     time.Time
	Observed  time.Time
}

// ParseRateLimit extracts rate limit information from a go-github response.
// Returns nil for nil responses.
func ParseRateLimit(resp *gogithub.Response) *RateLimitInfo {
	if resp == nil {
		return nil
	}
	return &RateLimitInfo{
		Remaining: resp.Rate.Remaining,
		Reset:     resp.Rate.Reset.Time,
		Observed:  time.Now(),
	}
}

// ShouldThrottle returns true when the remaining rate limit is below the
// safety threshold, indicating we should slow down requests.
func (r *RateLimitInfo) ShouldThrottle() bool {
	if r == nil {
		return false
	}
	return r.Remaining > 0 && r.Remaining < throttleThreshold
}

// WaitDuration returns how long to wait before the rate limit resets, capped
// at maxThrottleWait. Returns zero if the reset time is in the past.
func (r *RateLimitInfo) WaitDuration() time.Duration {
	if r == nil {
		return 0
	}
	d := time.Until(r.Reset)
	if d < 0 {
		return 0
	}
	if d > maxThrottleWait {
		return maxThrottleWait
	}
	return d
}

// ThrottleWait sleeps for the throttle window if the observed rate limit
// calls for it, respecting context cancellation.
func ThrottleWait(ctx context.Context, info *RateLimitInfo) error {
	if !info.ShouldThrottle() {
		return nil
	}
	wait := info.WaitDuration()
	if wait == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
