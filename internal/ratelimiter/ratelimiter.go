// Package ratelimiter throttles native calls issued by a gfapi client.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by every native call of one client.
//
// The client dispatch waits for a token before each call; it never rejects.
// A burst lets short sequences (open, stat, read, close) through at full
// speed while the sustained rate stays bounded.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing opsPerSecond sustained calls with a
// bucket of burst tokens.
//
// Special cases:
//   - opsPerSecond = 0: no limit
//   - burst = 0: burst defaults to opsPerSecond (at least 1)
func New(opsPerSecond, burst uint) *RateLimiter {
	if opsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = max(opsPerSecond, 1)
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(opsPerSecond), int(burst)),
	}
}

// Allow consumes a token if one is available without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
//
// Returns the context error if ctx was cancelled first, or an error if the
// wait could never be satisfied before ctx's deadline.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Unlimited reports whether the limiter never blocks.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// Limit returns the sustained rate in calls per second (0 when unlimited).
func (r *RateLimiter) Limit() float64 {
	if r.Unlimited() {
		return 0
	}
	return float64(r.limiter.Limit())
}

// Burst returns the bucket capacity.
func (r *RateLimiter) Burst() int {
	return r.limiter.Burst()
}

// Tokens returns the number of tokens currently in the bucket. Intended for
// debugging; the value is stale as soon as it is returned.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
