package modelclient

import (
	"context"

	"golang.org/x/time/rate"
)

// ConcurrencyLimiter bounds in-flight/accepted calls to a backend using a
// token-bucket rate limiter, giving each client a configurable requests-
// per-second ceiling plus burst allowance.
type ConcurrencyLimiter struct {
	rl *rate.Limiter
}

// NewConcurrencyLimiter builds a limiter allowing ratePerSecond steady-state
// throughput, with at most burst requests admitted at once when the bucket
// is full.
func NewConcurrencyLimiter(ratePerSecond float64, burst int) *ConcurrencyLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ConcurrencyLimiter{rl: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (c *ConcurrencyLimiter) Wait(ctx context.Context) error {
	return c.rl.Wait(ctx)
}

// Allow reports whether a token is available right now, without blocking.
func (c *ConcurrencyLimiter) Allow() bool {
	return c.rl.Allow()
}
