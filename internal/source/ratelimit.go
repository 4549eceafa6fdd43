package source

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter throttles outbound fetches across all adapters with a shared
// token bucket, so several sources polling at once cannot burst against
// the upstream sites.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter creates a limiter with the given sustained per-second rate and
// burst size.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until the limiter allows one fetch, or the context is
// canceled. A nil Limiter never blocks.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}
