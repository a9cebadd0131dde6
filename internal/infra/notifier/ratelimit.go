package notifier

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimiter paces webhook deliveries so a burst of pipeline faults stays
// inside the provider's posted budget. Each notifier owns one, sized to its
// provider: Slack Incoming Webhooks allow roughly one message per second,
// Discord webhooks thirty per minute. Alerts are low volume, so excess
// deliveries are smoothed out by waiting rather than dropped.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter returns a token bucket limiter admitting perSecond requests
// on average, with up to burst admitted back to back.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Wait blocks until the next delivery may proceed or ctx ends. The delivery
// context carries a timeout, which bounds how long a backed-up channel can
// make a caller wait; Wait fails fast when the bucket cannot refill within
// that deadline.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for delivery slot: %w", err)
	}
	return nil
}
