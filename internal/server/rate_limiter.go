// Package server throttles inbound frames per connection before they reach
// the hub.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter returns a limiter allowing cfg.Burst frames per refill
// interval, or nil when limiting is disabled.
func newRateLimiter(cfg RateLimitConfig) *rate.Limiter {
	if cfg.Burst <= 0 {
		return nil
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = defaultRefillInterval
	}
	return rate.NewLimiter(rate.Every(interval/time.Duration(cfg.Burst)), cfg.Burst)
}
