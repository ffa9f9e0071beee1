// Package common holds small shared utilities with no domain dependencies.
package common

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter paces outbound calls against a downstream service. Run control
// commands go through one of these so a misbehaving caller cannot hammer the
// executor; limits can be retuned at runtime.
type RateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing rps sustained events per second
// with the given burst headroom.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until the limiter admits one event or the context is canceled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Wait(ctx)
}

// Allow reports whether one event may proceed immediately, consuming a token
// when it may.
func (rl *RateLimiter) Allow() bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Allow()
}

// UpdateLimits retunes the sustained rate and burst headroom in place.
func (rl *RateLimiter) UpdateLimits(rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(rate.Limit(rps))
	rl.limiter.SetBurst(burst)
}
