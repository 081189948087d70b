// Package http provides the HTTP plumbing shared by every YouTube Data API
// call: a single rate budget, rate-limit backoff, and a circuit breaker.
package http

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Backoff defaults applied when the API signals rate limiting.
const (
	InitialBackoff        = 1 * time.Second
	MaxBackoff            = 60 * time.Second
	BackoffMultiplier     = 2.0
	BackoffCooldownPeriod = 5 * time.Minute
	// MinRPSMultiplier is the floor for rate reduction (0.25 = 25% of configured).
	MinRPSMultiplier = 0.25
)

// RateLimiterConfig defines the shared budget.
type RateLimiterConfig struct {
	// RPS is the sustained requests per second across all callers.
	RPS float64
	// Burst is the token bucket size.
	Burst int
	// EnableDynamicBackoff lowers the rate after rate-limit responses.
	EnableDynamicBackoff bool
}

// DefaultRateLimiterConfig returns a conservative budget for the Data API.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RPS:                  5,
		Burst:                1,
		EnableDynamicBackoff: true,
	}
}

// BackoffState tracks rate limit backoff.
type BackoffState struct {
	CurrentBackoff    time.Duration
	LastError         time.Time
	ConsecutiveErrors int
	// ReducedRPS is the current reduced rate (0 means the configured rate).
	ReducedRPS float64
}

// RateLimiter is one token bucket shared by every request issued through a
// Transport, whichever harvest branch issues it.
type RateLimiter struct {
	limiter *rate.Limiter
	config  RateLimiterConfig

	mu      sync.RWMutex
	backoff *BackoffState
}

// NewRateLimiter creates a limiter. Zero fields fall back to defaults.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		config:  cfg,
	}
}

// Wait blocks until the budget allows one request or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	if err := rl.WaitForBackoff(ctx); err != nil {
		return err
	}
	if err := rl.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

// Limit returns the current rate.
func (rl *RateLimiter) Limit() float64 {
	return float64(rl.limiter.Limit())
}

// RecordRateLimitError records a rate-limit response and returns the
// backoff to honor before the next request.
func (rl *RateLimiter) RecordRateLimitError(retryAfter time.Duration) time.Duration {
	if rl == nil || !rl.config.EnableDynamicBackoff {
		if retryAfter > 0 {
			return retryAfter
		}
		return InitialBackoff
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.backoff == nil {
		rl.backoff = &BackoffState{CurrentBackoff: InitialBackoff}
	}
	state := rl.backoff
	state.LastError = time.Now()
	state.ConsecutiveErrors++

	// 1s -> 2s -> 4s -> ... -> max
	if state.ConsecutiveErrors > 1 {
		state.CurrentBackoff = time.Duration(float64(state.CurrentBackoff) * BackoffMultiplier)
		if state.CurrentBackoff > MaxBackoff {
			state.CurrentBackoff = MaxBackoff
		}
	}
	if retryAfter > state.CurrentBackoff {
		state.CurrentBackoff = retryAfter
	}

	// 1 error: 75%, 2 errors: 50%, 3+: 25%
	factor := 0.75
	switch {
	case state.ConsecutiveErrors >= 3:
		factor = MinRPSMultiplier
	case state.ConsecutiveErrors == 2:
		factor = 0.5
	}
	state.ReducedRPS = rl.config.RPS * factor
	rl.limiter.SetLimit(rate.Limit(state.ReducedRPS))

	return state.CurrentBackoff
}

// RecordSuccess lets the limiter recover after a quiet period.
func (rl *RateLimiter) RecordSuccess() {
	if rl == nil || !rl.config.EnableDynamicBackoff {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	state := rl.backoff
	if state == nil {
		return
	}

	if time.Since(state.LastError) > BackoffCooldownPeriod {
		rl.limiter.SetLimit(rate.Limit(rl.config.RPS))
		rl.backoff = nil
		return
	}

	if state.ConsecutiveErrors > 0 {
		state.ConsecutiveErrors--
		if state.ConsecutiveErrors == 0 {
			half := rl.config.RPS * 0.5
			if half > state.ReducedRPS {
				state.ReducedRPS = half
				rl.limiter.SetLimit(rate.Limit(half))
			}
		}
	}
}

// GetBackoffState returns a copy of the backoff state, or nil.
func (rl *RateLimiter) GetBackoffState() *BackoffState {
	if rl == nil {
		return nil
	}

	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if rl.backoff == nil {
		return nil
	}
	s := *rl.backoff
	return &s
}

// WaitForBackoff waits out any active backoff period.
func (rl *RateLimiter) WaitForBackoff(ctx context.Context) error {
	state := rl.GetBackoffState()
	if state == nil {
		return nil
	}

	remaining := state.CurrentBackoff - time.Since(state.LastError)
	if remaining <= 0 {
		return nil
	}

	select {
	case <-time.After(remaining):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
