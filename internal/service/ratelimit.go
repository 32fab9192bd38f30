package service

import (
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
)

// RateLimiter is a token bucket guarding task admission. The bucket holds
// one token per allowed request and refills evenly across the configured
// window instead of on window boundaries, so a burst after idle time is
// bounded by the capacity.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter sizes the bucket from rate_limit.requests spread over
// rate_limit.window_seconds.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	requests := cfg.Requests
	if requests <= 0 {
		requests = 100
	}
	window := cfg.Window()
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		tokens:     float64(requests),
		maxTokens:  float64(requests),
		refillRate: float64(requests) / window.Seconds(),
		lastRefill: time.Now(),
	}
}

// TryAcquire takes one token without blocking. It reports false when the
// bucket is empty; the caller surfaces RATE_LIMITED.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Available returns the current token count.
func (r *RateLimiter) Available() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.tokens
}

// Capacity returns the bucket size.
func (r *RateLimiter) Capacity() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxTokens
}

// refill credits tokens for the time elapsed since the last call.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill)
	r.lastRefill = now

	r.tokens = min(r.maxTokens, r.tokens+elapsed.Seconds()*r.refillRate)
}
