package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements a token bucket rate limiter.
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex

	now func() time.Time
}

// NewTokenBucket creates a full bucket holding at most maxTokens, refilled at
// refillRate tokens per second.
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return newTokenBucket(maxTokens, refillRate, time.Now)
}

func newTokenBucket(maxTokens, refillRate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

// refill adds tokens based on elapsed time since last refill.
func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now
}

// TryConsume takes tokens if available and reports how long to wait
// otherwise. A zero wait means the tokens were taken.
func (b *TokenBucket) TryConsume(tokens float64) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if tokens > b.maxTokens {
		tokens = b.maxTokens
	}
	if b.tokens >= tokens {
		b.tokens -= tokens
		return 0, true
	}
	if b.refillRate <= 0 {
		return time.Hour, false
	}
	deficit := tokens - b.tokens
	return time.Duration(deficit / b.refillRate * float64(time.Second)), false
}

// Available returns the current number of available tokens.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

// Return puts tokens back, e.g. when a request failed before reaching upstream.
func (b *TokenBucket) Return(tokens float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += tokens
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}
