// Package ratelimit throttles calls to language model providers.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter caps requests and estimated prompt tokens per minute.
type Limiter struct {
	requestBucket *TokenBucket
	tokenBucket   *TokenBucket // nil when tokens are not limited

	mu              sync.Mutex
	totalRequests   int64
	delayedRequests int64
}

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerMinute int
	TokensPerMinute   int64 // 0 means unlimited
	BurstSize         int
}

// DefaultConfig returns the default rate limiter configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 30,
		BurstSize:         5,
	}
}

// NewLimiter returns nil when cfg.RequestsPerMinute is not positive; a nil
// *Limiter never blocks.
func NewLimiter(cfg Config) *Limiter {
	return newLimiter(cfg, time.Now)
}

func newLimiter(cfg Config, now func() time.Time) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		return nil
	}
	burst := float64(cfg.BurstSize)
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		requestBucket: newTokenBucket(burst, float64(cfg.RequestsPerMinute)/60.0, now),
	}
	if cfg.TokensPerMinute > 0 {
		// Allow a 10% burst of the per-minute token budget.
		l.tokenBucket = newTokenBucket(float64(cfg.TokensPerMinute)/10.0, float64(cfg.TokensPerMinute)/60.0, now)
	}
	return l
}

// Wait blocks until a request slot and estimatedTokens of capacity are
// available or ctx ends.
func (l *Limiter) Wait(ctx context.Context, estimatedTokens int64) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	l.totalRequests++
	l.mu.Unlock()

	delayed := false
	for {
		wait, ok := l.requestBucket.TryConsume(1)
		if ok && l.tokenBucket != nil && estimatedTokens > 0 {
			if wait, ok = l.tokenBucket.TryConsume(float64(estimatedTokens)); !ok {
				l.requestBucket.Return(1)
			}
		}
		if ok {
			return nil
		}

		if !delayed {
			delayed = true
			l.mu.Lock()
			l.delayedRequests++
			l.mu.Unlock()
		}
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Stats holds rate limiter statistics.
type Stats struct {
	TotalRequests     int64
	DelayedRequests   int64
	AvailableRequests float64
}

// Stats returns rate limiter statistics.
func (l *Limiter) Stats() Stats {
	if l == nil {
		return Stats{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		TotalRequests:     l.totalRequests,
		DelayedRequests:   l.delayedRequests,
		AvailableRequests: l.requestBucket.Available(),
	}
}

// EstimateTokens estimates the number of tokens for a prompt.
// This is a rough estimate based on character count.
func EstimateTokens(prompt string) int64 {
	// Rough estimate: ~4 characters per token
	return int64(len(prompt) / 4)
}
