// Package ratelimit paces outgoing chat messages with token buckets: one
// shared bucket for the whole bot and one per recipient.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/buongiorno-bot/internal/metrics"
)

// Limiter manages the global and per-recipient send budgets.
type Limiter struct {
	mu          sync.Mutex
	global      *rate.Limiter
	limiters    map[string]*rate.Limiter
	peerRate    rate.Limit
	peerBurst   int
	minReported time.Duration
}

// Config holds rate limiter configuration. Zero or negative rates disable the
// corresponding bucket.
type Config struct {
	GlobalRPS   float64
	GlobalBurst int
	PeerRPS     float64
	PeerBurst   int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		global:      rate.NewLimiter(limitOf(cfg.GlobalRPS), burstOf(cfg.GlobalBurst)),
		limiters:    make(map[string]*rate.Limiter),
		peerRate:    limitOf(cfg.PeerRPS),
		peerBurst:   burstOf(cfg.PeerBurst),
		minReported: time.Millisecond,
	}
}

func limitOf(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

func burstOf(b int) int {
	if b <= 0 {
		return 1
	}
	return b
}

// Wait blocks until both the global bucket and the bucket for key have a
// token, or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	l.mu.Lock()
	peer, exists := l.limiters[key]
	if !exists {
		peer = rate.NewLimiter(l.peerRate, l.peerBurst)
		l.limiters[key] = peer
	}
	l.mu.Unlock()

	start := time.Now()
	if err := l.global.Wait(ctx); err != nil {
		return fmt.Errorf("global rate limit wait: %w", err)
	}
	if err := peer.Wait(ctx); err != nil {
		return fmt.Errorf("recipient rate limit wait: %w", err)
	}
	// Immediate grants are not interesting; only record real pacing.
	if d := time.Since(start); d > l.minReported {
		metrics.ObserveSendRateLimitDelay(d)
	}
	return nil
}

// Forget drops the bucket kept for key, used when a recipient unsubscribes.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.limiters, key)
	l.mu.Unlock()
}

// Len returns the number of per-recipient buckets currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
