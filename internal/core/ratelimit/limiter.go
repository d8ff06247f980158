// Package ratelimit implements the multi-bucket token rate limiter that
// governs outbound calls to the news API. Each traffic class owns an
// independent bucket with lazy refill and a daily quota; an optional
// coordination window blunts bursts of simultaneous callers.
package ratelimit

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marketlens/marketlens/internal/core"
)

// ErrUnknownBucket is returned when a caller references a traffic class
// that was never configured. This is a programmer error, never retried.
var ErrUnknownBucket = errors.New("unknown bucket")

// Limiter owns the full set of traffic-class buckets. It is constructed once
// at process start and injected into every caller; there is no package-level
// registry.
type Limiter struct {
	// Clock supplies the current time. Defaults to time.Now().UTC; tests
	// replace it with an advanceable virtual clock.
	Clock func() time.Time
	// Window optionally caps concurrent consumption attempts per bucket.
	Window WindowConfig

	mu      sync.Mutex
	buckets map[string]*bucket
	order   []string
}

// New builds a Limiter from static configuration. Buckets are created
// eagerly and live for the process lifetime; status reporting uses
// lexical configuration order for determinism.
func New(configs map[string]BucketConfig) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket, len(configs)),
		order:   make([]string, 0, len(configs)),
	}
	for name := range configs {
		l.order = append(l.order, name)
	}
	sort.Strings(l.order)

	now := l.now()
	for _, name := range l.order {
		l.buckets[name] = newBucket(name, configs[name], now)
	}
	return l
}

// Consume attempts to take tokens from the named bucket. Denials are
// returned with a reason and retry-after hint, never raised; only an
// unknown bucket surfaces as an error. State is mutated solely on admit.
func (l *Limiter) Consume(name string, tokens float64) (core.ConsumeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[name]
	if !ok {
		return core.ConsumeResult{}, fmt.Errorf("%w: %s", ErrUnknownBucket, name)
	}

	now := l.now()
	b.refill(now)

	if denied, retryAfter := l.windowDenies(b, now); denied {
		return core.ConsumeResult{
			RetryAfter: retryAfter,
			Reason:     core.ReasonTooManyConcurrent,
		}, nil
	}

	if b.cfg.DailyQuota > 0 && b.dailyUsage+tokens > b.cfg.DailyQuota {
		return core.ConsumeResult{
			RetryAfter: b.quotaResetAt.Sub(now),
			Reason:     core.ReasonDailyQuotaExceeded,
		}, nil
	}

	if b.tokens < tokens {
		return core.ConsumeResult{
			RetryAfter: b.timeUntilTokens(tokens-b.tokens, now),
			Reason:     core.ReasonInsufficientTokens,
		}, nil
	}

	b.tokens -= tokens
	b.dailyUsage += tokens
	l.recordAdmit(b, now)

	return core.ConsumeResult{Allowed: true, TokensConsumed: tokens}, nil
}

// CanConsume reports whether a consumption of the given size would be
// admitted right now, without consuming. Unknown buckets answer false.
func (l *Limiter) CanConsume(name string, tokens float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[name]
	if !ok {
		return false
	}

	b.refill(l.now())
	if b.cfg.DailyQuota > 0 && b.dailyUsage+tokens > b.cfg.DailyQuota {
		return false
	}
	return b.tokens >= tokens
}

// Tokens returns the current token level after lazy refill.
func (l *Limiter) Tokens(name string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownBucket, name)
	}
	b.refill(l.now())
	return b.tokens, nil
}

// TimeUntilToken returns how long until at least one token is available.
func (l *Limiter) TimeUntilToken(name string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownBucket, name)
	}

	now := l.now()
	b.refill(now)
	if b.tokens >= 1 {
		return 0, nil
	}
	return b.timeUntilTokens(1-b.tokens, now), nil
}

// ResetBucket restores the token level to capacity and restarts the refill
// timer. Daily usage is untouched; coordination state resets with the bucket.
func (l *Limiter) ResetBucket(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBucket, name)
	}

	b.tokens = b.cfg.Capacity
	b.lastRefill = l.now()
	b.admits = nil
	return nil
}

// ResetDailyUsage zeroes the daily usage counter independent of token level.
func (l *Limiter) ResetDailyUsage(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBucket, name)
	}

	b.dailyUsage = 0
	b.quotaResetAt = nextQuotaReset(l.now(), b.cfg.ResetHour)
	return nil
}

// Status returns a snapshot of one bucket after lazy refill.
func (l *Limiter) Status(name string) (core.BucketStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[name]
	if !ok {
		return core.BucketStatus{}, fmt.Errorf("%w: %s", ErrUnknownBucket, name)
	}
	b.refill(l.now())
	return b.status(), nil
}

// AllStatus returns snapshots for every configured bucket in configuration
// order.
func (l *Limiter) AllStatus() []core.BucketStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	statuses := make([]core.BucketStatus, 0, len(l.order))
	for _, name := range l.order {
		b := l.buckets[name]
		b.refill(now)
		statuses = append(statuses, b.status())
	}
	return statuses
}

// ExportUsage snapshots the durable portion of every bucket for persistence.
func (l *Limiter) ExportUsage() map[string]core.BucketUsageState {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	usage := make(map[string]core.BucketUsageState, len(l.buckets))
	for name, b := range l.buckets {
		b.refill(now)
		usage[name] = core.BucketUsageState{
			DailyUsage:      b.dailyUsage,
			TokensAvailable: b.tokens,
			LastRefill:      b.lastRefill,
			QuotaResetAt:    b.quotaResetAt,
		}
	}
	return usage
}

// RestoreUsage applies previously persisted usage. Entries for buckets that
// are no longer configured are ignored; a stale reset boundary is rolled
// forward on the next refill.
func (l *Limiter) RestoreUsage(usage map[string]core.BucketUsageState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for name, state := range usage {
		b, ok := l.buckets[name]
		if !ok {
			continue
		}
		b.dailyUsage = state.DailyUsage
		if state.TokensAvailable >= 0 && state.TokensAvailable <= b.cfg.Capacity {
			b.tokens = state.TokensAvailable
		}
		if !state.LastRefill.IsZero() {
			b.lastRefill = state.LastRefill
		}
		if !state.QuotaResetAt.IsZero() {
			b.quotaResetAt = state.QuotaResetAt
		}
	}
}

func (l *Limiter) now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}
