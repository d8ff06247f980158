package ratelimit

import (
	"time"

	"github.com/marketlens/marketlens/internal/core"
)

// BucketConfig describes one traffic-class bucket.
type BucketConfig struct {
	// Capacity is the maximum number of tokens the bucket holds.
	Capacity float64
	// RefillRate is tokens added per second. Zero disables refill, which is
	// useful for deterministic quota tests.
	RefillRate float64
	// DailyQuota caps total tokens consumed per reset period.
	DailyQuota float64
	// ResetHour is the UTC hour-of-day (0-23) at which daily usage resets.
	ResetHour int
}

// bucket holds the mutable state for one traffic class. All access goes
// through the Limiter mutex.
type bucket struct {
	name         string
	cfg          BucketConfig
	tokens       float64
	lastRefill   time.Time
	dailyUsage   float64
	quotaResetAt time.Time
	admits       []time.Time
}

func newBucket(name string, cfg BucketConfig, now time.Time) *bucket {
	return &bucket{
		name:         name,
		cfg:          cfg,
		tokens:       cfg.Capacity,
		lastRefill:   now,
		quotaResetAt: nextQuotaReset(now, cfg.ResetHour),
	}
}

// refill applies lazy, pull-based token accrual and the daily quota rollover.
// No background timers: state is brought current on every inspection.
func (b *bucket) refill(now time.Time) {
	if elapsed := now.Sub(b.lastRefill).Seconds(); elapsed > 0 {
		if b.cfg.RefillRate > 0 {
			b.tokens += elapsed * b.cfg.RefillRate
			if b.tokens > b.cfg.Capacity {
				b.tokens = b.cfg.Capacity
			}
		}
		b.lastRefill = now
	}

	for !b.quotaResetAt.IsZero() && !now.Before(b.quotaResetAt) {
		b.dailyUsage = 0
		b.quotaResetAt = nextQuotaReset(b.quotaResetAt, b.cfg.ResetHour)
	}
}

// timeUntilTokens returns how long until `needed` more tokens accrue.
// With refill disabled the quota reset boundary is the only recovery point.
func (b *bucket) timeUntilTokens(needed float64, now time.Time) time.Duration {
	if needed <= 0 {
		return 0
	}
	if b.cfg.RefillRate <= 0 {
		if b.quotaResetAt.IsZero() {
			return 0
		}
		return b.quotaResetAt.Sub(now)
	}
	return time.Duration(needed / b.cfg.RefillRate * float64(time.Second))
}

func (b *bucket) status() core.BucketStatus {
	status := core.BucketStatus{
		Name:            b.name,
		TokensAvailable: b.tokens,
		Capacity:        b.cfg.Capacity,
		RefillRate:      b.cfg.RefillRate,
		DailyUsage:      b.dailyUsage,
		DailyQuota:      b.cfg.DailyQuota,
	}
	if b.cfg.DailyQuota > 0 {
		status.QuotaPercentage = 100 * b.dailyUsage / b.cfg.DailyQuota
	}
	status.IsThrottled = status.QuotaPercentage > throttleWarningPercent
	return status
}

// throttleWarningPercent marks a bucket as throttled once daily usage
// crosses this share of the quota.
const throttleWarningPercent = 80

// nextQuotaReset returns the first occurrence of the reset hour (UTC)
// strictly after the given instant.
func nextQuotaReset(after time.Time, resetHour int) time.Time {
	if resetHour < 0 || resetHour > 23 {
		resetHour = 0
	}
	after = after.UTC()
	reset := time.Date(after.Year(), after.Month(), after.Day(), resetHour, 0, 0, 0, time.UTC)
	if !reset.After(after) {
		reset = reset.AddDate(0, 0, 1)
	}
	return reset
}
