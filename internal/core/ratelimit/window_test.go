package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens/internal/core"
)

func TestWindowDisabledAlwaysAdmits(t *testing.T) {
	limiter, _ := newTestLimiter(map[string]BucketConfig{
		"latest": {Capacity: 100, RefillRate: 100, DailyQuota: 1000},
	})

	for i := 0; i < 50; i++ {
		result, err := limiter.Consume("latest", 1)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}
}

func TestWindowCapsBurst(t *testing.T) {
	limiter, clock := newTestLimiter(map[string]BucketConfig{
		"latest": {Capacity: 100, RefillRate: 100, DailyQuota: 1000},
	})
	limiter.Window = WindowConfig{Enabled: true, MaxAdmits: 3, Span: time.Second}

	for i := 0; i < 3; i++ {
		result, err := limiter.Consume("latest", 1)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	// Fourth attempt inside the window is denied despite plentiful tokens.
	result, err := limiter.Consume("latest", 1)
	require.NoError(t, err)
	require.False(t, result.Allowed)
	require.Equal(t, core.ReasonTooManyConcurrent, result.Reason)
	require.Greater(t, result.RetryAfter, time.Duration(0))

	// Once the oldest admit rolls out of the window, attempts pass again.
	clock.Advance(1100 * time.Millisecond)
	result, err = limiter.Consume("latest", 1)
	require.NoError(t, err)
	require.True(t, result.Allowed)
}

func TestWindowResetsWithBucket(t *testing.T) {
	limiter, _ := newTestLimiter(map[string]BucketConfig{
		"latest": {Capacity: 100, RefillRate: 100, DailyQuota: 1000},
	})
	limiter.Window = WindowConfig{Enabled: true, MaxAdmits: 2, Span: time.Minute}

	for i := 0; i < 2; i++ {
		result, err := limiter.Consume("latest", 1)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := limiter.Consume("latest", 1)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	require.NoError(t, limiter.ResetBucket("latest"))

	result, err = limiter.Consume("latest", 1)
	require.NoError(t, err)
	require.True(t, result.Allowed)
}

func TestWindowDefaults(t *testing.T) {
	cfg := WindowConfig{Enabled: true}
	require.Equal(t, DefaultWindowSpan, cfg.span())
	require.Equal(t, DefaultWindowAdmits, cfg.maxAdmits())
}
