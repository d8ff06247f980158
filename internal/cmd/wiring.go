package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/core/engine"
	"github.com/marketlens/marketlens/internal/core/ratelimit"
	"github.com/marketlens/marketlens/internal/core/retry"
	"github.com/marketlens/marketlens/internal/core/store"
)

func openStore(ctx context.Context) (*store.Store, *config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return db, cfg, nil
}

func buildLimiter(cfg *config.Config) *ratelimit.Limiter {
	buckets := make(map[string]ratelimit.BucketConfig, len(cfg.RateLimit.Buckets))
	for name, bc := range cfg.RateLimit.Buckets {
		buckets[name] = ratelimit.BucketConfig{
			Capacity:   bc.Capacity,
			RefillRate: bc.RefillRate,
			DailyQuota: bc.DailyQuota,
			ResetHour:  bc.ResetHour,
		}
	}

	limiter := ratelimit.New(buckets)
	limiter.Window = ratelimit.WindowConfig{
		Enabled:   cfg.RateLimit.Window.Enabled,
		MaxAdmits: cfg.RateLimit.Window.MaxAdmits,
		Span:      cfg.RateLimit.Window.Span,
	}
	return limiter
}

func buildOrchestrator(cfg *config.Config) *retry.Orchestrator {
	orch := retry.NewOrchestrator(retry.Config{
		MaxAttempts:          cfg.Retry.MaxAttempts,
		BaseDelay:            cfg.Retry.BaseDelay,
		MaxDelay:             cfg.Retry.MaxDelay,
		BackoffMultiplier:    cfg.Retry.Multiplier,
		JitterFactor:         cfg.Retry.JitterFactor,
		RateLimitBaseDelay:   cfg.Retry.RateLimitBaseDelay,
		RateLimitMultiplier:  cfg.Retry.RateLimitMultiplier,
		ServerErrorBaseDelay: cfg.Retry.ServerErrorBaseDelay,
		QuotaExhaustedDelay:  cfg.Retry.QuotaExhaustedDelay,
		Breaker: retry.BreakerConfig{
			Enabled:          cfg.Retry.Breaker.Enabled,
			FailureThreshold: cfg.Retry.Breaker.FailureThreshold,
			Cooldown:         cfg.Retry.Breaker.Cooldown,
		},
	})
	if len(cfg.Retry.RetryablePatterns) > 0 || len(cfg.Retry.NonRetryablePatterns) > 0 {
		orch.Classifier = &retry.Classifier{
			RetryablePatterns:    cfg.Retry.RetryablePatterns,
			NonRetryablePatterns: cfg.Retry.NonRetryablePatterns,
		}
	}
	return orch
}

// buildGuard assembles the governed-call facade from configuration. The
// caller owns the store handle and is responsible for guard.Load/Save.
func buildGuard(cfg *config.Config, db *store.Store, logger *logging.Logger) *engine.Guard {
	return &engine.Guard{
		Limiter: buildLimiter(cfg),
		Retry:   buildOrchestrator(cfg),
		Store:   db,
		Logger:  logger,
	}
}

func sortedBucketNames(buckets map[string]config.BucketConfig) []string {
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
