// Package engine wires the rate limiter and retry orchestrator into the
// single entry point callers use for governed outbound calls.
package engine

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/marketlens/marketlens/internal/core"
	"github.com/marketlens/marketlens/internal/core/ratelimit"
	"github.com/marketlens/marketlens/internal/core/retry"
	"github.com/marketlens/marketlens/internal/metrics"
)

// StateStore persists the durable portion of limiter and breaker state so
// daily quota accounting survives restarts.
type StateStore interface {
	ListBucketUsage(ctx context.Context) (map[string]core.BucketUsageState, error)
	UpsertBucketUsage(ctx context.Context, bucket string, state core.BucketUsageState) error
	ListBreakers(ctx context.Context) (map[string]core.BreakerPersistedState, error)
	UpsertBreaker(ctx context.Context, endpoint string, state core.BreakerPersistedState) error
}

// Guard is the resilience facade: it asks the limiter for admission, then
// drives the orchestrator. Denials and failures come back as values; the
// only raised error is a caller mistake (unknown bucket).
type Guard struct {
	Limiter *ratelimit.Limiter
	Retry   *retry.Orchestrator
	Store   StateStore
	Logger  *logging.Logger
}

// Outcome reports one governed call: the admission decision, and when
// admitted, the retry result.
type Outcome struct {
	Consume core.ConsumeResult `json:"consume"`
	Retry   *core.RetryResult  `json:"retry,omitempty"`
}

// Allowed reports whether the call was admitted and ultimately succeeded.
func (o Outcome) Allowed() bool {
	return o.Consume.Allowed && o.Retry != nil && o.Retry.Success
}

// Do performs a governed call: consume tokens from the bucket, then execute
// the operation with retries against the endpoint breaker.
func (g *Guard) Do(ctx context.Context, bucket, endpoint string, tokens float64, op retry.Operation, opts *retry.ExecOptions) (Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	consumed, err := g.Limiter.Consume(bucket, tokens)
	if err != nil {
		return Outcome{}, err
	}

	metrics.RecordRateLimitDecision(bucket, consumed.Allowed, consumed.Reason)
	if status, statusErr := g.Limiter.Status(bucket); statusErr == nil {
		metrics.RecordBucketQuota(status)
	}
	if !consumed.Allowed {
		g.logDenial(bucket, consumed)
		return Outcome{Consume: consumed}, nil
	}

	result := g.Retry.Execute(ctx, endpoint, op, opts)
	metrics.RecordRetryOutcome(endpoint, result)
	g.logResult(bucket, endpoint, result)
	g.persist(ctx, bucket, endpoint)

	return Outcome{Consume: consumed, Retry: &result}, nil
}

// Load restores persisted limiter usage and breaker state. Missing store
// rows are not an error; a nil store is a no-op.
func (g *Guard) Load(ctx context.Context) error {
	if g.Store == nil {
		return nil
	}

	usage, err := g.Store.ListBucketUsage(ctx)
	if err != nil {
		return err
	}
	g.Limiter.RestoreUsage(usage)

	breakers, err := g.Store.ListBreakers(ctx)
	if err != nil {
		return err
	}
	g.Retry.RestoreBreakers(breakers)
	return nil
}

// Save writes the durable limiter and breaker state to the store.
func (g *Guard) Save(ctx context.Context) error {
	if g.Store == nil {
		return nil
	}

	for bucket, state := range g.Limiter.ExportUsage() {
		if err := g.Store.UpsertBucketUsage(ctx, bucket, state); err != nil {
			return err
		}
	}
	for endpoint, state := range g.Retry.ExportBreakers() {
		if err := g.Store.UpsertBreaker(ctx, endpoint, state); err != nil {
			return err
		}
	}
	return nil
}

// persist saves the state touched by one call. Persistence is best-effort:
// a slow or broken store must not affect the caller's control flow.
func (g *Guard) persist(ctx context.Context, bucket, endpoint string) {
	if g.Store == nil {
		return
	}

	usage := g.Limiter.ExportUsage()
	if state, ok := usage[bucket]; ok {
		if err := g.Store.UpsertBucketUsage(ctx, bucket, state); err != nil && g.Logger != nil {
			g.Logger.Warn("Failed to persist bucket usage",
				zap.String("bucket", bucket),
				zap.Error(err))
		}
	}

	breakers := g.Retry.ExportBreakers()
	if state, ok := breakers[endpoint]; ok {
		if err := g.Store.UpsertBreaker(ctx, endpoint, state); err != nil && g.Logger != nil {
			g.Logger.Warn("Failed to persist breaker state",
				zap.String("endpoint", endpoint),
				zap.Error(err))
		}
	}
}

func (g *Guard) logDenial(bucket string, result core.ConsumeResult) {
	if g.Logger == nil {
		return
	}
	g.Logger.Warn("Rate limit denial",
		zap.String("bucket", bucket),
		zap.String("reason", result.Reason),
		zap.Duration("retry_after", result.RetryAfter))
}

func (g *Guard) logResult(bucket, endpoint string, result core.RetryResult) {
	if g.Logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("bucket", bucket),
		zap.String("endpoint", endpoint),
		zap.Int("attempts", result.Attempts),
		zap.Duration("total_delay", result.TotalDelay),
	}
	switch {
	case result.Success:
		g.Logger.Debug("Governed call succeeded", fields...)
	case result.CircuitOpen:
		g.Logger.Warn("Circuit breaker tripped", fields...)
	default:
		fields = append(fields,
			zap.String("error_type", string(result.ErrorType)),
			zap.Error(result.Err))
		g.Logger.Warn("Governed call failed", fields...)
	}
}

// WaitHint converts a denial into a duration callers can sleep before the
// next attempt, floored at a millisecond so callers never spin.
func WaitHint(result core.ConsumeResult) time.Duration {
	if result.Allowed {
		return 0
	}
	if result.RetryAfter < time.Millisecond {
		return time.Millisecond
	}
	return result.RetryAfter
}
