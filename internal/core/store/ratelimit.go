package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marketlens/marketlens/internal/core"
)

// ListBucketUsage returns all persisted bucket usage keyed by bucket name.
func (s *Store) ListBucketUsage(ctx context.Context) (map[string]core.BucketUsageState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT bucket, daily_usage, tokens_available, last_refill, quota_reset_at
		FROM bucket_usage
	`)
	if err != nil {
		return nil, fmt.Errorf("list bucket usage: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	usage := make(map[string]core.BucketUsageState)
	for rows.Next() {
		var (
			bucket          string
			dailyUsage      float64
			tokensAvailable float64
			lastRefill      int64
			quotaResetAt    sql.NullInt64
		)
		if err := rows.Scan(&bucket, &dailyUsage, &tokensAvailable, &lastRefill, &quotaResetAt); err != nil {
			return nil, fmt.Errorf("scan bucket usage: %w", err)
		}

		state := core.BucketUsageState{
			DailyUsage:      dailyUsage,
			TokensAvailable: tokensAvailable,
			LastRefill:      time.Unix(lastRefill, 0).UTC(),
		}
		if quotaResetAt.Valid {
			state.QuotaResetAt = time.Unix(quotaResetAt.Int64, 0).UTC()
		}

		usage[bucket] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bucket usage: %w", err)
	}

	return usage, nil
}

// UpsertBucketUsage persists usage state for a bucket.
func (s *Store) UpsertBucketUsage(ctx context.Context, bucket string, state core.BucketUsageState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return errors.New("bucket is required")
	}

	var quotaResetAt sql.NullInt64
	if !state.QuotaResetAt.IsZero() {
		quotaResetAt = sql.NullInt64{Int64: state.QuotaResetAt.UTC().Unix(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO bucket_usage (bucket, daily_usage, tokens_available, last_refill, quota_reset_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket) DO UPDATE SET
			daily_usage = excluded.daily_usage,
			tokens_available = excluded.tokens_available,
			last_refill = excluded.last_refill,
			quota_reset_at = excluded.quota_reset_at,
			updated_at = excluded.updated_at
	`, bucket, state.DailyUsage, state.TokensAvailable,
		state.LastRefill.UTC().Unix(), quotaResetAt, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store bucket usage: %w", err)
	}

	return nil
}

// ListBreakers returns all persisted circuit breaker state keyed by endpoint.
func (s *Store) ListBreakers(ctx context.Context) (map[string]core.BreakerPersistedState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT endpoint, state, failure_count, last_failure_at
		FROM circuit_breakers
	`)
	if err != nil {
		return nil, fmt.Errorf("list circuit breakers: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	breakers := make(map[string]core.BreakerPersistedState)
	for rows.Next() {
		var (
			endpoint      string
			state         string
			failureCount  int
			lastFailureAt sql.NullInt64
		)
		if err := rows.Scan(&endpoint, &state, &failureCount, &lastFailureAt); err != nil {
			return nil, fmt.Errorf("scan circuit breakers: %w", err)
		}

		persisted := core.BreakerPersistedState{
			State:        core.BreakerState(state),
			FailureCount: failureCount,
		}
		if lastFailureAt.Valid {
			value := time.Unix(lastFailureAt.Int64, 0).UTC()
			persisted.LastFailureAt = &value
		}

		breakers[endpoint] = persisted
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list circuit breakers: %w", err)
	}

	return breakers, nil
}

// UpsertBreaker persists circuit breaker state for an endpoint.
func (s *Store) UpsertBreaker(ctx context.Context, endpoint string, state core.BreakerPersistedState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}

	var lastFailureAt sql.NullInt64
	if state.LastFailureAt != nil {
		lastFailureAt = sql.NullInt64{Int64: state.LastFailureAt.UTC().Unix(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO circuit_breakers (endpoint, state, failure_count, last_failure_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			state = excluded.state,
			failure_count = excluded.failure_count,
			last_failure_at = excluded.last_failure_at,
			updated_at = excluded.updated_at
	`, endpoint, string(state.State), state.FailureCount, lastFailureAt, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store circuit breaker: %w", err)
	}

	return nil
}

// RecordFetch appends one governed fetch outcome to the fetch log.
func (s *Store) RecordFetch(ctx context.Context, endpoint, bucket string, result core.RetryResult) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	success := 0
	if result.Success {
		success = 1
	}

	var errorType sql.NullString
	if result.ErrorType != "" && !result.Success {
		errorType = sql.NullString{String: string(result.ErrorType), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO fetch_log (endpoint, bucket, success, attempts, error_type, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, endpoint, bucket, success, result.Attempts, errorType, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("record fetch: %w", err)
	}

	return nil
}

// FetchLogEntry is one row of the governed fetch history.
type FetchLogEntry struct {
	Endpoint  string
	Bucket    string
	Success   bool
	Attempts  int
	ErrorType string
	FetchedAt time.Time
}

// ListRecentFetches returns the most recent fetch log entries, newest first.
func (s *Store) ListRecentFetches(ctx context.Context, limit int) ([]FetchLogEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT endpoint, bucket, success, attempts, error_type, fetched_at
		FROM fetch_log
		ORDER BY fetched_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list fetches: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []FetchLogEntry{}
	for rows.Next() {
		var (
			entry     FetchLogEntry
			success   int
			errorType sql.NullString
			fetchedAt int64
		)
		if err := rows.Scan(&entry.Endpoint, &entry.Bucket, &success, &entry.Attempts, &errorType, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan fetches: %w", err)
		}
		entry.Success = success != 0
		if errorType.Valid {
			entry.ErrorType = errorType.String
		}
		entry.FetchedAt = time.Unix(fetchedAt, 0).UTC()

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list fetches: %w", err)
	}

	return entries, nil
}
