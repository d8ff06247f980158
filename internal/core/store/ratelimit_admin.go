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

type BucketUsageEntry struct {
	Bucket string
	State  core.BucketUsageState
}

type BucketUsageQuery struct {
	All    bool
	Bucket string
	Prefix string
}

func (q BucketUsageQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Bucket) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --bucket, or --prefix")
}

func (q BucketUsageQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if bucket := strings.TrimSpace(q.Bucket); bucket != "" {
		return "WHERE bucket = ?", []any{bucket}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	return "WHERE bucket LIKE ?", []any{prefix + "%"}, nil
}

func (s *Store) ListBucketUsageEntries(ctx context.Context, q BucketUsageQuery) ([]BucketUsageEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT bucket, daily_usage, tokens_available, last_refill, quota_reset_at
		FROM bucket_usage
		%s
		ORDER BY bucket
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list bucket usage: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []BucketUsageEntry{}
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

		entries = append(entries, BucketUsageEntry{Bucket: bucket, State: state})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bucket usage: %w", err)
	}

	return entries, nil
}

func (s *Store) CountBucketUsage(ctx context.Context, q BucketUsageQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM bucket_usage
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count bucket usage: %w", err)
	}
	return count, nil
}

func (s *Store) ResetBucketUsage(ctx context.Context, q BucketUsageQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM bucket_usage
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset bucket usage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset bucket usage: %w", err)
	}
	return affected, nil
}

type BreakerQuery struct {
	All      bool
	Endpoint string
	Prefix   string
}

func (q BreakerQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Endpoint) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --endpoint, or --prefix")
}

func (q BreakerQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if endpoint := strings.TrimSpace(q.Endpoint); endpoint != "" {
		return "WHERE endpoint = ?", []any{endpoint}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	return "WHERE endpoint LIKE ?", []any{prefix + "%"}, nil
}

func (s *Store) ListBreakerEntries(ctx context.Context, q BreakerQuery) ([]core.BreakerStatus, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT endpoint, state, failure_count, last_failure_at
		FROM circuit_breakers
		%s
		ORDER BY endpoint
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list circuit breakers: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []core.BreakerStatus{}
	for rows.Next() {
		var (
			status        core.BreakerStatus
			state         string
			lastFailureAt sql.NullInt64
		)
		if err := rows.Scan(&status.Endpoint, &state, &status.FailureCount, &lastFailureAt); err != nil {
			return nil, fmt.Errorf("scan circuit breakers: %w", err)
		}
		status.State = core.BreakerState(state)
		if lastFailureAt.Valid {
			value := time.Unix(lastFailureAt.Int64, 0).UTC()
			status.LastFailureAt = &value
		}

		entries = append(entries, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list circuit breakers: %w", err)
	}

	return entries, nil
}

func (s *Store) ResetBreakers(ctx context.Context, q BreakerQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM circuit_breakers
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset circuit breakers: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset circuit breakers: %w", err)
	}
	return affected, nil
}
