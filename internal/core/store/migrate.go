package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS bucket_usage (
		bucket TEXT PRIMARY KEY,
		daily_usage REAL NOT NULL DEFAULT 0,
		tokens_available REAL NOT NULL DEFAULT 0,
		last_refill INTEGER NOT NULL,
		quota_reset_at INTEGER,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS circuit_breakers (
		endpoint TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		failure_count INTEGER NOT NULL DEFAULT 0,
		last_failure_at INTEGER,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS fetch_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		endpoint TEXT NOT NULL,
		bucket TEXT NOT NULL,
		success INTEGER NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		error_type TEXT,
		fetched_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_fetch_log_endpoint ON fetch_log(endpoint);`,
	`CREATE INDEX IF NOT EXISTS idx_fetch_log_fetched ON fetch_log(fetched_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	if err := s.ensureColumn(ctx, "bucket_usage", "quota_reset_at", "INTEGER"); err != nil {
		return err
	}

	return nil
}

func (s *Store) ensureColumn(ctx context.Context, table, column, columnDef string) error {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect %s schema: %w", table, err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("inspect %s columns: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s columns: %w", table, err)
	}

	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, columnDef)); err != nil {
		return fmt.Errorf("add %s.%s column: %w", table, column, err)
	}

	return nil
}
