package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrate runs database migrations
func (s *SQLiteDB) migrate() error {
	ctx := context.Background()

	// Create migrations table
	if err := s.createMigrationsTable(ctx); err != nil {
		return err
	}

	// Run migrations
	migrations := []migration{
		{version: 1, name: "initial_schema", up: migrateV1},
		{version: 2, name: "scan_job_notes", up: migrateV2},
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

type migration struct {
	version int
	name    string
	up      func(context.Context, *sql.Tx) error
}

func (s *SQLiteDB) createMigrationsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLiteDB) runMigration(ctx context.Context, m migration) error {
	// Check if migration already applied
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count)
	if err != nil {
		return err
	}

	if count > 0 {
		return nil // Already applied
	}

	// Start transaction
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Run migration
	if err := m.up(ctx, tx); err != nil {
		return err
	}

	// Record migration
	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
		m.version, m.name)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// migrateV1 creates the initial schema
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		// Scan universe
		`CREATE TABLE IF NOT EXISTS symbols (
			ticker TEXT PRIMARY KEY,
			is_active INTEGER NOT NULL DEFAULT 1,
			exchange TEXT DEFAULT '',
			asset_type TEXT DEFAULT '',
			updated_at INTEGER DEFAULT (strftime('%s', 'now'))
		)`,

		// Per-day derived rows, one per (ticker, trade date, source interval)
		`CREATE TABLE IF NOT EXISTS daily_bars (
			ticker TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			source_interval TEXT NOT NULL,
			close REAL NOT NULL DEFAULT 0,
			prev_close REAL NOT NULL DEFAULT 0,
			volume_delta REAL NOT NULL DEFAULT 0,
			scan_job_id TEXT DEFAULT '',
			updated_at INTEGER DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (ticker, trade_date, source_interval)
		)`,

		// Per-ticker technical state, one row per (ticker, source interval).
		// MA columns are nullable so the enrichment pass can fill them later.
		`CREATE TABLE IF NOT EXISTS summaries (
			ticker TEXT NOT NULL,
			source_interval TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			state_1d TEXT NOT NULL DEFAULT 'neutral',
			state_3d TEXT NOT NULL DEFAULT 'neutral',
			state_7d TEXT NOT NULL DEFAULT 'neutral',
			state_14d TEXT NOT NULL DEFAULT 'neutral',
			state_28d TEXT NOT NULL DEFAULT 'neutral',
			ma8_above INTEGER,
			ma21_above INTEGER,
			ma50_above INTEGER,
			ma200_above INTEGER,
			scan_job_id TEXT DEFAULT '',
			updated_at INTEGER DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (ticker, source_interval)
		)`,

		// Published divergence signals
		`CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			signal_type TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			prev_close REAL NOT NULL DEFAULT 0,
			volume_delta REAL NOT NULL DEFAULT 0,
			timeframe TEXT NOT NULL,
			source_interval TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			is_favorite INTEGER NOT NULL DEFAULT 0,
			scan_job_id TEXT DEFAULT '',
			UNIQUE (trade_date, ticker, timeframe, source_interval)
		)`,

		// Latest externally visible trade date per source interval
		`CREATE TABLE IF NOT EXISTS publication_state (
			source_interval TEXT PRIMARY KEY,
			trade_date TEXT NOT NULL,
			scan_job_id TEXT DEFAULT '',
			updated_at INTEGER DEFAULT (strftime('%s', 'now'))
		)`,

		// Per-run job ledger
		`CREATE TABLE IF NOT EXISTS scan_jobs (
			id TEXT PRIMARY KEY,
			program TEXT NOT NULL,
			run_for_date TEXT DEFAULT '',
			scanned_trade_date TEXT DEFAULT '',
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER DEFAULT 0,
			total_symbols INTEGER DEFAULT 0,
			processed_symbols INTEGER DEFAULT 0,
			bullish_count INTEGER DEFAULT 0,
			bearish_count INTEGER DEFAULT 0,
			error_count INTEGER DEFAULT 0,
			updated_at INTEGER DEFAULT (strftime('%s', 'now'))
		)`,

		// Run metrics history, one JSON snapshot per run
		`CREATE TABLE IF NOT EXISTS run_metrics_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL UNIQUE,
			run_type TEXT NOT NULL,
			status TEXT NOT NULL,
			snapshot TEXT NOT NULL DEFAULT '{}',
			started_at INTEGER NOT NULL,
			finished_at INTEGER DEFAULT 0,
			created_at INTEGER DEFAULT (strftime('%s', 'now'))
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_daily_bars_date ON daily_bars(trade_date, source_interval)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_date ON summaries(trade_date)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_date ON signals(trade_date)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ticker ON signals(ticker)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_jobs_program ON scan_jobs(program, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_run_metrics_type ON run_metrics_history(run_type, created_at)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return err
		}
	}

	return nil
}

// migrateV2 adds the notes column used to park resume snapshots on
// interrupted jobs
func migrateV2(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		`ALTER TABLE scan_jobs ADD COLUMN notes TEXT DEFAULT ''`)
	return err
}
