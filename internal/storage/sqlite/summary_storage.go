package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
)

// nullBool converts a *bool to a SQLite nullable integer
func nullBool(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	v := int64(0)
	if *b {
		v = 1
	}
	return sql.NullInt64{Valid: true, Int64: v}
}

// SummaryStorage implements SQLite storage for per-ticker technical state
type SummaryStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewSummaryStorage creates a new summary storage instance
func NewSummaryStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.SummaryStorage {
	return &SummaryStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertSummaries inserts or replaces summary rows keyed by
// (ticker, source_interval). MA columns only overwrite when the incoming
// value is non-null, so the enrichment pass can fill them after the core
// pass without the core pass wiping them on the next run.
func (s *SummaryStorage) UpsertSummaries(ctx context.Context, summaries []models.Summary) error {
	if len(summaries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO summaries (
			ticker, source_interval, trade_date,
			state_1d, state_3d, state_7d, state_14d, state_28d,
			ma8_above, ma21_above, ma50_above, ma200_above,
			scan_job_id, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, source_interval) DO UPDATE SET
			trade_date = excluded.trade_date,
			state_1d = excluded.state_1d,
			state_3d = excluded.state_3d,
			state_7d = excluded.state_7d,
			state_14d = excluded.state_14d,
			state_28d = excluded.state_28d,
			ma8_above = COALESCE(excluded.ma8_above, summaries.ma8_above),
			ma21_above = COALESCE(excluded.ma21_above, summaries.ma21_above),
			ma50_above = COALESCE(excluded.ma50_above, summaries.ma50_above),
			ma200_above = COALESCE(excluded.ma200_above, summaries.ma200_above),
			scan_job_id = excluded.scan_job_id,
			updated_at = excluded.updated_at
	`

	for _, sum := range summaries {
		updatedAt := sum.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, query,
			sum.Ticker, string(sum.SourceInterval), sum.TradeDate,
			sum.States.State1D, sum.States.State3D, sum.States.State7D,
			sum.States.State14D, sum.States.State28D,
			nullBool(sum.MA8Above), nullBool(sum.MA21Above),
			nullBool(sum.MA50Above), nullBool(sum.MA200Above),
			sum.ScanJobID, updatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to upsert summary %s: %w", sum.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit summaries: %w", err)
	}

	s.logger.Debug().Int("count", len(summaries)).Msg("Summaries upserted")
	return nil
}

// RebuildForTradeDate re-derives summary rows from the persisted daily
// rows of a trade date. Programs that only write bars use this to bring
// the summary table forward in one statement.
func (s *SummaryStorage) RebuildForTradeDate(ctx context.Context, interval models.SourceInterval, tradeDate, scanJobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO summaries (ticker, source_interval, trade_date, state_1d, scan_job_id, updated_at)
		SELECT ticker, source_interval, trade_date,
			CASE
				WHEN volume_delta > 0 AND close <= prev_close THEN 'bullish'
				WHEN volume_delta < 0 AND close >= prev_close THEN 'bearish'
				ELSE 'neutral'
			END,
			?, ?
		FROM daily_bars
		WHERE trade_date = ? AND source_interval = ?
		ON CONFLICT(ticker, source_interval) DO UPDATE SET
			trade_date = excluded.trade_date,
			state_1d = excluded.state_1d,
			scan_job_id = excluded.scan_job_id,
			updated_at = excluded.updated_at
	`

	result, err := s.db.db.ExecContext(ctx, query,
		scanJobID, time.Now().Unix(), tradeDate, string(interval))
	if err != nil {
		return fmt.Errorf("failed to rebuild summaries for %s: %w", tradeDate, err)
	}

	affected, _ := result.RowsAffected()
	s.logger.Info().
		Str("trade_date", tradeDate).
		Str("source_interval", string(interval)).
		Int64("rows", affected).
		Msg("Summaries rebuilt from daily rows")
	return nil
}
