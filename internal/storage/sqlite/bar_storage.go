package sqlite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
)

// BarStorage implements SQLite storage for per-day derived rows
type BarStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewBarStorage creates a new daily bar storage instance
func NewBarStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.BarStorage {
	return &BarStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertBars inserts or replaces daily rows keyed by
// (ticker, trade_date, source_interval)
func (s *BarStorage) UpsertBars(ctx context.Context, bars []models.DailyBar) error {
	if len(bars) == 0 {
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
		INSERT INTO daily_bars (
			ticker, trade_date, source_interval, close, prev_close, volume_delta, scan_job_id, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, trade_date, source_interval) DO UPDATE SET
			close = excluded.close,
			prev_close = excluded.prev_close,
			volume_delta = excluded.volume_delta,
			scan_job_id = excluded.scan_job_id,
			updated_at = excluded.updated_at
	`

	for _, bar := range bars {
		updatedAt := bar.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, query,
			bar.Ticker, bar.TradeDate, string(bar.SourceInterval),
			bar.Close, bar.PrevClose, bar.VolumeDelta,
			bar.ScanJobID, updatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to upsert bar %s/%s: %w", bar.Ticker, bar.TradeDate, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bars: %w", err)
	}

	s.logger.Debug().Int("count", len(bars)).Msg("Daily bars upserted")
	return nil
}

// BarsForTradeDate returns every daily row for a trade date and interval
func (s *BarStorage) BarsForTradeDate(ctx context.Context, interval models.SourceInterval, tradeDate string) ([]models.DailyBar, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT ticker, trade_date, source_interval, close, prev_close, volume_delta, scan_job_id, updated_at
		FROM daily_bars
		WHERE trade_date = ? AND source_interval = ?
		ORDER BY ticker`,
		tradeDate, string(interval))
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []models.DailyBar
	for rows.Next() {
		var bar models.DailyBar
		var sourceInterval string
		var updatedAt int64
		if err := rows.Scan(&bar.Ticker, &bar.TradeDate, &sourceInterval,
			&bar.Close, &bar.PrevClose, &bar.VolumeDelta,
			&bar.ScanJobID, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bar.SourceInterval = models.SourceInterval(sourceInterval)
		bar.UpdatedAt = unixToTime(updatedAt)
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}
