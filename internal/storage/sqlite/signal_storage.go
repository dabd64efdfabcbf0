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

// SignalStorage implements SQLite storage for divergence signals
type SignalStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewSignalStorage creates a new signal storage instance
func NewSignalStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.SignalStorage {
	return &SignalStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertSignals inserts or replaces signals keyed by
// (trade_date, ticker, timeframe, source_interval). Favorite flags are
// user state and survive re-scans.
func (s *SignalStorage) UpsertSignals(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
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
		INSERT INTO signals (
			ticker, signal_type, trade_date, price, prev_close, volume_delta,
			timeframe, source_interval, timestamp, is_favorite, scan_job_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_date, ticker, timeframe, source_interval) DO UPDATE SET
			signal_type = excluded.signal_type,
			price = excluded.price,
			prev_close = excluded.prev_close,
			volume_delta = excluded.volume_delta,
			timestamp = excluded.timestamp,
			scan_job_id = excluded.scan_job_id
	`

	for _, sig := range signals {
		ts := sig.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := tx.ExecContext(ctx, query,
			sig.Ticker, sig.SignalType, sig.TradeDate,
			sig.Price, sig.PrevClose, sig.VolumeDelta,
			sig.Timeframe, string(sig.SourceInterval),
			ts.Unix(), boolToInt(sig.IsFavorite), sig.ScanJobID); err != nil {
			return fmt.Errorf("failed to upsert signal %s/%s: %w", sig.Ticker, sig.TradeDate, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit signals: %w", err)
	}

	s.logger.Debug().Int("count", len(signals)).Msg("Signals upserted")
	return nil
}

// DeleteNeutral removes previously published signals whose latest class
// settled back to neutral
func (s *SignalStorage) DeleteNeutral(ctx context.Context, markers []models.NeutralMarker) error {
	if len(markers) == 0 {
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
		DELETE FROM signals
		WHERE trade_date = ? AND ticker = ? AND timeframe = ? AND source_interval = ?
	`

	deleted := int64(0)
	for _, m := range markers {
		result, err := tx.ExecContext(ctx, query,
			m.TradeDate, m.Ticker, m.Timeframe, string(m.SourceInterval))
		if err != nil {
			return fmt.Errorf("failed to delete neutral signal %s/%s: %w", m.Ticker, m.TradeDate, err)
		}
		n, _ := result.RowsAffected()
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit signal deletions: %w", err)
	}

	s.logger.Debug().Int("markers", len(markers)).Int64("deleted", deleted).Msg("Neutral signals removed")
	return nil
}
