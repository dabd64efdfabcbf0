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

// unixToTime converts Unix timestamp to time.Time
func unixToTime(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

// boolToInt converts a bool to a SQLite integer
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SymbolStorage implements SQLite storage for the scan universe
type SymbolStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewSymbolStorage creates a new symbol storage instance
func NewSymbolStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.SymbolStorage {
	return &SymbolStorage{
		db:     db,
		logger: logger,
	}
}

// ActiveTickers returns the active universe in deterministic order
func (s *SymbolStorage) ActiveTickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.db.QueryContext(ctx,
		"SELECT ticker FROM symbols WHERE is_active = 1 ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to query active tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, ticker)
	}
	return tickers, rows.Err()
}

// UpsertSymbols inserts or refreshes universe members
func (s *SymbolStorage) UpsertSymbols(ctx context.Context, symbols []models.Symbol) error {
	if len(symbols) == 0 {
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
		INSERT INTO symbols (ticker, is_active, exchange, asset_type, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			is_active = excluded.is_active,
			exchange = excluded.exchange,
			asset_type = excluded.asset_type,
			updated_at = excluded.updated_at
	`

	for _, sym := range symbols {
		updatedAt := sym.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, query,
			sym.Ticker, boolToInt(sym.IsActive), sym.Exchange, sym.AssetType, updatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to upsert symbol %s: %w", sym.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit symbols: %w", err)
	}

	s.logger.Debug().Int("count", len(symbols)).Msg("Symbols upserted")
	return nil
}

// Count returns the number of active universe members
func (s *SymbolStorage) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM symbols WHERE is_active = 1").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count symbols: %w", err)
	}
	return count, nil
}
