package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
)

// PublicationStorage implements SQLite storage for the publication marker
type PublicationStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewPublicationStorage creates a new publication state storage instance
func NewPublicationStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.PublicationStorage {
	return &PublicationStorage{
		db:     db,
		logger: logger,
	}
}

// Published returns the latest published trade date for an interval, or
// empty when nothing was published yet
func (s *PublicationStorage) Published(ctx context.Context, interval models.SourceInterval) (string, error) {
	var tradeDate string
	err := s.db.db.QueryRowContext(ctx,
		"SELECT trade_date FROM publication_state WHERE source_interval = ?",
		string(interval)).Scan(&tradeDate)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query publication state: %w", err)
	}
	return tradeDate, nil
}

// Advance moves the marker forward. Trade dates are YYYY-MM-DD so string
// comparison orders them; an incoming date at or behind the stored one is
// a no-op, which keeps the marker monotonic under concurrent runs.
func (s *PublicationStorage) Advance(ctx context.Context, interval models.SourceInterval, tradeDate, scanJobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO publication_state (source_interval, trade_date, scan_job_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_interval) DO UPDATE SET
			trade_date = excluded.trade_date,
			scan_job_id = excluded.scan_job_id,
			updated_at = excluded.updated_at
		WHERE excluded.trade_date > publication_state.trade_date
	`

	result, err := s.db.db.ExecContext(ctx, query,
		string(interval), tradeDate, scanJobID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to advance publication state: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		s.logger.Info().
			Str("source_interval", string(interval)).
			Str("trade_date", tradeDate).
			Msg("Publication marker advanced")
	} else {
		s.logger.Debug().
			Str("source_interval", string(interval)).
			Str("trade_date", tradeDate).
			Msg("Publication marker unchanged")
	}
	return nil
}
