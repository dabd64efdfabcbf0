package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
)

// MetricsStorage implements SQLite storage for run metrics history
type MetricsStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewMetricsStorage creates a new metrics storage instance
func NewMetricsStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.MetricsStorage {
	return &MetricsStorage{
		db:     db,
		logger: logger,
	}
}

// Append writes one history row. Re-appending the same run_id replaces
// the snapshot, so a run that finishes twice (stop race) keeps one row.
func (s *MetricsStorage) Append(ctx context.Context, record *models.RunMetricsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := record.Snapshot
	if len(snapshot) == 0 {
		snapshot = json.RawMessage("{}")
	}

	var finishedAt int64
	if !record.FinishedAt.IsZero() {
		finishedAt = record.FinishedAt.Unix()
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO run_metrics_history (run_id, run_type, status, snapshot, started_at, finished_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			snapshot = excluded.snapshot,
			finished_at = excluded.finished_at
	`

	_, err := s.db.db.ExecContext(ctx, query,
		record.RunID, record.RunType, record.Status, string(snapshot),
		record.StartedAt.Unix(), finishedAt, createdAt.Unix())
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", record.RunID).Msg("Failed to append run metrics")
		return fmt.Errorf("failed to append run metrics: %w", err)
	}

	s.logger.Debug().Str("run_id", record.RunID).Str("run_type", record.RunType).Msg("Run metrics appended")
	return nil
}

// LatestByRunType retrieves the newest history row for a run type, or nil
// when the type never ran
func (s *MetricsStorage) LatestByRunType(ctx context.Context, runType string) (*models.RunMetricsRecord, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT id, run_id, run_type, status, snapshot, started_at, finished_at, created_at
		FROM run_metrics_history
		WHERE run_type = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, runType)

	var record models.RunMetricsRecord
	var snapshot string
	var startedAt, finishedAt, createdAt int64
	err := row.Scan(&record.ID, &record.RunID, &record.RunType, &record.Status,
		&snapshot, &startedAt, &finishedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run metrics: %w", err)
	}

	record.Snapshot = json.RawMessage(snapshot)
	record.StartedAt = unixToTime(startedAt)
	record.FinishedAt = unixToTime(finishedAt)
	record.CreatedAt = unixToTime(createdAt)
	return &record, nil
}
