package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
)

// ScanJobStorage implements the SQLite scan job ledger
type ScanJobStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewScanJobStorage creates a new scan job storage instance
func NewScanJobStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.ScanJobStorage {
	return &ScanJobStorage{
		db:     db,
		logger: logger,
	}
}

const scanJobColumns = `
	id, program, run_for_date, scanned_trade_date, status,
	started_at, finished_at, total_symbols, processed_symbols,
	bullish_count, bearish_count, error_count, notes
`

// Insert creates a new ledger row
func (s *ScanJobStorage) Insert(ctx context.Context, job *models.ScanJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO scan_jobs (` + scanJobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var finishedAt int64
	if !job.FinishedAt.IsZero() {
		finishedAt = job.FinishedAt.Unix()
	}

	_, err := s.db.db.ExecContext(ctx, query,
		job.ID, job.Program, job.RunForDate, job.ScannedTradeDate, string(job.Status),
		job.StartedAt.Unix(), finishedAt, job.TotalSymbols, job.ProcessedSymbols,
		job.BullishCount, job.BearishCount, job.ErrorCount, job.Notes)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to insert scan job")
		return fmt.Errorf("failed to insert scan job: %w", err)
	}

	s.logger.Debug().Str("job_id", job.ID).Str("program", job.Program).Msg("Scan job created")
	return nil
}

// Update rewrites the mutable fields of an existing row
func (s *ScanJobStorage) Update(ctx context.Context, job *models.ScanJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE scan_jobs SET
			scanned_trade_date = ?,
			status = ?,
			finished_at = ?,
			total_symbols = ?,
			processed_symbols = ?,
			bullish_count = ?,
			bearish_count = ?,
			error_count = ?,
			notes = ?,
			updated_at = strftime('%s', 'now')
		WHERE id = ?
	`

	var finishedAt int64
	if !job.FinishedAt.IsZero() {
		finishedAt = job.FinishedAt.Unix()
	}

	result, err := s.db.db.ExecContext(ctx, query,
		job.ScannedTradeDate, string(job.Status), finishedAt,
		job.TotalSymbols, job.ProcessedSymbols,
		job.BullishCount, job.BearishCount, job.ErrorCount, job.Notes,
		job.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to update scan job")
		return fmt.Errorf("failed to update scan job: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("scan job not found: %s", job.ID)
	}
	return nil
}

// Get retrieves a ledger row by ID
func (s *ScanJobStorage) Get(ctx context.Context, id string) (*models.ScanJob, error) {
	row := s.db.db.QueryRowContext(ctx,
		"SELECT "+scanJobColumns+" FROM scan_jobs WHERE id = ?", id)
	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan job not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan job: %w", err)
	}
	return job, nil
}

// LatestByProgram retrieves the most recently started row for a program,
// or nil when the program never ran
func (s *ScanJobStorage) LatestByProgram(ctx context.Context, program string) (*models.ScanJob, error) {
	row := s.db.db.QueryRowContext(ctx,
		"SELECT "+scanJobColumns+` FROM scan_jobs
		WHERE program = ? ORDER BY started_at DESC, id DESC LIMIT 1`, program)
	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest scan job: %w", err)
	}
	return job, nil
}

func scanJobFromRow(row *sql.Row) (*models.ScanJob, error) {
	var job models.ScanJob
	var status string
	var startedAt, finishedAt int64
	err := row.Scan(&job.ID, &job.Program, &job.RunForDate, &job.ScannedTradeDate, &status,
		&startedAt, &finishedAt, &job.TotalSymbols, &job.ProcessedSymbols,
		&job.BullishCount, &job.BearishCount, &job.ErrorCount, &job.Notes)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	job.StartedAt = unixToTime(startedAt)
	job.FinishedAt = unixToTime(finishedAt)
	return &job, nil
}
