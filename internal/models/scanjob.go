package models

import "time"

// JobStatus is the lifecycle status of a scan job row.
type JobStatus string

const (
	JobRunning             JobStatus = "running"
	JobPaused              JobStatus = "paused"
	JobStopping            JobStatus = "stopping"
	JobStopped             JobStatus = "stopped"
	JobCompleted           JobStatus = "completed"
	JobCompletedWithErrors JobStatus = "completed-with-errors"
	JobFailed              JobStatus = "failed"
	JobSummarizing         JobStatus = "summarizing"
)

// ScanJob is the per-run ledger record. Notes carries the JSON-encoded
// resume snapshot while the run can still be resumed.
type ScanJob struct {
	ID               string    `json:"id"`
	Program          string    `json:"program"`
	RunForDate       string    `json:"run_for_date"`
	ScannedTradeDate string    `json:"scanned_trade_date"`
	Status           JobStatus `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	TotalSymbols     int       `json:"total_symbols"`
	ProcessedSymbols int       `json:"processed_symbols"`
	BullishCount     int       `json:"bullish_count"`
	BearishCount     int       `json:"bearish_count"`
	ErrorCount       int       `json:"error_count"`
	Notes            string    `json:"notes"`
}
