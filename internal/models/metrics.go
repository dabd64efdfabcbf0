package models

import (
	"encoding/json"
	"time"
)

// RunMetricsRecord is one persisted run-history row. Snapshot holds the
// full JSON-encoded metrics summary for the run; run_id is unique per run.
type RunMetricsRecord struct {
	ID         int64           `json:"id"`
	RunID      string          `json:"run_id"`
	RunType    string          `json:"run_type"`
	Status     string          `json:"status"`
	Snapshot   json.RawMessage `json:"snapshot"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	CreatedAt  time.Time       `json:"created_at"`
}
