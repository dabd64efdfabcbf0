package models

import "time"

// Bar is a single raw price/volume bar fetched from the provider.
// Bars are scoped to one per-ticker work unit and never persisted as-is.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// DailyBar is the persisted per-day row derived from raw bars.
// Primary key: (ticker, trade_date, source_interval). Upsert on key.
type DailyBar struct {
	Ticker         string         `json:"ticker"`
	TradeDate      string         `json:"trade_date"` // YYYY-MM-DD in ET
	SourceInterval SourceInterval `json:"source_interval"`
	Close          float64        `json:"close"`
	PrevClose      float64        `json:"prev_close"`
	VolumeDelta    float64        `json:"volume_delta"`
	ScanJobID      string         `json:"scan_job_id"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
