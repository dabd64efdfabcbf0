package models

import "time"

// Signal timeframes.
const (
	Timeframe1D = "1d"
	Timeframe1W = "1w"
)

// Signal is a persisted one-timeframe divergence signal.
// Unique on (trade_date, ticker, timeframe, source_interval).
type Signal struct {
	ID             int64          `json:"id"`
	Ticker         string         `json:"ticker"`
	SignalType     string         `json:"signal_type"` // bullish, bearish, neutral
	TradeDate      string         `json:"trade_date"`
	Price          float64        `json:"price"`
	PrevClose      float64        `json:"prev_close"`
	VolumeDelta    float64        `json:"volume_delta"`
	Timeframe      string         `json:"timeframe"`
	SourceInterval SourceInterval `json:"source_interval"`
	Timestamp      time.Time      `json:"timestamp"`
	IsFavorite     bool           `json:"is_favorite"`
	ScanJobID      string         `json:"scan_job_id"`
}

// NeutralMarker requests deletion of a previously published signal for
// (ticker, trade_date, timeframe, source_interval) whose latest class
// settled back to neutral.
type NeutralMarker struct {
	Ticker         string         `json:"ticker"`
	TradeDate      string         `json:"trade_date"`
	Timeframe      string         `json:"timeframe"`
	SourceInterval SourceInterval `json:"source_interval"`
}
