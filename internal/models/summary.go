package models

import "time"

// Divergence classes.
const (
	StateBullish = "bullish"
	StateBearish = "bearish"
	StateNeutral = "neutral"
)

// LookbackWindows are the trading-day lookbacks every summary row carries.
var LookbackWindows = []int{1, 3, 7, 14, 28}

// DivergenceStates holds the divergence class per lookback window.
// Every field is always populated; missing history yields neutral.
type DivergenceStates struct {
	State1D  string `json:"state_1d"`
	State3D  string `json:"state_3d"`
	State7D  string `json:"state_7d"`
	State14D string `json:"state_14d"`
	State28D string `json:"state_28d"`
}

// AllNeutral returns the zero-history state set.
func AllNeutral() DivergenceStates {
	return DivergenceStates{
		State1D:  StateNeutral,
		State3D:  StateNeutral,
		State7D:  StateNeutral,
		State14D: StateNeutral,
		State28D: StateNeutral,
	}
}

// Summary is the per-ticker per-source-interval technical state row.
// Primary key: (ticker, source_interval). MA columns overwrite only when
// non-nil so an enrichment pass can fill them after the core pass.
type Summary struct {
	Ticker         string           `json:"ticker"`
	SourceInterval SourceInterval   `json:"source_interval"`
	TradeDate      string           `json:"trade_date"`
	States         DivergenceStates `json:"states"`
	MA8Above       *bool            `json:"ma8_above,omitempty"`
	MA21Above      *bool            `json:"ma21_above,omitempty"`
	MA50Above      *bool            `json:"ma50_above,omitempty"`
	MA200Above     *bool            `json:"ma200_above,omitempty"`
	ScanJobID      string           `json:"scan_job_id"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
