package scan

import (
	"encoding/json"
	"fmt"
)

// ResumeSnapshot is the state needed to restart an interrupted run.
// Serialised as JSON into the notes column of the current scan job on
// every progress checkpoint. Unknown keys in stored snapshots are
// dropped silently on decode for forward compatibility.
type ResumeSnapshot struct {
	Program                 string            `json:"program"`
	SourceInterval          string            `json:"source_interval"`
	AsOfTradeDate           string            `json:"as_of_trade_date,omitempty"`
	WeeklyTradeDate         string            `json:"weekly_trade_date,omitempty"`
	Tickers                 []string          `json:"tickers"`
	Total                   int               `json:"total"`
	NextIndex               int               `json:"next_index"`
	Processed               int               `json:"processed"`
	Errors                  int               `json:"errors"`
	LookbackDays            int               `json:"lookback_days,omitempty"`
	LastPublishedTradeDate  string            `json:"last_published_trade_date,omitempty"`
	Extra                   map[string]string `json:"extra,omitempty"`
}

// EncodeSnapshot serialises a snapshot for the notes column.
func EncodeSnapshot(s *ResumeSnapshot) (string, error) {
	if s == nil {
		return "", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode resume snapshot: %w", err)
	}
	return string(data), nil
}

// DecodeSnapshot rehydrates a snapshot from the notes column. Empty
// notes yield nil without error.
func DecodeSnapshot(notes string) (*ResumeSnapshot, error) {
	if notes == "" {
		return nil, nil
	}
	var s ResumeSnapshot
	if err := json.Unmarshal([]byte(notes), &s); err != nil {
		return nil, fmt.Errorf("failed to decode resume snapshot: %w", err)
	}
	return &s, nil
}

// NormalizeSnapshot applies the clamping policies in place: counters are
// coerced non-negative and next_index is clamped to [0, total].
func NormalizeSnapshot(s *ResumeSnapshot) {
	if s == nil {
		return
	}
	if s.Total < 0 {
		s.Total = 0
	}
	if s.Total > len(s.Tickers) {
		s.Total = len(s.Tickers)
	}
	if s.Processed < 0 {
		s.Processed = 0
	}
	if s.Errors < 0 {
		s.Errors = 0
	}
	if s.NextIndex < 0 {
		s.NextIndex = 0
	}
	if s.NextIndex > s.Total {
		s.NextIndex = s.Total
	}
	if s.LookbackDays < 0 {
		s.LookbackDays = 0
	}
}

// Valid reports whether a normalised snapshot can seed a resume. A
// snapshot with nothing left to do, or missing the per-program trade
// date it was scoped to, is a no-resume.
func (s *ResumeSnapshot) Valid(program Program) bool {
	if s == nil {
		return false
	}
	if s.Program != string(program) {
		return false
	}
	if s.Total == 0 || s.NextIndex >= s.Total {
		return false
	}
	switch program {
	case ProgramFetchWeekly:
		if s.WeeklyTradeDate == "" {
			return false
		}
	default:
		if s.AsOfTradeDate == "" {
			return false
		}
	}
	return true
}
