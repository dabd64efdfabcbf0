package scan

import "github.com/ternarybob/speculor/internal/models"

// Settled is the captured result of one work unit: a value or the error
// that produced it, never both. Fan-out workers never propagate worker
// errors; they settle them.
type Settled[T any] struct {
	Value T
	Err   error
}

// Ok reports whether the work unit succeeded.
func (s Settled[T]) Ok() bool {
	return s.Err == nil
}

// MASeed carries what the MA enrichment pass needs for one ticker: the
// core summary row it will re-upsert with MA columns filled, and the
// close those columns compare against.
type MASeed struct {
	Ticker      string
	LatestClose float64
	Summary     models.Summary
}

// TickerOutcome is the payload of a successful per-ticker work unit.
// Which fields are populated depends on the program.
type TickerOutcome struct {
	Ticker  string
	Skipped bool

	// LatestTradeDate drives the publication marker at the end of the run.
	LatestTradeDate string

	Bars    []models.DailyBar
	Summary *models.Summary
	Signal  *models.Signal
	Neutral *models.NeutralMarker
	Seed    *MASeed
}
