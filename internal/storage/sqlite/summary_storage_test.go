package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/models"
)

func boolPtr(b bool) *bool { return &b }

// readSummaryRow pulls the raw row so tests can see the nullable MA
// columns exactly as stored.
func readSummaryRow(t *testing.T, db *SQLiteDB, ticker string) (state1d string, ma8 sql.NullInt64, jobID string) {
	t.Helper()
	err := db.DB().QueryRow(
		"SELECT state_1d, ma8_above, scan_job_id FROM summaries WHERE ticker = ? AND source_interval = '1day'",
		ticker).Scan(&state1d, &ma8, &jobID)
	require.NoError(t, err)
	return
}

func TestSummaryStorage_UpsertReplacesStates(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewSummaryStorage(db, arbor.NewLogger())
	ctx := context.Background()

	first := models.Summary{
		Ticker:         "AAPL",
		SourceInterval: models.Interval1Day,
		TradeDate:      "2026-08-20",
		States:         models.DivergenceStates{State1D: models.StateBullish, State3D: models.StateNeutral},
		ScanJobID:      "job-1",
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, storage.UpsertSummaries(ctx, []models.Summary{first}))

	second := first
	second.TradeDate = "2026-08-21"
	second.States.State1D = models.StateBearish
	second.ScanJobID = "job-2"
	require.NoError(t, storage.UpsertSummaries(ctx, []models.Summary{second}))

	state1d, _, jobID := readSummaryRow(t, db, "AAPL")
	assert.Equal(t, models.StateBearish, state1d)
	assert.Equal(t, "job-2", jobID)

	var count int
	require.NoError(t, db.DB().QueryRow("SELECT COUNT(*) FROM summaries").Scan(&count))
	assert.Equal(t, 1, count, "re-upsert must not create a second row")
}

func TestSummaryStorage_NullMADoesNotWipeStoredValue(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewSummaryStorage(db, arbor.NewLogger())
	ctx := context.Background()

	enriched := models.Summary{
		Ticker:         "MSFT",
		SourceInterval: models.Interval1Day,
		TradeDate:      "2026-08-20",
		MA8Above:       boolPtr(true),
	}
	require.NoError(t, storage.UpsertSummaries(ctx, []models.Summary{enriched}))

	// The next core pass carries no MA values.
	core := models.Summary{
		Ticker:         "MSFT",
		SourceInterval: models.Interval1Day,
		TradeDate:      "2026-08-21",
		States:         models.DivergenceStates{State1D: models.StateBullish},
	}
	require.NoError(t, storage.UpsertSummaries(ctx, []models.Summary{core}))

	state1d, ma8, _ := readSummaryRow(t, db, "MSFT")
	assert.Equal(t, models.StateBullish, state1d)
	require.True(t, ma8.Valid, "stored MA value must survive a null upsert")
	assert.EqualValues(t, 1, ma8.Int64)

	// A non-null value does overwrite.
	flip := core
	flip.MA8Above = boolPtr(false)
	require.NoError(t, storage.UpsertSummaries(ctx, []models.Summary{flip}))

	_, ma8, _ = readSummaryRow(t, db, "MSFT")
	require.True(t, ma8.Valid)
	assert.EqualValues(t, 0, ma8.Int64)
}

func TestSummaryStorage_IntervalsAreSeparateRows(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewSummaryStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.UpsertSummaries(ctx, []models.Summary{
		{Ticker: "AAPL", SourceInterval: models.Interval1Day, TradeDate: "2026-08-21"},
		{Ticker: "AAPL", SourceInterval: models.Interval1Week, TradeDate: "2026-08-21"},
	}))

	var count int
	require.NoError(t, db.DB().QueryRow(
		"SELECT COUNT(*) FROM summaries WHERE ticker = 'AAPL'").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestSummaryStorage_RebuildForTradeDate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	bars := NewBarStorage(db, arbor.NewLogger())
	storage := NewSummaryStorage(db, arbor.NewLogger())
	ctx := context.Background()

	// Volume building into flat or falling price reads as quiet
	// accumulation; draining volume under a steady price as distribution.
	require.NoError(t, bars.UpsertBars(ctx, []models.DailyBar{
		{Ticker: "ACC", TradeDate: "2026-08-21", SourceInterval: models.Interval1Day, Close: 100, PrevClose: 100, VolumeDelta: 0.4},
		{Ticker: "DIS", TradeDate: "2026-08-21", SourceInterval: models.Interval1Day, Close: 101, PrevClose: 100, VolumeDelta: -0.3},
		{Ticker: "FLT", TradeDate: "2026-08-21", SourceInterval: models.Interval1Day, Close: 102, PrevClose: 100, VolumeDelta: 0.4},
		// Wrong trade date: must not be picked up.
		{Ticker: "OLD", TradeDate: "2026-08-20", SourceInterval: models.Interval1Day, Close: 100, PrevClose: 100, VolumeDelta: 0.4},
	}))

	require.NoError(t, storage.RebuildForTradeDate(ctx, models.Interval1Day, "2026-08-21", "job-1"))

	expected := map[string]string{
		"ACC": models.StateBullish,
		"DIS": models.StateBearish,
		"FLT": models.StateNeutral,
	}
	for ticker, want := range expected {
		state1d, _, jobID := readSummaryRow(t, db, ticker)
		assert.Equal(t, want, state1d, ticker)
		assert.Equal(t, "job-1", jobID, ticker)
	}

	var count int
	require.NoError(t, db.DB().QueryRow("SELECT COUNT(*) FROM summaries").Scan(&count))
	assert.Equal(t, 3, count, "stale trade date leaked into the rebuild")
}
