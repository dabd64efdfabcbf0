package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/models"
)

func TestBarStorage_UpsertIsIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewBarStorage(db, arbor.NewLogger())
	ctx := context.Background()

	bars := []models.DailyBar{
		{Ticker: "AAPL", TradeDate: "2026-08-20", SourceInterval: models.Interval1Day, Close: 100, PrevClose: 99, VolumeDelta: 0.1, ScanJobID: "job-1"},
		{Ticker: "AAPL", TradeDate: "2026-08-21", SourceInterval: models.Interval1Day, Close: 101, PrevClose: 100, VolumeDelta: 0.2, ScanJobID: "job-1"},
	}
	require.NoError(t, storage.UpsertBars(ctx, bars))

	// The backfill re-writes overlapping days with refreshed values.
	bars[1].Close = 102
	bars[1].ScanJobID = "job-2"
	require.NoError(t, storage.UpsertBars(ctx, bars))

	var count int
	require.NoError(t, db.DB().QueryRow("SELECT COUNT(*) FROM daily_bars").Scan(&count))
	assert.Equal(t, 2, count)

	got, err := storage.BarsForTradeDate(ctx, models.Interval1Day, "2026-08-21")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 102.0, got[0].Close)
	assert.Equal(t, "job-2", got[0].ScanJobID)
}

func TestBarStorage_BarsForTradeDate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewBarStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.UpsertBars(ctx, []models.DailyBar{
		{Ticker: "MSFT", TradeDate: "2026-08-21", SourceInterval: models.Interval1Day, Close: 300},
		{Ticker: "AAPL", TradeDate: "2026-08-21", SourceInterval: models.Interval1Day, Close: 100},
		{Ticker: "AAPL", TradeDate: "2026-08-20", SourceInterval: models.Interval1Day, Close: 99},
		{Ticker: "AAPL", TradeDate: "2026-08-21", SourceInterval: models.Interval1Week, Close: 100},
	}))

	got, err := storage.BarsForTradeDate(ctx, models.Interval1Day, "2026-08-21")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by ticker; other dates and intervals excluded.
	assert.Equal(t, "AAPL", got[0].Ticker)
	assert.Equal(t, "MSFT", got[1].Ticker)

	empty, err := storage.BarsForTradeDate(ctx, models.Interval1Day, "2026-08-22")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBarStorage_UpsertEmptyIsNoop(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewBarStorage(db, arbor.NewLogger())

	require.NoError(t, storage.UpsertBars(context.Background(), nil))
}
