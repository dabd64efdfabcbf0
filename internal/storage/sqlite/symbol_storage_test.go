package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/models"
)

func TestSymbolStorage_ActiveTickers(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewSymbolStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.UpsertSymbols(ctx, []models.Symbol{
		{Ticker: "MSFT", IsActive: true, Exchange: "XNAS"},
		{Ticker: "AAPL", IsActive: true, Exchange: "XNAS"},
		{Ticker: "DEAD", IsActive: false},
	}))

	tickers, err := storage.ActiveTickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, tickers)

	count, err := storage.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSymbolStorage_UpsertDeactivates(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewSymbolStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.UpsertSymbols(ctx, []models.Symbol{
		{Ticker: "AAPL", IsActive: true},
	}))

	// The directory refresh delists the ticker.
	require.NoError(t, storage.UpsertSymbols(ctx, []models.Symbol{
		{Ticker: "AAPL", IsActive: false, Exchange: "XNAS"},
	}))

	tickers, err := storage.ActiveTickers(ctx)
	require.NoError(t, err)
	assert.Empty(t, tickers)

	var count int
	require.NoError(t, db.DB().QueryRow("SELECT COUNT(*) FROM symbols").Scan(&count))
	assert.Equal(t, 1, count, "deactivation keeps the row")
}

func TestSymbolStorage_EmptyDatabase(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewSymbolStorage(db, arbor.NewLogger())
	ctx := context.Background()

	tickers, err := storage.ActiveTickers(ctx)
	require.NoError(t, err)
	assert.Empty(t, tickers)

	count, err := storage.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
