package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/models"
)

func TestMetricsStorage_AppendAndLatest(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewMetricsStorage(db, arbor.NewLogger())
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	require.NoError(t, storage.Append(ctx, &models.RunMetricsRecord{
		RunID:     "run-1",
		RunType:   "fetch-daily",
		Status:    "completed",
		Snapshot:  json.RawMessage(`{"processed":100}`),
		StartedAt: base,
		CreatedAt: base,
	}))
	require.NoError(t, storage.Append(ctx, &models.RunMetricsRecord{
		RunID:     "run-2",
		RunType:   "fetch-daily",
		Status:    "completed-with-errors",
		Snapshot:  json.RawMessage(`{"processed":98}`),
		StartedAt: base.Add(30 * time.Minute),
		CreatedAt: base.Add(30 * time.Minute),
	}))

	latest, err := storage.LatestByRunType(ctx, "fetch-daily")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "run-2", latest.RunID)
	assert.Equal(t, "completed-with-errors", latest.Status)
	assert.JSONEq(t, `{"processed":98}`, string(latest.Snapshot))
}

func TestMetricsStorage_LatestByRunTypeMissing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewMetricsStorage(db, arbor.NewLogger())

	latest, err := storage.LatestByRunType(context.Background(), "detector")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestMetricsStorage_ReappendReplacesRow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewMetricsStorage(db, arbor.NewLogger())
	ctx := context.Background()

	record := &models.RunMetricsRecord{
		RunID:     "run-1",
		RunType:   "fetch-daily",
		Status:    "stopped",
		StartedAt: time.Now(),
	}
	require.NoError(t, storage.Append(ctx, record))

	record.Status = "completed"
	record.Snapshot = json.RawMessage(`{"processed":100}`)
	record.FinishedAt = time.Now()
	require.NoError(t, storage.Append(ctx, record))

	var count int
	require.NoError(t, db.DB().QueryRow("SELECT COUNT(*) FROM run_metrics_history").Scan(&count))
	assert.Equal(t, 1, count)

	latest, err := storage.LatestByRunType(ctx, "fetch-daily")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "completed", latest.Status)
	assert.False(t, latest.FinishedAt.IsZero())
}

func TestMetricsStorage_EmptySnapshotStoredAsObject(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewMetricsStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.Append(ctx, &models.RunMetricsRecord{
		RunID:     "run-1",
		RunType:   "detector",
		Status:    "skipped",
		StartedAt: time.Now(),
	}))

	latest, err := storage.LatestByRunType(ctx, "detector")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.JSONEq(t, `{}`, string(latest.Snapshot))
}
