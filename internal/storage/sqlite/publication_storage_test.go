package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/models"
)

func TestPublicationStorage_PublishedEmpty(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewPublicationStorage(db, arbor.NewLogger())

	published, err := storage.Published(context.Background(), models.Interval1Day)
	require.NoError(t, err)
	assert.Empty(t, published)
}

func TestPublicationStorage_AdvanceIsMonotone(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewPublicationStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.Advance(ctx, models.Interval1Day, "2026-08-20", "job-1"))

	published, err := storage.Published(ctx, models.Interval1Day)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-20", published)

	// A newer date moves the marker.
	require.NoError(t, storage.Advance(ctx, models.Interval1Day, "2026-08-21", "job-2"))
	published, err = storage.Published(ctx, models.Interval1Day)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-21", published)

	// An older date is a silent no-op.
	require.NoError(t, storage.Advance(ctx, models.Interval1Day, "2026-08-19", "job-3"))
	published, err = storage.Published(ctx, models.Interval1Day)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-21", published)

	// The same date is a no-op too.
	require.NoError(t, storage.Advance(ctx, models.Interval1Day, "2026-08-21", "job-4"))
	published, err = storage.Published(ctx, models.Interval1Day)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-21", published)
}

func TestPublicationStorage_IntervalsAreIndependent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	storage := NewPublicationStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.Advance(ctx, models.Interval1Day, "2026-08-21", "job-1"))
	require.NoError(t, storage.Advance(ctx, models.Interval1Week, "2026-08-14", "job-2"))

	daily, err := storage.Published(ctx, models.Interval1Day)
	require.NoError(t, err)
	weekly, err := storage.Published(ctx, models.Interval1Week)
	require.NoError(t, err)

	assert.Equal(t, "2026-08-21", daily)
	assert.Equal(t, "2026-08-14", weekly)
}
