package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/common"
)

// setupTestDB creates a migrated database in a temp directory.
func setupTestDB(t *testing.T) (*SQLiteDB, func()) {
	t.Helper()

	logger := arbor.NewLogger()
	config := &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "test.db"),
		CacheSizeMB:   16,
		BusyTimeoutMS: 5000,
		WALMode:       false,
	}

	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	return db, func() { db.Close() }
}
