package sqlite

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/interfaces"
)

// Manager implements the StorageManager interface
type Manager struct {
	db          *SQLiteDB
	symbols     interfaces.SymbolStorage
	bars        interfaces.BarStorage
	summaries   interfaces.SummaryStorage
	signals     interfaces.SignalStorage
	publication interfaces.PublicationStorage
	scanJobs    interfaces.ScanJobStorage
	metrics     interfaces.MetricsStorage
	logger      arbor.ILogger
}

// NewManager creates a new SQLite storage manager
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:          db,
		symbols:     NewSymbolStorage(db, logger),
		bars:        NewBarStorage(db, logger),
		summaries:   NewSummaryStorage(db, logger),
		signals:     NewSignalStorage(db, logger),
		publication: NewPublicationStorage(db, logger),
		scanJobs:    NewScanJobStorage(db, logger),
		metrics:     NewMetricsStorage(db, logger),
		logger:      logger,
	}, nil
}

// Symbols returns the symbol storage interface
func (m *Manager) Symbols() interfaces.SymbolStorage {
	return m.symbols
}

// Bars returns the daily bar storage interface
func (m *Manager) Bars() interfaces.BarStorage {
	return m.bars
}

// Summaries returns the summary storage interface
func (m *Manager) Summaries() interfaces.SummaryStorage {
	return m.summaries
}

// Signals returns the signal storage interface
func (m *Manager) Signals() interfaces.SignalStorage {
	return m.signals
}

// Publication returns the publication state storage interface
func (m *Manager) Publication() interfaces.PublicationStorage {
	return m.publication
}

// ScanJobs returns the scan job ledger interface
func (m *Manager) ScanJobs() interfaces.ScanJobStorage {
	return m.scanJobs
}

// Metrics returns the run metrics history interface
func (m *Manager) Metrics() interfaces.MetricsStorage {
	return m.metrics
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.DB()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
