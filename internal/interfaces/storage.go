package interfaces

import (
	"context"

	"github.com/ternarybob/speculor/internal/models"
)

// SymbolStorage persists the scan universe.
type SymbolStorage interface {
	ActiveTickers(ctx context.Context) ([]string, error)
	UpsertSymbols(ctx context.Context, symbols []models.Symbol) error
	Count(ctx context.Context) (int, error)
}

// BarStorage persists per-day derived rows. Upserts on
// (ticker, trade_date, source_interval).
type BarStorage interface {
	UpsertBars(ctx context.Context, bars []models.DailyBar) error
	BarsForTradeDate(ctx context.Context, interval models.SourceInterval, tradeDate string) ([]models.DailyBar, error)
}

// SummaryStorage persists per-ticker technical state rows. Upserts on
// (ticker, source_interval); MA columns overwrite only when non-nil.
type SummaryStorage interface {
	UpsertSummaries(ctx context.Context, summaries []models.Summary) error
	RebuildForTradeDate(ctx context.Context, interval models.SourceInterval, tradeDate, scanJobID string) error
}

// SignalStorage persists divergence signals and removes the ones that
// settled back to neutral.
type SignalStorage interface {
	UpsertSignals(ctx context.Context, signals []models.Signal) error
	DeleteNeutral(ctx context.Context, markers []models.NeutralMarker) error
}

// PublicationStorage records the latest externally visible trade date per
// source interval. Advance is monotonic: an older incoming date is a no-op.
type PublicationStorage interface {
	Published(ctx context.Context, interval models.SourceInterval) (string, error)
	Advance(ctx context.Context, interval models.SourceInterval, tradeDate, scanJobID string) error
}

// ScanJobStorage is the per-run job ledger.
type ScanJobStorage interface {
	Insert(ctx context.Context, job *models.ScanJob) error
	Update(ctx context.Context, job *models.ScanJob) error
	Get(ctx context.Context, id string) (*models.ScanJob, error)
	LatestByProgram(ctx context.Context, program string) (*models.ScanJob, error)
}

// MetricsStorage appends run metrics history rows.
type MetricsStorage interface {
	Append(ctx context.Context, record *models.RunMetricsRecord) error
	LatestByRunType(ctx context.Context, runType string) (*models.RunMetricsRecord, error)
}

// StorageManager bundles all storage backends.
type StorageManager interface {
	Symbols() SymbolStorage
	Bars() BarStorage
	Summaries() SummaryStorage
	Signals() SignalStorage
	Publication() PublicationStorage
	ScanJobs() ScanJobStorage
	Metrics() MetricsStorage
	Close() error
}
