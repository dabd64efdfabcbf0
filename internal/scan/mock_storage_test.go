package scan

import (
	"context"
	"errors"
	"sync"

	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
)

// memStorage is an in-memory StorageManager recording every write, used
// by the flusher and tracker tests.
type memStorage struct {
	mu sync.Mutex

	barBatches     [][]models.DailyBar
	summaries      []models.Summary
	signals        []models.Signal
	neutralDeletes []models.NeutralMarker
	metricsRecords []*models.RunMetricsRecord
	jobs           map[string]*models.ScanJob

	failBars bool
}

func newMemStorage() *memStorage {
	return &memStorage{jobs: map[string]*models.ScanJob{}}
}

func (m *memStorage) Symbols() interfaces.SymbolStorage         { return nil }
func (m *memStorage) Bars() interfaces.BarStorage               { return (*memBars)(m) }
func (m *memStorage) Summaries() interfaces.SummaryStorage      { return (*memSummaries)(m) }
func (m *memStorage) Signals() interfaces.SignalStorage         { return (*memSignals)(m) }
func (m *memStorage) Publication() interfaces.PublicationStorage { return nil }
func (m *memStorage) ScanJobs() interfaces.ScanJobStorage       { return (*memJobs)(m) }
func (m *memStorage) Metrics() interfaces.MetricsStorage        { return (*memMetrics)(m) }
func (m *memStorage) Close() error                              { return nil }

type memBars memStorage

func (m *memBars) UpsertBars(ctx context.Context, bars []models.DailyBar) error {
	s := (*memStorage)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failBars {
		return errors.New("bar write refused")
	}
	batch := make([]models.DailyBar, len(bars))
	copy(batch, bars)
	s.barBatches = append(s.barBatches, batch)
	return nil
}

func (m *memBars) BarsForTradeDate(ctx context.Context, interval models.SourceInterval, tradeDate string) ([]models.DailyBar, error) {
	return nil, nil
}

type memSummaries memStorage

func (m *memSummaries) UpsertSummaries(ctx context.Context, summaries []models.Summary) error {
	s := (*memStorage)(m)
	s.mu.Lock()
	s.summaries = append(s.summaries, summaries...)
	s.mu.Unlock()
	return nil
}

func (m *memSummaries) RebuildForTradeDate(ctx context.Context, interval models.SourceInterval, tradeDate, scanJobID string) error {
	return nil
}

type memSignals memStorage

func (m *memSignals) UpsertSignals(ctx context.Context, signals []models.Signal) error {
	s := (*memStorage)(m)
	s.mu.Lock()
	s.signals = append(s.signals, signals...)
	s.mu.Unlock()
	return nil
}

func (m *memSignals) DeleteNeutral(ctx context.Context, markers []models.NeutralMarker) error {
	s := (*memStorage)(m)
	s.mu.Lock()
	s.neutralDeletes = append(s.neutralDeletes, markers...)
	s.mu.Unlock()
	return nil
}

type memJobs memStorage

func (m *memJobs) Insert(ctx context.Context, job *models.ScanJob) error {
	s := (*memStorage)(m)
	s.mu.Lock()
	copied := *job
	s.jobs[job.ID] = &copied
	s.mu.Unlock()
	return nil
}

func (m *memJobs) Update(ctx context.Context, job *models.ScanJob) error {
	return m.Insert(ctx, job)
}

func (m *memJobs) Get(ctx context.Context, id string) (*models.ScanJob, error) {
	s := (*memStorage)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.New("scan job not found")
	}
	return job, nil
}

func (m *memJobs) LatestByProgram(ctx context.Context, program string) (*models.ScanJob, error) {
	return nil, nil
}

type memMetrics memStorage

func (m *memMetrics) Append(ctx context.Context, record *models.RunMetricsRecord) error {
	s := (*memStorage)(m)
	s.mu.Lock()
	s.metricsRecords = append(s.metricsRecords, record)
	s.mu.Unlock()
	return nil
}

func (m *memMetrics) LatestByRunType(ctx context.Context, runType string) (*models.RunMetricsRecord, error) {
	s := (*memStorage)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.metricsRecords) - 1; i >= 0; i-- {
		if s.metricsRecords[i].RunType == runType {
			return s.metricsRecords[i], nil
		}
	}
	return nil, nil
}
