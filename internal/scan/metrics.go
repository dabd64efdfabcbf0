package scan

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
	"github.com/ternarybob/speculor/internal/polygon"
)

// Phase names the orchestrator's run phases for the timing map.
type Phase string

const (
	PhaseUniverse Phase = "universe"
	PhaseCore     Phase = "core"
	PhaseDrain    Phase = "drain"
	PhaseRetry    Phase = "retry"
	PhaseMA       Phase = "ma-enrichment"
	PhasePublish  Phase = "publish"
	PhaseFinalize Phase = "finalize"
)

// latencyBuckets are the upper bounds (ms) of the API latency histogram.
var latencyBuckets = []int64{50, 100, 250, 500, 1000, 2500, 5000, 15000}

// APIStats aggregates per-call outcomes for one run.
type APIStats struct {
	OK                     int             `json:"ok"`
	RateLimited            int             `json:"rate_limited"`
	Aborted                int             `json:"aborted"`
	TimedOut               int             `json:"timed_out"`
	SubscriptionRestricted int             `json:"subscription_restricted"`
	Failed                 int             `json:"failed"`
	LatencyHistogram       map[string]int  `json:"latency_ms_histogram"`
}

// FlushStats is one recorded flush.
type FlushStats struct {
	DurationMS int64          `json:"duration_ms"`
	RowCounts  map[string]int `json:"row_counts"`
}

// RunSummary is the JSON snapshot persisted with each run.
type RunSummary struct {
	RunID            string           `json:"run_id"`
	Program          string           `json:"program"`
	Trigger          string           `json:"trigger,omitempty"`
	Status           string           `json:"status"`
	Total            int              `json:"total"`
	Processed        int              `json:"processed"`
	Errors           int              `json:"errors"`
	PhaseDurationsMS map[string]int64 `json:"phase_durations_ms"`
	API              APIStats         `json:"api_calls"`
	FailedTickers    []string         `json:"failed_tickers,omitempty"`
	RecoveredTickers []string         `json:"recovered_tickers,omitempty"`
	Flushes          []FlushStats     `json:"db_flushes,omitempty"`
	StallRetries     int              `json:"stall_retries"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       time.Time        `json:"finished_at"`
}

// Tracker accumulates one run's metrics. It implements the provider
// client's call recorder so per-call stats flow in via the request
// context without the client knowing about scans.
type Tracker struct {
	storage interfaces.MetricsStorage
	logger  arbor.ILogger

	mu           sync.Mutex
	runID        string
	program      Program
	trigger      string
	startedAt    time.Time
	phase        Phase
	phaseStart   time.Time
	phaseTotals  map[Phase]time.Duration
	api          APIStats
	failed       []string
	recovered    []string
	flushes      []FlushStats
	stallRetries int
	total        int
	processed    int
	errors       int
}

var (
	lastRunMu sync.Mutex
	lastRuns  = map[Program]*RunSummary{}
)

// NewTracker starts a tracker for one run.
func NewTracker(storage interfaces.MetricsStorage, logger arbor.ILogger, program Program, trigger string) *Tracker {
	return &Tracker{
		storage:     storage,
		logger:      logger,
		runID:       uuid.New().String(),
		program:     program,
		trigger:     trigger,
		startedAt:   time.Now(),
		phaseTotals: map[Phase]time.Duration{},
		api:         APIStats{LatencyHistogram: map[string]int{}},
	}
}

// RunID returns the unique id of this run.
func (t *Tracker) RunID() string {
	return t.runID
}

// SetPhase closes the previous phase's timing and opens the next.
// Re-entering a phase accumulates.
func (t *Tracker) SetPhase(phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closePhaseLocked()
	t.phase = phase
	t.phaseStart = time.Now()
}

func (t *Tracker) closePhaseLocked() {
	if t.phase != "" && !t.phaseStart.IsZero() {
		t.phaseTotals[t.phase] += time.Since(t.phaseStart)
	}
	t.phase = ""
}

// SetTotals records the universe size.
func (t *Tracker) SetTotals(total int) {
	t.mu.Lock()
	t.total = total
	t.mu.Unlock()
}

// SetProgress records the latest progress counters.
func (t *Tracker) SetProgress(processed, errors int) {
	t.mu.Lock()
	t.processed = processed
	t.errors = errors
	t.mu.Unlock()
}

// RecordAPICall implements polygon.CallRecorder.
func (t *Tracker) RecordAPICall(latency time.Duration, outcome polygon.CallOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch outcome {
	case polygon.OutcomeOK:
		t.api.OK++
	case polygon.OutcomeRateLimited:
		t.api.RateLimited++
	case polygon.OutcomeAborted:
		t.api.Aborted++
	case polygon.OutcomeTimedOut:
		t.api.TimedOut++
	case polygon.OutcomeRestricted:
		t.api.SubscriptionRestricted++
	default:
		t.api.Failed++
	}

	ms := latency.Milliseconds()
	for _, bucket := range latencyBuckets {
		if ms <= bucket {
			t.api.LatencyHistogram[bucketLabel(bucket)]++
			return
		}
	}
	t.api.LatencyHistogram["+inf"]++
}

func bucketLabel(bound int64) string {
	return "le_" + strconv.FormatInt(bound, 10)
}

// RecordFailedTicker notes a final per-ticker failure.
func (t *Tracker) RecordFailedTicker(ticker string) {
	t.mu.Lock()
	t.failed = append(t.failed, ticker)
	t.mu.Unlock()
}

// RecordRetryRecovered notes a ticker that failed the main pass but
// succeeded on retry.
func (t *Tracker) RecordRetryRecovered(ticker string) {
	t.mu.Lock()
	t.recovered = append(t.recovered, ticker)
	t.mu.Unlock()
}

// RecordDBFlush notes one completed flush.
func (t *Tracker) RecordDBFlush(result FlushResult) {
	t.mu.Lock()
	t.flushes = append(t.flushes, FlushStats{
		DurationMS: result.Duration.Milliseconds(),
		RowCounts:  result.RowCounts,
	})
	t.mu.Unlock()
}

// RecordStallRetry notes one watchdog-triggered attempt retry.
func (t *Tracker) RecordStallRetry() {
	t.mu.Lock()
	t.stallRetries++
	t.mu.Unlock()
}

// Finish closes the run: builds the summary, appends it to the history
// table and caches it in memory for the status API. Persist failures are
// logged, not returned; metrics never fail a run.
func (t *Tracker) Finish(ctx context.Context, finalStatus string) *RunSummary {
	t.mu.Lock()
	t.closePhaseLocked()
	finishedAt := time.Now()

	durations := make(map[string]int64, len(t.phaseTotals))
	for phase, d := range t.phaseTotals {
		durations[string(phase)] = d.Milliseconds()
	}

	summary := &RunSummary{
		RunID:            t.runID,
		Program:          string(t.program),
		Trigger:          t.trigger,
		Status:           finalStatus,
		Total:            t.total,
		Processed:        t.processed,
		Errors:           t.errors,
		PhaseDurationsMS: durations,
		API:              t.api,
		FailedTickers:    t.failed,
		RecoveredTickers: t.recovered,
		Flushes:          t.flushes,
		StallRetries:     t.stallRetries,
		StartedAt:        t.startedAt,
		FinishedAt:       finishedAt,
	}
	t.mu.Unlock()

	lastRunMu.Lock()
	lastRuns[t.program] = summary
	lastRunMu.Unlock()

	if t.storage != nil {
		snapshot, err := json.Marshal(summary)
		if err != nil {
			t.logger.Error().Err(err).Msg("Failed to encode run metrics snapshot")
			return summary
		}
		record := &models.RunMetricsRecord{
			RunID:      t.runID,
			RunType:    string(t.program),
			Status:     finalStatus,
			Snapshot:   snapshot,
			StartedAt:  t.startedAt,
			FinishedAt: finishedAt,
		}
		if err := t.storage.Append(ctx, record); err != nil {
			t.logger.Error().Err(err).Str("run_id", t.runID).Msg("Failed to persist run metrics")
		}
	}

	return summary
}

// LastRun returns the most recent in-memory run summary for a program.
func LastRun(program Program) *RunSummary {
	lastRunMu.Lock()
	defer lastRunMu.Unlock()
	return lastRuns[program]
}
