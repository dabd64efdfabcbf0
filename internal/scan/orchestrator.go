package scan

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
	"github.com/ternarybob/speculor/internal/polygon"
)

// Admission and terminal statuses returned by StartRun / RunProgram.
const (
	RunStarted        = "started"
	RunAlreadyRunning = "already-running"
	RunDisabled       = "disabled"
	RunNoResume       = "no-resume"
	RunSkipped        = "skipped"
)

// UniverseProvider supplies the ticker list for a run.
type UniverseProvider interface {
	Tickers(ctx context.Context, refresh bool) ([]string, error)
}

// RunOptions tunes one run.
type RunOptions struct {
	Resume          bool   `json:"resume"`
	Force           bool   `json:"force"`
	RefreshUniverse bool   `json:"refresh_universe"`
	RunDateET       string `json:"run_date_et,omitempty"`
	LookbackDays    int    `json:"lookback_days,omitempty"`
	SourceInterval  string `json:"source_interval,omitempty"`
	Trigger         string `json:"trigger,omitempty"`
}

// RunResult is what a run terminated with, or why it never started.
type RunResult struct {
	Program   Program     `json:"program"`
	Status    string      `json:"status"`
	JobID     string      `json:"job_id,omitempty"`
	Total     int         `json:"total"`
	Processed int         `json:"processed"`
	Errors    int         `json:"errors"`
	Summary   *RunSummary `json:"summary,omitempty"`
}

// Orchestrator drives scan runs: admission, universe, core fan-out with
// stall retries, reduced-concurrency retry passes, MA enrichment,
// publication and finalisation. One instance serves every program; each
// program has its own controller.
type Orchestrator struct {
	cfg      *common.Config
	storage  interfaces.StorageManager
	provider interfaces.MarketDataProvider
	universe UniverseProvider
	logger   arbor.ILogger

	mu          sync.Mutex
	controllers map[Program]*Controller
}

// NewOrchestrator wires the run driver.
func NewOrchestrator(cfg *common.Config, storage interfaces.StorageManager, provider interfaces.MarketDataProvider, universe UniverseProvider, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		storage:     storage,
		provider:    provider,
		universe:    universe,
		logger:      logger,
		controllers: make(map[Program]*Controller),
	}
}

// Controller returns the per-program controller, creating it on first
// use.
func (o *Orchestrator) Controller(program Program) *Controller {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctrl, ok := o.controllers[program]
	if !ok {
		ctrl = NewController(program)
		o.controllers[program] = ctrl
	}
	return ctrl
}

// StartRun admits a run and executes it in the background. The returned
// status is started or an admission refusal.
func (o *Orchestrator) StartRun(program Program, opts RunOptions) RunResult {
	rs, refused := o.admit(context.Background(), program, opts)
	if rs == nil {
		return refused
	}
	go o.execute(rs)
	result := RunResult{Program: program, Status: RunStarted, JobID: rs.jobID}
	if rs.snapshot != nil {
		result.Total = rs.snapshot.Total
	}
	return result
}

// RunProgram admits and executes a run synchronously, returning the
// terminal result. Used by the scheduler and by tests.
func (o *Orchestrator) RunProgram(ctx context.Context, program Program, opts RunOptions) RunResult {
	rs, refused := o.admit(ctx, program, opts)
	if rs == nil {
		return refused
	}
	return o.execute(rs)
}

// RequestStop asks a program's current run to stop.
func (o *Orchestrator) RequestStop(program Program) bool {
	return o.Controller(program).RequestStop()
}

// RequestPause asks a program's current run to pause at the next settled
// item.
func (o *Orchestrator) RequestPause(program Program) bool {
	return o.Controller(program).RequestPause()
}

// Status returns the program's status snapshot.
func (o *Orchestrator) Status(program Program) StatusSnapshot {
	return o.Controller(program).Status()
}

// Metrics returns the program's last run summary, consulting the
// in-memory cache first and the history table after a restart.
func (o *Orchestrator) Metrics(ctx context.Context, program Program) *RunSummary {
	if summary := LastRun(program); summary != nil {
		return summary
	}
	if o.storage == nil {
		return nil
	}
	record, err := o.storage.Metrics().LatestByRunType(ctx, string(program))
	if err != nil || record == nil {
		return nil
	}
	var summary RunSummary
	if err := json.Unmarshal(record.Snapshot, &summary); err != nil {
		return nil
	}
	return &summary
}

// runState is the orchestrator-scoped state of one admitted run.
type runState struct {
	program    Program
	opts       RunOptions
	controller *Controller
	token      *RunToken
	tracker    *Tracker
	flusher    *Flusher

	jobID        string
	asOf         string
	lookbackDays int
	interval     models.SourceInterval
	concurrency  int
	snapshot     *ResumeSnapshot

	mu              sync.Mutex
	fatal           error
	bullish         int
	bearish         int
	seeds           []MASeed
	failed          []string
	latestTradeDate string
}

func (rs *runState) shouldStop() bool {
	if rs.controller.ShouldStop() {
		return true
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.fatal != nil
}

func (rs *runState) setFatal(err error) {
	rs.mu.Lock()
	if rs.fatal == nil {
		rs.fatal = err
	}
	rs.mu.Unlock()
}

func (rs *runState) fatalErr() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.fatal
}

// admit performs the admission sequence: storage configured, exclusive
// begin, resume snapshot validation, universe resolution, job insert.
// Returns a nil runState and the refusal when the run must not start.
func (o *Orchestrator) admit(ctx context.Context, program Program, opts RunOptions) (*runState, RunResult) {
	refuse := func(status string) (*runState, RunResult) {
		return nil, RunResult{Program: program, Status: status}
	}

	if o.storage == nil {
		return refuse(RunDisabled)
	}

	ctrl := o.Controller(program)
	token, ok := ctrl.BeginRun(ctx)
	if !ok {
		return refuse(RunAlreadyRunning)
	}

	release := func(status string) (*runState, RunResult) {
		ctrl.Cleanup(token)
		ctrl.MarkIdle()
		return refuse(status)
	}

	interval := models.SourceInterval(o.cfg.Scan.SourceInterval)
	if opts.SourceInterval != "" {
		interval = models.SourceInterval(opts.SourceInterval)
	}
	if !interval.IsValid() {
		interval = models.Interval1Min
	}
	lookback := o.cfg.Scan.LookbackDays
	if opts.LookbackDays > 0 {
		lookback = opts.LookbackDays
	}
	asOf := opts.RunDateET
	if asOf == "" {
		asOf = common.CurrentTradeDate(time.Now())
	}

	var snapshot *ResumeSnapshot
	if opts.Force {
		// A forced start runs fresh: discard any parked resume state so
		// a later resume cannot replay the overridden run.
		ctrl.SetSnapshot(nil)
	} else if opts.Resume {
		snapshot = o.loadSnapshot(ctx, ctrl, program)
		NormalizeSnapshot(snapshot)
		if !snapshot.Valid(program) {
			return release(RunNoResume)
		}
		interval = models.SourceInterval(snapshot.SourceInterval)
		if snapshot.LookbackDays > 0 {
			lookback = snapshot.LookbackDays
		}
		if program == ProgramFetchWeekly {
			asOf = snapshot.WeeklyTradeDate
		} else {
			asOf = snapshot.AsOfTradeDate
		}
	}

	tracker := NewTracker(o.storage.Metrics(), o.logger, program, opts.Trigger)
	concurrency := ResolveAdaptiveConcurrency(program, &o.cfg.Scan, o.cfg.Provider.MaxRequestsPerSecond)

	rs := &runState{
		program:      program,
		opts:         opts,
		controller:   ctrl,
		token:        token,
		tracker:      tracker,
		jobID:        uuid.New().String(),
		asOf:         asOf,
		lookbackDays: lookback,
		interval:     interval,
		concurrency:  concurrency,
		snapshot:     snapshot,
	}

	ctrl.UpdateStatus(func(s *StatusSnapshot) {
		s.JobID = rs.jobID
		s.TradeDate = asOf
	})

	o.logger.Info().
		Str("program", string(program)).
		Str("job_id", rs.jobID).
		Str("as_of", asOf).
		Int("concurrency", concurrency).
		Bool("resume", snapshot != nil).
		Str("trigger", opts.Trigger).
		Msg("Scan run admitted")

	return rs, RunResult{}
}

// loadSnapshot consults the in-memory controller first, then the latest
// job row's notes column.
func (o *Orchestrator) loadSnapshot(ctx context.Context, ctrl *Controller, program Program) *ResumeSnapshot {
	if s := ctrl.Snapshot(); s != nil {
		return s
	}
	job, err := o.storage.ScanJobs().LatestByProgram(ctx, string(program))
	if err != nil || job == nil {
		return nil
	}
	s, err := DecodeSnapshot(job.Notes)
	if err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Stored resume snapshot is unreadable")
		return nil
	}
	return s
}

// execute drives the admitted run through its phases.
func (o *Orchestrator) execute(rs *runState) RunResult {
	defer rs.controller.Cleanup(rs.token)
	ctx := polygon.WithRecorder(rs.token.Context(), rs.tracker)

	rs.flusher = NewFlusher(o.storage, o.logger, o.cfg.Scan.SummaryFlushSize, o.cfg.Scan.SummaryUpsertBatchSize, rs.tracker.RecordDBFlush)
	defer rs.flusher.Close()

	// Universe
	if rs.snapshot == nil {
		rs.tracker.SetPhase(PhaseUniverse)
		tickers, err := o.universe.Tickers(ctx, rs.opts.RefreshUniverse)
		if err != nil {
			return o.finishFailed(rs, err)
		}
		rs.snapshot = &ResumeSnapshot{
			Program:        string(rs.program),
			SourceInterval: string(rs.interval),
			Tickers:        tickers,
			Total:          len(tickers),
			LookbackDays:   rs.lookbackDays,
		}
		if rs.program == ProgramFetchWeekly {
			rs.snapshot.WeeklyTradeDate = rs.asOf
		} else {
			rs.snapshot.AsOfTradeDate = rs.asOf
		}
	}
	rs.tracker.SetTotals(rs.snapshot.Total)
	rs.controller.SetProgress(StatusRunning, rs.snapshot.Total, rs.snapshot.Processed, rs.snapshot.Errors)

	if rs.snapshot.Total == 0 {
		o.logger.Warn().Str("program", string(rs.program)).Msg("Empty universe; nothing to scan")
		return o.finishSkipped(rs)
	}

	if published, err := o.storage.Publication().Published(ctx, o.publishInterval(rs)); err == nil {
		rs.snapshot.LastPublishedTradeDate = published
	}

	o.insertJob(rs)

	// Core pass with stall retries
	rs.tracker.SetPhase(PhaseCore)
	o.corePass(ctx, rs)
	if interrupted := o.checkInterrupt(rs); interrupted != nil {
		return *interrupted
	}

	// Drain before retrying so failures re-read consistent rows
	rs.tracker.SetPhase(PhaseDrain)
	rs.flusher.Drain()

	// Retry passes
	if failed := rs.failedTickers(); len(failed) > 0 && !rs.shouldStop() {
		stillFailed := RunRetryPasses(ctx, failed, rs.concurrency,
			func(ctx context.Context, ticker string, _ int) (TickerOutcome, error) {
				outcome, err := o.workUnit(ctx, rs, ticker)
				if err == nil {
					o.absorbOutcome(rs, outcome)
				}
				return outcome, err
			},
			RetryCallbacks{
				OnRecovered: func(ticker string) {
					rs.recover(ticker)
					o.checkpoint(rs)
				},
				OnStillFailed: func(ticker string, err error) {
					rs.tracker.RecordFailedTicker(ticker)
					o.logger.Warn().Err(err).Str("ticker", ticker).Msg("Ticker failed after retry passes")
				},
			},
			rs.shouldStop, rs.tracker)
		rs.setFinalFailures(stillFailed)
	}
	if interrupted := o.checkInterrupt(rs); interrupted != nil {
		return *interrupted
	}

	// MA enrichment for the fetch programs
	if rs.program == ProgramFetchDaily || rs.program == ProgramFetchWeekly {
		o.maPass(ctx, rs)
		if interrupted := o.checkInterrupt(rs); interrupted != nil {
			return *interrupted
		}
	}

	rs.tracker.SetPhase(PhaseDrain)
	rs.flusher.Drain()

	// Publish
	rs.tracker.SetPhase(PhasePublish)
	o.publish(ctx, rs)

	return o.finishCompleted(rs)
}

// corePass runs the bounded fan-out over the not-yet-settled tickers,
// retrying stalled attempts with exponential backoff over the same
// subset.
func (o *Orchestrator) corePass(ctx context.Context, rs *runState) {
	items := rs.snapshot.Tickers
	done := make([]bool, len(items))
	for i := 0; i < rs.snapshot.NextIndex && i < len(items); i++ {
		done[i] = true
	}

	attempt := 0
	for {
		var remaining []int
		for i, d := range done {
			if !d {
				remaining = append(remaining, i)
			}
		}
		if len(remaining) == 0 || rs.shouldStop() || ctx.Err() != nil {
			return
		}

		attemptCtx, cancelAttempt := context.WithCancel(ctx)
		watchdog := NewStallWatchdog(o.cfg.Scan.StallCheckInterval, o.cfg.Scan.StallTimeout, cancelAttempt)

		MapWithConcurrency(attemptCtx, remaining, rs.concurrency,
			func(ctx context.Context, index int, _ int) (TickerOutcome, error) {
				return o.workUnit(ctx, rs, items[index])
			},
			func(settled Settled[TickerOutcome], _ int, index int) {
				watchdog.MarkProgress()
				o.settleCore(rs, items[index], index, settled, done)
			},
			rs.shouldStop)

		watchdog.Stop()
		cancelAttempt()

		if rs.shouldStop() || ctx.Err() != nil {
			return
		}
		if !watchdog.Stalled() {
			return
		}
		if attempt >= o.cfg.Scan.StallMaxRetries {
			o.logger.Error().
				Str("program", string(rs.program)).
				Int("attempts", attempt+1).
				Msg("Scan stalled past retry budget")
			return
		}
		attempt++
		rs.tracker.RecordStallRetry()
		backoff := stallBackoff(attempt)
		o.logger.Warn().
			Str("program", string(rs.program)).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Scan attempt stalled; retrying")
		if err := sleepCancellable(ctx, backoff); err != nil {
			return
		}
	}
}

// settleCore is the core pass progress hook: counts the settle, routes
// the outcome into the buffers, checkpoints the snapshot.
func (o *Orchestrator) settleCore(rs *runState, ticker string, index int, settled Settled[TickerOutcome], done []bool) {
	if settled.Err != nil {
		switch polygon.KindOf(settled.Err) {
		case polygon.KindAborted:
			// A stop rewinds this ticker; a stall abort retries it on the
			// next attempt. Either way it is not an error.
			return
		case polygon.KindPaused:
			// Kill-switch: no sense continuing the run.
			rs.setFatal(settled.Err)
			done[index] = true
			return
		}
		done[index] = true
		rs.mu.Lock()
		rs.failed = append(rs.failed, ticker)
		rs.mu.Unlock()
		rs.snapshot.Processed++
		rs.snapshot.Errors++
		rs.snapshot.NextIndex = rs.snapshot.Processed
		o.logger.Warn().Err(settled.Err).Str("ticker", ticker).Msg("Ticker work unit failed")
	} else {
		done[index] = true
		o.absorbOutcome(rs, settled.Value)
		rs.snapshot.Processed++
		rs.snapshot.NextIndex = rs.snapshot.Processed
	}

	rs.controller.SetProgress(StatusRunning, rs.snapshot.Total, rs.snapshot.Processed, rs.snapshot.Errors)
	rs.tracker.SetProgress(rs.snapshot.Processed, rs.snapshot.Errors)
	o.checkpoint(rs)
}

// absorbOutcome pushes a successful outcome into the buffers and run
// counters.
func (o *Orchestrator) absorbOutcome(rs *runState, outcome TickerOutcome) {
	if outcome.Skipped {
		return
	}
	rs.flusher.Push(outcome)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if outcome.Seed != nil {
		rs.seeds = append(rs.seeds, *outcome.Seed)
	}
	if outcome.LatestTradeDate != "" {
		rs.latestTradeDate = common.MaxTradeDate(rs.latestTradeDate, outcome.LatestTradeDate)
	}
	if outcome.Signal != nil {
		switch outcome.Signal.SignalType {
		case models.StateBullish:
			rs.bullish++
		case models.StateBearish:
			rs.bearish++
		}
	}
}

// maPass enriches the core summaries with indicator-endpoint moving
// averages, with the same retry discipline as the core pass.
func (o *Orchestrator) maPass(ctx context.Context, rs *runState) {
	rs.mu.Lock()
	seeds := make([]MASeed, len(rs.seeds))
	copy(seeds, rs.seeds)
	rs.mu.Unlock()
	if len(seeds) == 0 {
		return
	}

	rs.tracker.SetPhase(PhaseMA)
	rs.controller.SetProgress(StatusRunningMA, rs.snapshot.Total, rs.snapshot.Processed, rs.snapshot.Errors)

	concurrency := rs.concurrency
	if o.cfg.Scan.SummaryBuildConcurrency < concurrency {
		concurrency = o.cfg.Scan.SummaryBuildConcurrency
	}

	seedByTicker := make(map[string]MASeed, len(seeds))
	for _, seed := range seeds {
		seedByTicker[seed.Ticker] = seed
	}

	var failedMu sync.Mutex
	var failed []string
	MapWithConcurrency(ctx, seeds, concurrency,
		func(ctx context.Context, seed MASeed, _ int) (models.Summary, error) {
			return o.maEnrichTicker(ctx, rs, seed)
		},
		func(settled Settled[models.Summary], _ int, seed MASeed) {
			if settled.Err != nil {
				if polygon.IsAborted(settled.Err) {
					return
				}
				failedMu.Lock()
				failed = append(failed, seed.Ticker)
				failedMu.Unlock()
				return
			}
			rs.flusher.PushMASummary(settled.Value)
		},
		rs.shouldStop)

	if len(failed) == 0 || rs.shouldStop() {
		return
	}

	RunRetryPasses(ctx, failed, concurrency,
		func(ctx context.Context, ticker string, _ int) (TickerOutcome, error) {
			summary, err := o.maEnrichTicker(ctx, rs, seedByTicker[ticker])
			if err == nil {
				rs.flusher.PushMASummary(summary)
			}
			return TickerOutcome{Ticker: ticker}, err
		},
		RetryCallbacks{
			OnStillFailed: func(ticker string, err error) {
				// MA columns stay null for this ticker; the core states
				// are already persisted.
				o.logger.Warn().Err(err).Str("ticker", ticker).Msg("MA enrichment failed after retries")
			},
		},
		rs.shouldStop, rs.tracker)
}

// publishInterval is the interval the publication marker tracks for this
// program.
func (o *Orchestrator) publishInterval(rs *runState) models.SourceInterval {
	switch rs.program {
	case ProgramFetchWeekly:
		return models.Interval1Week
	case ProgramAccumulation:
		return models.Interval1Day
	default:
		return rs.interval
	}
}

// publish advances the publication marker and, for the accumulation
// program, rebuilds summary rows from the persisted daily rows.
func (o *Orchestrator) publish(ctx context.Context, rs *runState) {
	rs.mu.Lock()
	latest := rs.latestTradeDate
	rs.mu.Unlock()
	if latest == "" {
		return
	}

	interval := o.publishInterval(rs)
	if err := o.storage.Publication().Advance(ctx, interval, latest, rs.jobID); err != nil {
		o.logger.Error().Err(err).Str("trade_date", latest).Msg("Failed to advance publication marker")
	}

	if rs.program == ProgramAccumulation {
		rs.controller.UpdateStatus(func(s *StatusSnapshot) { s.Status = RunStatus(models.JobSummarizing) })
		if err := o.storage.Summaries().RebuildForTradeDate(ctx, interval, latest, rs.jobID); err != nil {
			o.logger.Error().Err(err).Str("trade_date", latest).Msg("Failed to rebuild summaries")
		}
	}
}

// checkInterrupt routes stop, pause and fatal exits. Returns nil when
// the run continues.
func (o *Orchestrator) checkInterrupt(rs *runState) *RunResult {
	if err := rs.fatalErr(); err != nil {
		result := o.finishFailed(rs, err)
		return &result
	}
	if rs.controller.StopRequested() {
		result := o.finishInterrupted(rs, models.JobStopped, StatusStopped)
		return &result
	}
	if rs.controller.PauseRequested() {
		result := o.finishInterrupted(rs, models.JobPaused, StatusPaused)
		return &result
	}
	// External cancellation of the run's root context behaves like a stop.
	if rs.token.Context().Err() != nil {
		result := o.finishInterrupted(rs, models.JobStopped, StatusStopped)
		return &result
	}
	return nil
}

// finishInterrupted is the stop/pause exit: drain, rewind, persist the
// snapshot, park the job.
func (o *Orchestrator) finishInterrupted(rs *runState, jobStatus models.JobStatus, status RunStatus) RunResult {
	rs.flusher.Drain()
	snapshot := rs.controller.SaveResumeState(rs.snapshot, rs.concurrency)
	o.updateJob(rs, jobStatus, snapshot)

	if status == StatusPaused {
		rs.controller.MarkPaused()
	} else {
		rs.controller.MarkStopped()
	}
	summary := rs.tracker.Finish(context.Background(), string(jobStatus))
	o.logger.Info().
		Str("program", string(rs.program)).
		Str("job_id", rs.jobID).
		Str("status", string(jobStatus)).
		Int("processed", snapshot.Processed).
		Msg("Scan run interrupted")

	return RunResult{
		Program:   rs.program,
		Status:    string(jobStatus),
		JobID:     rs.jobID,
		Total:     snapshot.Total,
		Processed: snapshot.Processed,
		Errors:    snapshot.Errors,
		Summary:   summary,
	}
}

// finishFailed is the unexpected-failure exit: best-effort drain,
// snapshot preserved for operator retry, job marked failed.
func (o *Orchestrator) finishFailed(rs *runState, err error) RunResult {
	if rs.flusher != nil {
		rs.flusher.Drain()
	}
	if rs.snapshot != nil {
		NormalizeSnapshot(rs.snapshot)
		rs.controller.SetSnapshot(rs.snapshot)
	}
	o.updateJob(rs, models.JobFailed, rs.snapshot)

	rs.controller.MarkFailed()
	summary := rs.tracker.Finish(context.Background(), string(models.JobFailed))
	o.logger.Error().Err(err).
		Str("program", string(rs.program)).
		Str("job_id", rs.jobID).
		Msg("Scan run failed")

	result := RunResult{Program: rs.program, Status: string(models.JobFailed), JobID: rs.jobID, Summary: summary}
	if rs.snapshot != nil {
		result.Total = rs.snapshot.Total
		result.Processed = rs.snapshot.Processed
		result.Errors = rs.snapshot.Errors
	}
	return result
}

// finishSkipped releases a run that had nothing to do. No ledger row
// was opened, so the result carries no job id.
func (o *Orchestrator) finishSkipped(rs *runState) RunResult {
	rs.controller.SetSnapshot(nil)
	rs.controller.MarkCompleted(0)
	rs.tracker.Finish(context.Background(), RunSkipped)
	return RunResult{Program: rs.program, Status: RunSkipped}
}

// finishCompleted is the clean exit: snapshot cleared, job closed with
// completed or completed-with-errors, metrics recorded.
func (o *Orchestrator) finishCompleted(rs *runState) RunResult {
	rs.tracker.SetPhase(PhaseFinalize)
	rs.controller.SetSnapshot(nil)

	jobStatus := models.JobCompleted
	if rs.snapshot.Errors > 0 {
		jobStatus = models.JobCompletedWithErrors
	}
	o.updateJob(rs, jobStatus, nil)

	rs.controller.MarkCompleted(rs.snapshot.Errors)
	summary := rs.tracker.Finish(context.Background(), string(jobStatus))
	o.logger.Info().
		Str("program", string(rs.program)).
		Str("job_id", rs.jobID).
		Str("status", string(jobStatus)).
		Int("processed", rs.snapshot.Processed).
		Int("errors", rs.snapshot.Errors).
		Msg("Scan run finished")

	return RunResult{
		Program:   rs.program,
		Status:    string(jobStatus),
		JobID:     rs.jobID,
		Total:     rs.snapshot.Total,
		Processed: rs.snapshot.Processed,
		Errors:    rs.snapshot.Errors,
		Summary:   summary,
	}
}

// insertJob opens the ledger row for this run.
func (o *Orchestrator) insertJob(rs *runState) {
	notes, _ := EncodeSnapshot(rs.snapshot)
	job := &models.ScanJob{
		ID:               rs.jobID,
		Program:          string(rs.program),
		RunForDate:       rs.asOf,
		Status:           models.JobRunning,
		StartedAt:        time.Now(),
		TotalSymbols:     rs.snapshot.Total,
		ProcessedSymbols: rs.snapshot.Processed,
		ErrorCount:       rs.snapshot.Errors,
		Notes:            notes,
	}
	if err := o.storage.ScanJobs().Insert(context.Background(), job); err != nil {
		o.logger.Error().Err(err).Str("job_id", rs.jobID).Msg("Failed to open scan job")
	}
}

// checkpoint persists the running counters and snapshot to the ledger.
// Best-effort: a write failure costs resume freshness, not the run.
func (o *Orchestrator) checkpoint(rs *runState) {
	o.updateJob(rs, models.JobRunning, rs.snapshot)
}

func (o *Orchestrator) updateJob(rs *runState, status models.JobStatus, snapshot *ResumeSnapshot) {
	notes := ""
	if snapshot != nil {
		encoded, err := EncodeSnapshot(snapshot)
		if err != nil {
			o.logger.Error().Err(err).Str("job_id", rs.jobID).Msg("Failed to encode resume snapshot")
		} else {
			notes = encoded
		}
	}

	rs.mu.Lock()
	bullish, bearish := rs.bullish, rs.bearish
	latest := rs.latestTradeDate
	rs.mu.Unlock()

	job := &models.ScanJob{
		ID:               rs.jobID,
		Program:          string(rs.program),
		RunForDate:       rs.asOf,
		ScannedTradeDate: latest,
		Status:           status,
		TotalSymbols:     rs.snapshot.Total,
		ProcessedSymbols: rs.snapshot.Processed,
		BullishCount:     bullish,
		BearishCount:     bearish,
		ErrorCount:       rs.snapshot.Errors,
		Notes:            notes,
	}
	if status != models.JobRunning {
		job.FinishedAt = time.Now()
	}
	if err := o.storage.ScanJobs().Update(context.Background(), job); err != nil {
		o.logger.Error().Err(err).Str("job_id", rs.jobID).Msg("Failed to update scan job")
	}
}

func (rs *runState) failedTickers() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	failed := make([]string, len(rs.failed))
	copy(failed, rs.failed)
	return failed
}

// recover removes a retried ticker from the failure set and decrements
// the error counter.
func (rs *runState) recover(ticker string) {
	rs.mu.Lock()
	for i, t := range rs.failed {
		if t == ticker {
			rs.failed = append(rs.failed[:i], rs.failed[i+1:]...)
			break
		}
	}
	rs.mu.Unlock()
	if rs.snapshot.Errors > 0 {
		rs.snapshot.Errors--
	}
	rs.tracker.SetProgress(rs.snapshot.Processed, rs.snapshot.Errors)
	rs.controller.SetProgress(StatusRunningRetry, rs.snapshot.Total, rs.snapshot.Processed, rs.snapshot.Errors)
}

func (rs *runState) setFinalFailures(tickers []string) {
	rs.mu.Lock()
	rs.failed = tickers
	rs.mu.Unlock()
}

// stallBackoff is exponential from 5s, capped at 60s.
func stallBackoff(attempt int) time.Duration {
	backoff := 5 * time.Second
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= 60*time.Second {
			return 60 * time.Second
		}
	}
	return backoff
}

func sleepCancellable(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return polygon.NewAborted("stall-backoff")
	case <-timer.C:
		return nil
	}
}
