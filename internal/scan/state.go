package scan

import (
	"context"
	"sync"
	"time"
)

// RunStatus is the externally visible state of a program's controller.
type RunStatus string

const (
	StatusIdle                RunStatus = "idle"
	StatusRunning             RunStatus = "running"
	StatusRunningRetry        RunStatus = "running-retry"
	StatusRunningMA           RunStatus = "running-ma"
	StatusStopping            RunStatus = "stopping"
	StatusStopped             RunStatus = "stopped"
	StatusCompleted           RunStatus = "completed"
	StatusCompletedWithErrors RunStatus = "completed-with-errors"
	StatusPaused              RunStatus = "paused"
	StatusFailed              RunStatus = "failed"
)

// StatusSnapshot is a point-in-time copy of a controller's status record.
// Reads may be slightly stale relative to in-flight workers; that is
// acceptable for status display.
type StatusSnapshot struct {
	Program    string    `json:"program"`
	Running    bool      `json:"running"`
	Status     RunStatus `json:"status"`
	JobID      string    `json:"job_id,omitempty"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	TradeDate  string    `json:"trade_date,omitempty"`
	CanResume  bool      `json:"can_resume"`
}

// RunToken identifies one run admitted by BeginRun. Its context is the
// run's cancellation root; RequestStop cancels it.
type RunToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Context returns the run's cancellation context.
func (t *RunToken) Context() context.Context { return t.ctx }

// Controller is the per-program scan state singleton: running flag, stop
// and pause requests, the resume snapshot and the status record. One
// instance per program, created at process start; at most one run in
// progress at any time.
type Controller struct {
	program Program

	mu             sync.Mutex
	running        bool
	stopRequested  bool
	pauseRequested bool
	token          *RunToken
	snapshot       *ResumeSnapshot
	status         StatusSnapshot
}

// NewController creates an idle controller for a program.
func NewController(program Program) *Controller {
	return &Controller{
		program: program,
		status: StatusSnapshot{
			Program: string(program),
			Status:  StatusIdle,
		},
	}
}

// Program returns the program this controller owns.
func (c *Controller) Program() Program { return c.program }

// BeginRun admits a run exclusively. The second concurrent call returns
// false without side effects.
func (c *Controller) BeginRun(ctx context.Context) (*RunToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil, false
	}

	runCtx, cancel := context.WithCancel(ctx)
	token := &RunToken{ctx: runCtx, cancel: cancel}

	c.running = true
	c.stopRequested = false
	c.pauseRequested = false
	c.token = token
	c.status = StatusSnapshot{
		Program:   string(c.program),
		Running:   true,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	return token, true
}

// RequestStop asks the current run to stop and fires its cancellation.
// Returns false when nothing is running.
func (c *Controller) RequestStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.token == nil {
		return false
	}
	c.stopRequested = true
	c.status.Status = StatusStopping
	c.token.cancel()
	return true
}

// RequestPause asks the current run to pause at the next settled item.
// Unlike stop, pause does not fire the cancellation token; in-flight
// items run to completion.
func (c *Controller) RequestPause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return false
	}
	c.pauseRequested = true
	return true
}

// ShouldStop is the fan-out's stop predicate: true once a stop or pause
// was requested.
func (c *Controller) ShouldStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRequested || c.pauseRequested
}

// StopRequested reports an explicit stop request.
func (c *Controller) StopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRequested
}

// PauseRequested reports an explicit pause request.
func (c *Controller) PauseRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauseRequested
}

// CanResume reports whether a valid snapshot is held in memory.
func (c *Controller) CanResume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot != nil && c.snapshot.Valid(c.program)
}

// Snapshot returns the held resume snapshot, or nil.
func (c *Controller) Snapshot() *ResumeSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// SetSnapshot replaces the held resume snapshot. Pass nil on clean
// completion.
func (c *Controller) SetSnapshot(s *ResumeSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = s
}

// SaveResumeState stores a snapshot after applying the stop rewind:
// workers that were mid-flight got cancelled and did not write their
// outputs, so next_index backs off by the fan-out width and processed is
// set equal to it. Upserts are idempotent, so re-fetching the few
// already-written tickers is cheap and correct.
func (c *Controller) SaveResumeState(s *ResumeSnapshot, concurrency int) *ResumeSnapshot {
	if s != nil {
		next := s.Processed - concurrency
		if next < 0 {
			next = 0
		}
		s.NextIndex = next
		s.Processed = next
		NormalizeSnapshot(s)
	}
	c.SetSnapshot(s)
	return s
}

// Status returns a copy of the status record.
func (c *Controller) Status() StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.status
	snap.CanResume = c.snapshot != nil && c.snapshot.Valid(c.program)
	return snap
}

// UpdateStatus mutates the status record under the controller's lock.
func (c *Controller) UpdateStatus(fn func(*StatusSnapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.status)
}

// SetProgress updates the progress counters and, during the core phases,
// the displayed status.
func (c *Controller) SetProgress(status RunStatus, total, processed, errors int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopRequested {
		c.status.Status = status
	}
	c.status.Total = total
	c.status.Processed = processed
	c.status.Errors = errors
}

// finish moves the controller back to idle with a terminal status.
func (c *Controller) finish(status RunStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.status.Running = false
	c.status.Status = status
	c.status.FinishedAt = time.Now()
}

// MarkStopped records an operator stop.
func (c *Controller) MarkStopped() { c.finish(StatusStopped) }

// MarkPaused records an operator pause.
func (c *Controller) MarkPaused() { c.finish(StatusPaused) }

// MarkCompleted records a clean termination; completed-with-errors is
// auto-selected when any errors were counted.
func (c *Controller) MarkCompleted(errors int) {
	if errors > 0 {
		c.finish(StatusCompletedWithErrors)
	} else {
		c.finish(StatusCompleted)
	}
}

// MarkFailed records an unexpected failure.
func (c *Controller) MarkFailed() { c.finish(StatusFailed) }

// MarkIdle releases a run admitted but never executed, such as a resume
// request with no valid snapshot.
func (c *Controller) MarkIdle() { c.finish(StatusIdle) }

// Cleanup releases the token if it is still the current one. Called on
// every exit path; a stale token from a previous run is ignored.
func (c *Controller) Cleanup(token *RunToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token && token != nil {
		token.cancel()
		c.token = nil
	}
}
