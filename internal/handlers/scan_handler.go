package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/scan"
)

// ScanHandler exposes run control over HTTP: start, stop, pause, status
// and last-run metrics per program.
type ScanHandler struct {
	orchestrator *scan.Orchestrator
	storage      interfaces.StorageManager
	logger       arbor.ILogger
}

// NewScanHandler creates a scan control handler.
func NewScanHandler(orchestrator *scan.Orchestrator, storage interfaces.StorageManager, logger arbor.ILogger) *ScanHandler {
	return &ScanHandler{
		orchestrator: orchestrator,
		storage:      storage,
		logger:       logger,
	}
}

// startRequest is the POST body for starting a run. All fields are
// optional.
type startRequest struct {
	Resume          bool   `json:"resume"`
	Force           bool   `json:"force"`
	RefreshUniverse bool   `json:"refresh_universe"`
	RunDateET       string `json:"run_date_et"`
	LookbackDays    int    `json:"lookback_days"`
	SourceInterval  string `json:"source_interval"`
}

// StartHandler launches a program run in the background.
// POST /api/scan/{program}/start
func (h *ScanHandler) StartHandler(w http.ResponseWriter, r *http.Request, program scan.Program) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req startRequest
	if r.Body != nil {
		// An empty body means default options.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result := h.orchestrator.StartRun(program, scan.RunOptions{
		Resume:          req.Resume,
		Force:           req.Force,
		RefreshUniverse: req.RefreshUniverse,
		RunDateET:       req.RunDateET,
		LookbackDays:    req.LookbackDays,
		SourceInterval:  req.SourceInterval,
		Trigger:         "api",
	})

	status := http.StatusOK
	if result.Status == scan.RunAlreadyRunning {
		status = http.StatusConflict
	}
	h.logger.Info().
		Str("program", string(program)).
		Str("status", result.Status).
		Str("job_id", result.JobID).
		Msg("Scan start requested")
	WriteJSON(w, status, result)
}

// StopHandler requests the current run to stop.
// POST /api/scan/{program}/stop
func (h *ScanHandler) StopHandler(w http.ResponseWriter, r *http.Request, program scan.Program) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	accepted := h.orchestrator.RequestStop(program)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"program":  string(program),
		"accepted": accepted,
	})
}

// PauseHandler requests the current run to pause at the next settled
// item.
// POST /api/scan/{program}/pause
func (h *ScanHandler) PauseHandler(w http.ResponseWriter, r *http.Request, program scan.Program) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	accepted := h.orchestrator.RequestPause(program)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"program":  string(program),
		"accepted": accepted,
	})
}

// StatusHandler returns the program's status snapshot.
// GET /api/scan/{program}/status
func (h *ScanHandler) StatusHandler(w http.ResponseWriter, r *http.Request, program scan.Program) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.orchestrator.Status(program))
}

// MetricsHandler returns the program's last run summary.
// GET /api/scan/{program}/metrics
func (h *ScanHandler) MetricsHandler(w http.ResponseWriter, r *http.Request, program scan.Program) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	summary := h.orchestrator.Metrics(r.Context(), program)
	if summary == nil {
		WriteError(w, http.StatusNotFound, "no recorded runs for program")
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// JobHandler returns one scan job ledger row.
// GET /api/scan/jobs/{id}
func (h *ScanHandler) JobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	job, err := h.storage.ScanJobs().Get(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
