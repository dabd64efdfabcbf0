package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
	"github.com/ternarybob/speculor/internal/polygon"
	"github.com/ternarybob/speculor/internal/scan"
)

// StatusHandler reports application-level status: version, breaker
// state, publication markers and every program's run status.
type StatusHandler struct {
	orchestrator *scan.Orchestrator
	storage      interfaces.StorageManager
	breaker      *polygon.Breaker
	logger       arbor.ILogger
}

// NewStatusHandler creates the status handler.
func NewStatusHandler(orchestrator *scan.Orchestrator, storage interfaces.StorageManager, breaker *polygon.Breaker, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		orchestrator: orchestrator,
		storage:      storage,
		breaker:      breaker,
		logger:       logger,
	}
}

// GetStatusHandler handles GET /api/status.
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	programs := make(map[string]scan.StatusSnapshot, len(scan.Programs))
	for _, program := range scan.Programs {
		programs[string(program)] = h.orchestrator.Status(program)
	}

	published := map[string]string{}
	for _, interval := range []models.SourceInterval{models.Interval1Min, models.Interval1Day, models.Interval1Week} {
		date, err := h.storage.Publication().Published(r.Context(), interval)
		if err != nil || date == "" {
			continue
		}
		published[string(interval)] = date
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":   common.GetVersion(),
		"breaker":   h.breaker.State().String(),
		"programs":  programs,
		"published": published,
	})
}

// HealthHandler handles GET /api/health.
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": common.GetVersion(),
	})
}

// VersionHandler handles GET /api/version.
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetFullVersion(),
	})
}
