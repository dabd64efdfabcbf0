package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/speculor/internal/handlers"
	"github.com/ternarybob/speculor/internal/scan"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Scan run control
	mux.HandleFunc("/api/scan/jobs/", s.handleScanJobRoutes) // GET /{id}
	mux.HandleFunc("/api/scan/", s.handleScanRoutes)         // /{program}/{action}

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)

	return mux
}

// handleScanRoutes dispatches /api/scan/{program}/{action}
func (s *Server) handleScanRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/scan/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 {
		handlers.WriteError(w, http.StatusNotFound, "expected /api/scan/{program}/{action}")
		return
	}

	program, err := scan.ParseProgram(parts[0])
	if err != nil {
		handlers.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	switch parts[1] {
	case "start":
		s.app.ScanHandler.StartHandler(w, r, program)
	case "stop":
		s.app.ScanHandler.StopHandler(w, r, program)
	case "pause":
		s.app.ScanHandler.PauseHandler(w, r, program)
	case "status":
		s.app.ScanHandler.StatusHandler(w, r, program)
	case "metrics":
		s.app.ScanHandler.MetricsHandler(w, r, program)
	default:
		handlers.WriteError(w, http.StatusNotFound, "unknown scan action")
	}
}

// handleScanJobRoutes dispatches /api/scan/jobs/{id}
func (s *Server) handleScanJobRoutes(w http.ResponseWriter, r *http.Request) {
	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/scan/jobs/"), "/")
	if jobID == "" {
		handlers.WriteError(w, http.StatusNotFound, "expected /api/scan/jobs/{id}")
		return
	}
	s.app.ScanHandler.JobHandler(w, r, jobID)
}
