package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/scan"
	"github.com/ternarybob/speculor/internal/storage/sqlite"
)

// emptyUniverse makes every started run skip immediately, which keeps
// the handler tests off the provider entirely.
type emptyUniverse struct{}

func (emptyUniverse) Tickers(ctx context.Context, refresh bool) ([]string, error) {
	return nil, nil
}

func newTestHandler(t *testing.T) (*ScanHandler, *scan.Orchestrator) {
	t.Helper()

	logger := arbor.NewLogger()
	storage, err := sqlite.NewManager(logger, &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "test.db"),
		CacheSizeMB:   16,
		BusyTimeoutMS: 5000,
	})
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	orchestrator := scan.NewOrchestrator(common.DefaultConfig(), storage, nil, emptyUniverse{}, logger)
	return NewScanHandler(orchestrator, storage, logger), orchestrator
}

func TestStartHandler_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/scan/fetch-daily/start", nil)
	h.StartHandler(w, r, scan.ProgramFetchDaily)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestStartHandler_Starts(t *testing.T) {
	h, orchestrator := newTestHandler(t)

	body := strings.NewReader(`{"run_date_et":"2026-08-21"}`)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/scan/fetch-daily/start", body)
	h.StartHandler(w, r, scan.ProgramFetchDaily)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var result scan.RunResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("response not decodable: %v", err)
	}
	if result.Status != scan.RunStarted {
		t.Errorf("run status = %q, want started", result.Status)
	}

	// The background run skips on the empty universe; wait it out so the
	// cleanup does not close the database under it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !orchestrator.Status(scan.ProgramFetchDaily).Running {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("background run never finished")
}

func TestStartHandler_Conflict(t *testing.T) {
	h, orchestrator := newTestHandler(t)

	ctrl := orchestrator.Controller(scan.ProgramFetchDaily)
	token, ok := ctrl.BeginRun(context.Background())
	if !ok {
		t.Fatal("setup BeginRun refused")
	}
	defer func() {
		ctrl.Cleanup(token)
		ctrl.MarkCompleted(0)
	}()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/scan/fetch-daily/start", nil)
	h.StartHandler(w, r, scan.ProgramFetchDaily)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestStopHandler_IdleIsNotAccepted(t *testing.T) {
	h, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/scan/fetch-daily/stop", nil)
	h.StopHandler(w, r, scan.ProgramFetchDaily)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("response not decodable: %v", err)
	}
	if accepted, _ := resp["accepted"].(bool); accepted {
		t.Error("stop accepted with no run in flight")
	}
}

func TestStatusHandler(t *testing.T) {
	h, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/scan/fetch-weekly/status", nil)
	h.StatusHandler(w, r, scan.ProgramFetchWeekly)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var snap scan.StatusSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("response not decodable: %v", err)
	}
	if snap.Program != string(scan.ProgramFetchWeekly) {
		t.Errorf("program = %q", snap.Program)
	}
	if snap.Running {
		t.Error("idle program reported running")
	}
}

func TestMetricsHandler_NoRuns(t *testing.T) {
	h, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/scan/detector/metrics", nil)
	h.MetricsHandler(w, r, scan.ProgramDetector)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestJobHandler_NotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/scan/jobs/no-such-job", nil)
	h.JobHandler(w, r, "no-such-job")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
