package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jfelder/stepwise/internal/capability"
	"github.com/jfelder/stepwise/internal/config"
	"github.com/jfelder/stepwise/internal/state"
	"github.com/jfelder/stepwise/pkg/models"
)

func testServer(t *testing.T, archive *state.DB) *Server {
	t.Helper()
	s, err := New(capability.Set{}, archive, config.Default(), zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func testArchive(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestHandleListRuns_ArchiveDisabled(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleListRuns(t *testing.T) {
	archive := testArchive(t)
	now := time.Now()
	completed := now.Add(time.Minute)
	plan := &models.Plan{
		ID:          "req-deadbeef",
		Request:     "check disk usage",
		RunState:    models.RunStateCompleted,
		Report:      "disk is fine",
		Steps:       []*models.Step{{Index: 0, Description: "run df", Status: models.StepStatusPassed}},
		CreatedAt:   now,
		CompletedAt: &completed,
	}
	if err := archive.SaveRun(plan); err != nil {
		t.Fatal(err)
	}

	s := testServer(t, archive)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}
	var runs []state.RunSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].ID != "req-deadbeef" || runs[0].StepCount != 1 {
		t.Errorf("summary = %+v", runs[0])
	}
}

func TestHandleListRuns_BadLimit(t *testing.T) {
	s := testServer(t, testArchive(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=banana", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleGetRun(t *testing.T) {
	archive := testArchive(t)
	plan := &models.Plan{
		ID:        "req-cafef00d",
		Request:   "say hello",
		RunState:  models.RunStateCompleted,
		Report:    "said hello",
		Steps:     []*models.Step{{Index: 0, Description: "echo hello", Status: models.StepStatusPassed}},
		CreatedAt: time.Now(),
	}
	if err := archive.SaveRun(plan); err != nil {
		t.Fatal(err)
	}

	s := testServer(t, archive)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/req-cafef00d", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got models.Plan
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Report != "said hello" {
		t.Errorf("report = %q", got.Report)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/runs/req-missing0", nil)
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
