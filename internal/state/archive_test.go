package state

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jfelder/stepwise/pkg/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func samplePlan(id string, createdAt time.Time) *models.Plan {
	completed := createdAt.Add(time.Minute)
	return &models.Plan{
		ID:      id,
		Request: "list the files in /tmp",
		Steps: []*models.Step{
			{
				Index:       0,
				Description: "list /tmp",
				Status:      models.StepStatusPassed,
				CurrentArtifact: &models.Artifact{
					Code:     "ls /tmp",
					Language: "bash",
				},
				AttemptCount: 1,
			},
		},
		History: []models.Attempt{
			{
				StepIndex:     0,
				AttemptNumber: 0,
				Artifact:      models.Artifact{Code: "ls /tpm", Language: "bash"},
				Outcome:       models.Outcome{Status: models.OutcomeFailure, Diagnostic: "no such directory"},
				RecordedAt:    createdAt,
			},
		},
		RunState:    models.RunStateCompleted,
		Report:      "listed 3 files",
		CreatedAt:   createdAt,
		CompletedAt: &completed,
	}
}

func TestSaveAndGetRun(t *testing.T) {
	db := testDB(t)
	now := time.Now().Truncate(time.Second)
	plan := samplePlan("req-abc12345", now)

	if err := db.SaveRun(plan); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := db.GetRun("req-abc12345")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Request != plan.Request {
		t.Errorf("Request = %q, want %q", got.Request, plan.Request)
	}
	if got.RunState != models.RunStateCompleted {
		t.Errorf("RunState = %s", got.RunState)
	}
	if got.Report != "listed 3 files" {
		t.Errorf("Report = %q", got.Report)
	}
	if len(got.Steps) != 1 || got.Steps[0].Description != "list /tmp" {
		t.Errorf("Steps = %+v", got.Steps)
	}
	if got.Steps[0].CurrentArtifact == nil || got.Steps[0].CurrentArtifact.Code != "ls /tmp" {
		t.Errorf("artifact not round-tripped: %+v", got.Steps[0].CurrentArtifact)
	}
	if len(got.History) != 1 {
		t.Fatalf("History has %d records, want 1", len(got.History))
	}
	if got.History[0].Outcome.Diagnostic != "no such directory" {
		t.Errorf("history diagnostic = %q", got.History[0].Outcome.Diagnostic)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not round-tripped")
	}
	if got.Failure != nil {
		t.Errorf("Failure = %+v, want nil", got.Failure)
	}
}

func TestSaveRun_Failure(t *testing.T) {
	db := testDB(t)
	plan := samplePlan("req-failed01", time.Now())
	plan.RunState = models.RunStateAborted
	plan.Report = ""
	plan.Failure = &models.Failure{
		Kind:      models.FailureAttemptsExhausted,
		Phase:     models.PhaseDebugging,
		StepIndex: 0,
		Message:   "step failed after 3 attempts",
	}

	if err := db.SaveRun(plan); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := db.GetRun("req-failed01")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Failure == nil {
		t.Fatal("Failure not round-tripped")
	}
	if got.Failure.Kind != models.FailureAttemptsExhausted {
		t.Errorf("failure kind = %s", got.Failure.Kind)
	}
	if got.Failure.StepIndex != 0 {
		t.Errorf("failure step = %d", got.Failure.StepIndex)
	}
}

func TestSaveRun_Replace(t *testing.T) {
	db := testDB(t)
	plan := samplePlan("req-replace1", time.Now())

	if err := db.SaveRun(plan); err != nil {
		t.Fatal(err)
	}

	plan.Report = "updated report"
	plan.History = append(plan.History, models.Attempt{
		StepIndex:     0,
		AttemptNumber: 1,
		Artifact:      models.Artifact{Code: "ls /tmp", Language: "bash"},
		Outcome:       models.Outcome{Status: models.OutcomeSuccess, Output: "a b c"},
		RecordedAt:    time.Now(),
	})
	if err := db.SaveRun(plan); err != nil {
		t.Fatalf("second SaveRun() error = %v", err)
	}

	got, err := db.GetRun("req-replace1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Report != "updated report" {
		t.Errorf("Report = %q", got.Report)
	}
	if len(got.History) != 2 {
		t.Errorf("History has %d records, want 2", len(got.History))
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetRun("req-missing0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}
}

func TestListRuns(t *testing.T) {
	db := testDB(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i, id := range []string{"req-aaaaaaaa", "req-bbbbbbbb", "req-cccccccc"} {
		plan := samplePlan(id, base.Add(time.Duration(i)*time.Minute))
		if err := db.SaveRun(plan); err != nil {
			t.Fatal(err)
		}
	}

	summaries, err := db.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("got %d summaries, want 3", len(summaries))
	}
	// Newest first.
	if summaries[0].ID != "req-cccccccc" || summaries[2].ID != "req-aaaaaaaa" {
		t.Errorf("order = %s, %s, %s", summaries[0].ID, summaries[1].ID, summaries[2].ID)
	}
	if summaries[0].StepCount != 1 {
		t.Errorf("StepCount = %d, want 1", summaries[0].StepCount)
	}

	limited, err := db.ListRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d summaries with limit 2", len(limited))
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := testDB(t)
	old := samplePlan("req-old00000", time.Now().Add(-48*time.Hour))
	recent := samplePlan("req-new00000", time.Now())
	if err := db.SaveRun(old); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveRun(recent); err != nil {
		t.Fatal(err)
	}

	count, err := db.PurgeOldRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldRuns() error = %v", err)
	}
	if count != 1 {
		t.Errorf("purged %d runs, want 1", count)
	}
	if _, err := db.GetRun("req-old00000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old run still present: %v", err)
	}
	if _, err := db.GetRun("req-new00000"); err != nil {
		t.Errorf("recent run lost: %v", err)
	}
}
