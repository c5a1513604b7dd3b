package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jfelder/stepwise/pkg/models"
)

// ErrNotFound is returned when no archived run has the requested ID.
var ErrNotFound = errors.New("run not found")

// RunSummary is the listing row for an archived run.
type RunSummary struct {
	ID          string            `json:"id"`
	Request     string            `json:"request"`
	RunState    models.RunState   `json:"run_state"`
	StepCount   int               `json:"step_count"`
	FailureKind models.FailureKind `json:"failure_kind,omitempty"`
	CreatedAt   string            `json:"created_at"`
	CompletedAt string            `json:"completed_at,omitempty"`
}

// SaveRun archives a plan and its attempt history. Saving the same
// run ID again replaces the previous record, so callers can archive
// once at the terminal state without caring about earlier snapshots.
func (db *DB) SaveRun(plan *models.Plan) error {
	stepsJSON, err := json.Marshal(plan.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	var failureKind, failurePhase, failureMessage sql.NullString
	var failureStep sql.NullInt64
	if plan.Failure != nil {
		failureKind = sql.NullString{String: string(plan.Failure.Kind), Valid: true}
		failurePhase = sql.NullString{String: string(plan.Failure.Phase), Valid: true}
		failureMessage = sql.NullString{String: plan.Failure.Message, Valid: true}
		failureStep = sql.NullInt64{Int64: int64(plan.Failure.StepIndex), Valid: true}
	}

	var completedAt sql.NullString
	if plan.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*plan.CompletedAt), Valid: true}
	}

	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO runs
				(id, request, run_state, report, failure_kind, failure_phase,
				 failure_step, failure_message, steps_json, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, plan.ID, plan.Request, string(plan.RunState), plan.Report,
			failureKind, failurePhase, failureStep, failureMessage,
			string(stepsJSON), formatTime(plan.CreatedAt), completedAt)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM attempts WHERE run_id = ?", plan.ID); err != nil {
			return fmt.Errorf("clear attempts: %w", err)
		}

		for _, attempt := range plan.History {
			artifactJSON, err := json.Marshal(attempt.Artifact)
			if err != nil {
				return fmt.Errorf("marshal artifact: %w", err)
			}
			outcomeJSON, err := json.Marshal(attempt.Outcome)
			if err != nil {
				return fmt.Errorf("marshal outcome: %w", err)
			}
			_, err = tx.Exec(`
				INSERT INTO attempts
					(run_id, step_index, attempt_number, artifact_json, outcome_json, recorded_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, plan.ID, attempt.StepIndex, attempt.AttemptNumber,
				string(artifactJSON), string(outcomeJSON), formatTime(attempt.RecordedAt))
			if err != nil {
				return fmt.Errorf("insert attempt: %w", err)
			}
		}

		return nil
	})
}

// GetRun loads an archived run, including its steps and full attempt
// history, by ID.
func (db *DB) GetRun(id string) (*models.Plan, error) {
	var (
		plan           models.Plan
		runState       string
		stepsJSON      string
		createdAt      string
		completedAt    sql.NullString
		failureKind    sql.NullString
		failurePhase   sql.NullString
		failureStep    sql.NullInt64
		failureMessage sql.NullString
	)

	row := db.QueryRow(`
		SELECT id, request, run_state, report, failure_kind, failure_phase,
		       failure_step, failure_message, steps_json, created_at, completed_at
		FROM runs WHERE id = ?
	`, id)
	err := row.Scan(&plan.ID, &plan.Request, &runState, &plan.Report,
		&failureKind, &failurePhase, &failureStep, &failureMessage,
		&stepsJSON, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	plan.RunState = models.RunState(runState)
	if err := json.Unmarshal([]byte(stepsJSON), &plan.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if t, err := parseTime(createdAt); err == nil {
		plan.CreatedAt = t
	}
	plan.CompletedAt = parseNullableTime(completedAt)

	if failureKind.Valid {
		plan.Failure = &models.Failure{
			Kind:      models.FailureKind(failureKind.String),
			Phase:     models.Phase(failurePhase.String),
			StepIndex: int(failureStep.Int64),
			Message:   failureMessage.String,
		}
	}

	rows, err := db.Query(`
		SELECT step_index, attempt_number, artifact_json, outcome_json, recorded_at
		FROM attempts WHERE run_id = ?
		ORDER BY step_index, attempt_number
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			attempt      models.Attempt
			artifactJSON string
			outcomeJSON  string
			recordedAt   string
		)
		if err := rows.Scan(&attempt.StepIndex, &attempt.AttemptNumber,
			&artifactJSON, &outcomeJSON, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if err := json.Unmarshal([]byte(artifactJSON), &attempt.Artifact); err != nil {
			return nil, fmt.Errorf("unmarshal artifact: %w", err)
		}
		if err := json.Unmarshal([]byte(outcomeJSON), &attempt.Outcome); err != nil {
			return nil, fmt.Errorf("unmarshal outcome: %w", err)
		}
		if t, err := parseTime(recordedAt); err == nil {
			attempt.RecordedAt = t
		}
		plan.History = append(plan.History, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}

	return &plan, nil
}

// ListRuns returns summaries of the most recent archived runs, newest
// first. limit caps the result; values below 1 mean 50.
func (db *DB) ListRuns(limit int) ([]RunSummary, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, request, run_state, failure_kind, steps_json, created_at, completed_at
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var (
			s           RunSummary
			runState    string
			failureKind sql.NullString
			stepsJSON   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Request, &runState, &failureKind,
			&stepsJSON, &s.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.RunState = models.RunState(runState)
		if failureKind.Valid {
			s.FailureKind = models.FailureKind(failureKind.String)
		}
		var steps []*models.Step
		if err := json.Unmarshal([]byte(stepsJSON), &steps); err == nil {
			s.StepCount = len(steps)
		}
		if completedAt.Valid {
			s.CompletedAt = completedAt.String
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return summaries, nil
}
