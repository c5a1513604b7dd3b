// Package capability defines the four reasoning ports the orchestrator
// depends on (plan, generate code, debug, summarize) and the LLM-backed
// providers that implement them. No orchestration logic lives here.
package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/jfelder/stepwise/pkg/models"
)

// ErrUnavailable is wrapped by providers on any transport or provider
// error. The orchestration core surfaces it as part of the failure
// description; retry beyond the adapter-level policy is not attempted.
var ErrUnavailable = errors.New("capability unavailable")

// PlanningError indicates planning produced nothing usable for a request.
type PlanningError struct {
	Reason string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %s", e.Reason)
}

// PlannedStep is one step description produced by the planner.
type PlannedStep struct {
	Description    string `json:"description"`
	ExpectedInput  string `json:"expected_input"`
	ExpectedOutput string `json:"expected_output"`
	ValidationRule string `json:"validation_rule"`
}

// StepResult pairs a step with its final outcome for summarization.
type StepResult struct {
	Description string
	Outcome     *models.Outcome
}

// Planner decomposes a natural-language request into ordered atomic steps.
type Planner interface {
	Plan(ctx context.Context, request string) ([]PlannedStep, error)
}

// Coder turns a step description into an executable artifact. The prior
// attempts for the step, if any, are provided as repair context.
type Coder interface {
	GenerateCode(ctx context.Context, step *models.Step, prior []models.Attempt) (*models.Artifact, error)
}

// Debugger produces a replacement artifact for a failing one. It never
// mutates the failing artifact; the result is execution-ready and is
// re-dispatched without a fresh GenerateCode call.
type Debugger interface {
	Debug(ctx context.Context, step *models.Step, failing *models.Artifact, outcome *models.Outcome) (*models.Artifact, error)
}

// Summarizer synthesizes the final report from the request and the
// per-step results.
type Summarizer interface {
	Summarize(ctx context.Context, request string, results []StepResult) (string, error)
}

// Validator judges whether a reported output satisfies a step's
// validation rule. It can only demote a reported success; the outcome
// gate remains authoritative for everything else.
type Validator interface {
	Validate(ctx context.Context, step *models.Step, outcome *models.Outcome) (valid bool, reason string, err error)
}

// Set bundles the ports a deployment provides. Validator is optional.
type Set struct {
	Planner    Planner
	Coder      Coder
	Debugger   Debugger
	Summarizer Summarizer
	Validator  Validator
}
