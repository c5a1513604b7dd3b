package manager

import "github.com/jfelder/stepwise/pkg/models"

// EventType identifies a progress event emitted during a run.
type EventType string

const (
	// EventPlanStart fires when planning begins.
	EventPlanStart EventType = "plan_start"
	// EventPlanReady fires once steps exist and execution begins.
	EventPlanReady EventType = "plan_ready"
	// EventStepStart fires when a step enters code generation.
	EventStepStart EventType = "step_start"
	// EventStepCode fires when a step's initial artifact is ready.
	EventStepCode EventType = "step_code"
	// EventStepPassed fires when a step passes the validation gate.
	EventStepPassed EventType = "step_passed"
	// EventStepFailed fires on a failed or timed-out execution.
	EventStepFailed EventType = "step_failed"
	// EventStepExhausted fires when a step hits the attempt ceiling.
	EventStepExhausted EventType = "step_exhausted"
	// EventDebugStart fires when a repair cycle begins.
	EventDebugStart EventType = "debug_start"
	// EventDebugCode fires when a repaired artifact is ready.
	EventDebugCode EventType = "debug_code"
	// EventSummaryStart fires when summarization begins.
	EventSummaryStart EventType = "summary_start"
	// EventCompleted fires when the run reaches Completed.
	EventCompleted EventType = "completed"
	// EventAborted fires when the run reaches Aborted.
	EventAborted EventType = "aborted"
)

// Event is a progress notification. Fields beyond Type and Plan are set
// only where they apply.
type Event struct {
	Type     EventType
	Plan     *models.Plan
	Step     *models.Step
	Artifact *models.Artifact
	Outcome  *models.Outcome
	Failure  *models.Failure
	// Attempt is the repair cycle number for debug events.
	Attempt int
}
