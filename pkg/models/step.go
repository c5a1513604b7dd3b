package models

// StepStatus represents the current state of a step within a plan.
type StepStatus string

const (
	// StepStatusPending indicates the step has not started.
	StepStatusPending StepStatus = "pending"
	// StepStatusAwaitingCode indicates code generation is in flight.
	StepStatusAwaitingCode StepStatus = "awaiting_code"
	// StepStatusAwaitingExecution indicates the artifact has been dispatched
	// and the step is waiting on an externally reported outcome.
	StepStatusAwaitingExecution StepStatus = "awaiting_execution"
	// StepStatusValidating indicates an outcome arrived and is being gated.
	StepStatusValidating StepStatus = "validating"
	// StepStatusDebugging indicates the step failed and a repair is in flight.
	StepStatusDebugging StepStatus = "debugging"
	// StepStatusPassed indicates the step succeeded. Terminal.
	StepStatusPassed StepStatus = "passed"
	// StepStatusFailed indicates the step exhausted its attempts. Terminal.
	StepStatusFailed StepStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusPending, StepStatusAwaitingCode, StepStatusAwaitingExecution,
		StepStatusValidating, StepStatusDebugging, StepStatusPassed, StepStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the step will not be revisited.
func (s StepStatus) Terminal() bool {
	return s == StepStatusPassed || s == StepStatusFailed
}

// Step is one atomic, independently validated unit of work within a plan.
// Steps are created at planning time and mutated exclusively by the step
// manager as they progress through generation, dispatch, and validation.
type Step struct {
	// Index is the 0-based position in the plan. Immutable.
	Index int `json:"index"`
	// Description is the natural-language task text. Immutable.
	Description string `json:"description"`
	// ExpectedInput is the command or input the planner expects to run.
	ExpectedInput string `json:"expected_input,omitempty"`
	// ExpectedOutput describes what a successful execution should show.
	ExpectedOutput string `json:"expected_output,omitempty"`
	// ValidationRule describes in plain language how to verify the step.
	ValidationRule string `json:"validation_rule,omitempty"`
	// Status is the current state of the step.
	Status StepStatus `json:"status"`
	// CurrentArtifact is the latest generated code artifact. Replaced,
	// never mutated in place, on each generation or repair.
	CurrentArtifact *Artifact `json:"current_artifact,omitempty"`
	// AttemptCount is the number of debug cycles consumed by this step.
	AttemptCount int `json:"attempt_count"`
	// LastOutcome is the most recent externally reported outcome, or nil
	// before the first execution.
	LastOutcome *Outcome `json:"last_outcome,omitempty"`
}
