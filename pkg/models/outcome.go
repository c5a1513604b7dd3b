package models

import "time"

// Artifact is a generated code blob intended for external execution.
// The orchestrator never executes, imports, or evaluates artifacts itself.
type Artifact struct {
	// Code is the executable content.
	Code string `json:"code"`
	// Language tags the code format, e.g. "bash" or "python".
	Language string `json:"language"`
	// Reasoning is the generator's explanation of the approach.
	Reasoning string `json:"reasoning,omitempty"`
	// ExpectedOutput is what the generator predicts execution will show.
	ExpectedOutput string `json:"expected_output,omitempty"`
}

// OutcomeStatus classifies an externally reported execution result.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates the executor reported success.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeFailure indicates the executor reported failure.
	OutcomeFailure OutcomeStatus = "failure"
	// OutcomeTimeout indicates no result arrived within the dispatch timeout.
	// Treated like a failure for transitions but tagged distinctly.
	OutcomeTimeout OutcomeStatus = "timeout"
)

// Valid returns true if the status is a known value.
func (s OutcomeStatus) Valid() bool {
	switch s {
	case OutcomeSuccess, OutcomeFailure, OutcomeTimeout:
		return true
	default:
		return false
	}
}

// Outcome is the structured result reported back after an artifact is
// executed externally.
type Outcome struct {
	// Status is the reported result class.
	Status OutcomeStatus `json:"status"`
	// Output is the captured execution output, if any.
	Output string `json:"output,omitempty"`
	// Diagnostic carries error detail or a validation reason on failure.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Success returns true if the outcome passed the validation gate.
func (o *Outcome) Success() bool {
	return o != nil && o.Status == OutcomeSuccess
}

// Attempt is one failed code/debug cycle recorded in a plan's history.
// The accumulated attempts for a step are fed back to the debugger.
type Attempt struct {
	// StepIndex is the step the attempt belongs to.
	StepIndex int `json:"step_index"`
	// AttemptNumber is 0 for the original generation, then 1..N per repair.
	AttemptNumber int `json:"attempt_number"`
	// Artifact is the code that was dispatched.
	Artifact Artifact `json:"artifact"`
	// Outcome is the reported result for that artifact.
	Outcome Outcome `json:"outcome"`
	// RecordedAt is when the attempt was logged.
	RecordedAt time.Time `json:"recorded_at"`
}
