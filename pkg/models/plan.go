// Package models defines the shared data types for stepwise: plans,
// steps, artifacts, and externally reported execution outcomes.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunState represents the lifecycle state of a plan.
type RunState string

const (
	// RunStatePlanning indicates the request is being decomposed into steps.
	RunStatePlanning RunState = "planning"
	// RunStateExecuting indicates steps are being generated and dispatched.
	RunStateExecuting RunState = "executing"
	// RunStateDebugging indicates a failed step is being repaired.
	RunStateDebugging RunState = "debugging"
	// RunStateSummarizing indicates the final report is being produced.
	RunStateSummarizing RunState = "summarizing"
	// RunStateCompleted indicates the plan finished with a report.
	RunStateCompleted RunState = "completed"
	// RunStateAborted indicates the plan terminated without a report.
	RunStateAborted RunState = "aborted"
)

// Valid returns true if the state is a known value.
func (s RunState) Valid() bool {
	switch s {
	case RunStatePlanning, RunStateExecuting, RunStateDebugging,
		RunStateSummarizing, RunStateCompleted, RunStateAborted:
		return true
	default:
		return false
	}
}

// Terminal returns true if the state admits no further transitions.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateAborted
}

// Phase identifies which stage of the run an error belongs to.
type Phase string

const (
	PhasePlanning    Phase = "planning"
	PhaseCoding      Phase = "coding"
	PhaseExecuting   Phase = "executing"
	PhaseDebugging   Phase = "debugging"
	PhaseSummarizing Phase = "summarizing"
)

// FailureKind classifies why a run aborted.
type FailureKind string

const (
	// FailurePlanning indicates planning produced nothing usable.
	FailurePlanning FailureKind = "planning_error"
	// FailureCapability indicates a capability provider or its transport failed.
	FailureCapability FailureKind = "capability_unavailable"
	// FailureAttemptsExhausted indicates a step failed after the debug retry ceiling.
	FailureAttemptsExhausted FailureKind = "attempts_exhausted"
	// FailureCancelled indicates the run was cancelled by the caller.
	FailureCancelled FailureKind = "cancelled"
)

// Failure describes why and where an aborted run stopped.
type Failure struct {
	// Kind classifies the failure.
	Kind FailureKind `json:"kind"`
	// Phase is the stage the failure occurred in.
	Phase Phase `json:"phase"`
	// StepIndex is the offending step, or -1 if no step applies.
	StepIndex int `json:"step_index"`
	// Message is a human-readable description.
	Message string `json:"message"`
}

// Error implements the error interface so a Failure can travel as one.
func (f *Failure) Error() string {
	if f.StepIndex >= 0 {
		return fmt.Sprintf("%s during %s (step %d): %s", f.Kind, f.Phase, f.StepIndex, f.Message)
	}
	return fmt.Sprintf("%s during %s: %s", f.Kind, f.Phase, f.Message)
}

// Plan is the full ordered set of steps derived from one user request,
// plus run-level state. A Plan is created per request, mutated only by
// the step manager, and discarded once it reaches a terminal state.
type Plan struct {
	// ID is the unique request identifier, e.g. "req-a1b2c3d4".
	ID string `json:"id"`
	// Request is the original natural-language request. Immutable once set.
	Request string `json:"request"`
	// Steps is the ordered execution sequence. Append-only after planning.
	Steps []*Step `json:"steps"`
	// RunState is the current lifecycle state.
	RunState RunState `json:"run_state"`
	// History is the append-only log of failed attempts across all steps.
	History []Attempt `json:"history,omitempty"`
	// Report is the final summary text, set only on completion.
	Report string `json:"report,omitempty"`
	// Failure describes the abort reason, set only on abort.
	Failure *Failure `json:"failure,omitempty"`
	// CreatedAt is when the plan was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the plan reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewPlan creates a fresh plan for a request in the planning state.
func NewPlan(request string) *Plan {
	return &Plan{
		ID:        "req-" + uuid.NewString()[:8],
		Request:   request,
		RunState:  RunStatePlanning,
		CreatedAt: time.Now(),
	}
}

// AppendHistory records a failed attempt in the plan's audit log.
func (p *Plan) AppendHistory(a Attempt) {
	p.History = append(p.History, a)
}

// StepHistory returns the recorded attempts for a single step, in order.
func (p *Plan) StepHistory(index int) []Attempt {
	var out []Attempt
	for _, a := range p.History {
		if a.StepIndex == index {
			out = append(out, a)
		}
	}
	return out
}
