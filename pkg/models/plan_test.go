package models

import (
	"strings"
	"testing"
)

func TestRunState_Valid(t *testing.T) {
	tests := []struct {
		state RunState
		want  bool
	}{
		{RunStatePlanning, true},
		{RunStateExecuting, true},
		{RunStateDebugging, true},
		{RunStateSummarizing, true},
		{RunStateCompleted, true},
		{RunStateAborted, true},
		{RunState("bogus"), false},
		{RunState(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunState_Terminal(t *testing.T) {
	tests := []struct {
		state RunState
		want  bool
	}{
		{RunStateCompleted, true},
		{RunStateAborted, true},
		{RunStatePlanning, false},
		{RunStateExecuting, false},
		{RunStateSummarizing, false},
	}

	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestNewPlan(t *testing.T) {
	p := NewPlan("scan the local network")

	if p.Request != "scan the local network" {
		t.Errorf("Request = %q", p.Request)
	}
	if p.RunState != RunStatePlanning {
		t.Errorf("RunState = %s, want %s", p.RunState, RunStatePlanning)
	}
	if !strings.HasPrefix(p.ID, "req-") {
		t.Errorf("ID = %q, want req- prefix", p.ID)
	}
	if len(p.ID) != len("req-")+8 {
		t.Errorf("ID = %q, want 8 hex chars after prefix", p.ID)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}

func TestPlan_StepHistory(t *testing.T) {
	p := NewPlan("test")
	p.AppendHistory(Attempt{StepIndex: 0, AttemptNumber: 0})
	p.AppendHistory(Attempt{StepIndex: 1, AttemptNumber: 0})
	p.AppendHistory(Attempt{StepIndex: 0, AttemptNumber: 1})

	got := p.StepHistory(0)
	if len(got) != 2 {
		t.Fatalf("StepHistory(0) returned %d attempts, want 2", len(got))
	}
	if got[0].AttemptNumber != 0 || got[1].AttemptNumber != 1 {
		t.Errorf("attempts out of order: %+v", got)
	}
	if len(p.StepHistory(2)) != 0 {
		t.Error("StepHistory(2) should be empty")
	}
}

func TestFailure_Error(t *testing.T) {
	tests := []struct {
		name    string
		failure Failure
		want    string
	}{
		{
			name: "with step",
			failure: Failure{
				Kind:      FailureAttemptsExhausted,
				Phase:     PhaseDebugging,
				StepIndex: 2,
				Message:   "gave up after 3 attempts",
			},
			want: "attempts_exhausted during debugging (step 2): gave up after 3 attempts",
		},
		{
			name: "without step",
			failure: Failure{
				Kind:      FailurePlanning,
				Phase:     PhasePlanning,
				StepIndex: -1,
				Message:   "empty plan",
			},
			want: "planning_error during planning: empty plan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.failure.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}
