package server

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jfelder/stepwise/internal/gateway"
	"github.com/jfelder/stepwise/internal/manager"
	"github.com/jfelder/stepwise/pkg/models"
)

// recordingConn captures every envelope the session writes.
type recordingConn struct {
	sent []gateway.Envelope
}

func (c *recordingConn) WriteJSON(v interface{}) error {
	c.sent = append(c.sent, v.(gateway.Envelope))
	return nil
}

func relaySession(conn *recordingConn) *session {
	return &session{
		gw:     gateway.NewWS(conn, time.Minute, zap.NewNop()),
		logger: zap.NewNop(),
	}
}

func relayPlan() *models.Plan {
	plan := models.NewPlan("free up disk space")
	plan.Steps = []*models.Step{
		{Index: 0, Description: "find large files", ValidationRule: "paths listed"},
		{Index: 1, Description: "remove stale caches"},
	}
	return plan
}

func types(sent []gateway.Envelope) []gateway.MessageType {
	out := make([]gateway.MessageType, len(sent))
	for i, env := range sent {
		out[i] = env.Type
	}
	return out
}

func TestRelayEvent_HappyPathSequence(t *testing.T) {
	conn := &recordingConn{}
	s := relaySession(conn)
	plan := relayPlan()
	step := plan.Steps[0]
	artifact := &models.Artifact{Code: "du -sh *", Language: "bash"}

	s.relayEvent(manager.Event{Type: manager.EventPlanStart, Plan: plan})
	s.relayEvent(manager.Event{Type: manager.EventPlanReady, Plan: plan})
	s.relayEvent(manager.Event{Type: manager.EventStepStart, Plan: plan, Step: step})
	s.relayEvent(manager.Event{Type: manager.EventStepCode, Plan: plan, Step: step, Artifact: artifact})
	s.relayEvent(manager.Event{Type: manager.EventStepPassed, Plan: plan, Step: step,
		Outcome: &models.Outcome{Status: models.OutcomeSuccess, Output: "4.2G\tcache"}})
	s.relayEvent(manager.Event{Type: manager.EventSummaryStart, Plan: plan})
	plan.Report = "cleared 4.2G"
	s.relayEvent(manager.Event{Type: manager.EventCompleted, Plan: plan})

	want := []gateway.MessageType{
		gateway.TypeRequestStart,
		gateway.TypePlanStart,
		gateway.TypePlanSteps,
		gateway.TypePlanComplete,
		gateway.TypeStepStart,
		gateway.TypeStepCode,
		gateway.TypeStepSuccess,
		gateway.TypeSummaryStart,
		gateway.TypeSummaryReport,
		gateway.TypeRequestComplete,
	}
	got := types(conn.sent)
	if len(got) != len(want) {
		t.Fatalf("messages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	// Every message after binding carries the request ID.
	for _, env := range conn.sent {
		if env.RequestID != plan.ID {
			t.Errorf("%s request_id = %q, want %q", env.Type, env.RequestID, plan.ID)
		}
	}

	var steps gateway.PlanStepsPayload
	if err := conn.sent[2].DecodeData(&steps); err != nil {
		t.Fatal(err)
	}
	if len(steps.Steps) != 2 || steps.Steps[0].Description != "find large files" {
		t.Errorf("PLAN_STEPS payload = %+v", steps)
	}

	var report gateway.SummaryPayload
	if err := conn.sent[8].DecodeData(&report); err != nil {
		t.Fatal(err)
	}
	if report.Report != "cleared 4.2G" {
		t.Errorf("report = %q", report.Report)
	}
}

func TestRelayEvent_FailureAndDebug(t *testing.T) {
	conn := &recordingConn{}
	s := relaySession(conn)
	plan := relayPlan()
	step := plan.Steps[0]
	step.AttemptCount = 1

	s.relayEvent(manager.Event{Type: manager.EventStepFailed, Plan: plan, Step: step,
		Outcome: &models.Outcome{Status: models.OutcomeFailure, Diagnostic: "permission denied"}})
	s.relayEvent(manager.Event{Type: manager.EventDebugStart, Plan: plan, Step: step, Attempt: 1})
	s.relayEvent(manager.Event{Type: manager.EventDebugCode, Plan: plan, Step: step,
		Artifact: &models.Artifact{Code: "sudo du -sh *", Language: "bash"}})

	want := []gateway.MessageType{gateway.TypeStepFail, gateway.TypeDebugStart, gateway.TypeDebugCode}
	got := types(conn.sent)
	if len(got) != len(want) {
		t.Fatalf("messages = %v, want %v", got, want)
	}

	var fail gateway.StepOutcomePayload
	if err := conn.sent[0].DecodeData(&fail); err != nil {
		t.Fatal(err)
	}
	if fail.Success || fail.Diagnostic != "permission denied" || fail.Attempt != 1 {
		t.Errorf("STEP_FAIL payload = %+v", fail)
	}
	if conn.sent[1].StepIndex == nil || *conn.sent[1].StepIndex != 0 {
		t.Errorf("DEBUG_START step index = %v", conn.sent[1].StepIndex)
	}
}

func TestRelayEvent_Aborted(t *testing.T) {
	conn := &recordingConn{}
	s := relaySession(conn)
	plan := relayPlan()
	plan.Failure = &models.Failure{
		Kind:      models.FailureAttemptsExhausted,
		Phase:     models.PhaseDebugging,
		StepIndex: 1,
		Message:   "step failed after 3 attempts",
	}

	s.relayEvent(manager.Event{Type: manager.EventStepExhausted, Plan: plan, Step: plan.Steps[1]})
	s.relayEvent(manager.Event{Type: manager.EventAborted, Plan: plan, Failure: plan.Failure})

	got := types(conn.sent)
	if len(got) != 2 || got[0] != gateway.TypeDebugAbort || got[1] != gateway.TypeError {
		t.Fatalf("messages = %v", got)
	}

	var errPayload gateway.ErrorPayload
	if err := conn.sent[1].DecodeData(&errPayload); err != nil {
		t.Fatal(err)
	}
	if errPayload.Kind != string(models.FailureAttemptsExhausted) {
		t.Errorf("error kind = %q", errPayload.Kind)
	}
	if errPayload.Message != "step failed after 3 attempts" {
		t.Errorf("error message = %q", errPayload.Message)
	}
}
