package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies a protocol message on the session connection.
type MessageType string

// Server-to-client message types, mirroring the orchestration lifecycle.
const (
	TypeRequestStart     MessageType = "REQUEST_START"
	TypePlanStart        MessageType = "PLAN_START"
	TypePlanSteps        MessageType = "PLAN_STEPS"
	TypePlanComplete     MessageType = "PLAN_COMPLETE"
	TypeStepStart        MessageType = "STEP_START"
	TypeStepCode         MessageType = "STEP_CODE"
	TypeExecutionRequest MessageType = "STEP_EXECUTION_REQUEST"
	TypeStepSuccess      MessageType = "STEP_SUCCESS"
	TypeStepFail         MessageType = "STEP_FAIL"
	TypeDebugStart       MessageType = "DEBUG_START"
	TypeDebugCode        MessageType = "DEBUG_CODE"
	TypeDebugAbort       MessageType = "DEBUG_ABORT"
	TypeSummaryStart     MessageType = "SUMMARY_START"
	TypeSummaryReport    MessageType = "SUMMARY_REPORT"
	TypeRequestComplete  MessageType = "REQUEST_COMPLETE"
	TypeError            MessageType = "ERROR"
)

// Client-to-server message types.
const (
	TypeRequest    MessageType = "REQUEST"
	TypeStepResult MessageType = "STEP_RESULT"
	TypeCancel     MessageType = "CANCEL"
)

// Envelope is the wire frame for every session message.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	StepIndex *int            `json:"step_index,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an envelope with the current timestamp. stepIndex
// below zero omits the field. The payload must marshal cleanly; a
// marshal failure is a programming error and panics.
func NewEnvelope(t MessageType, requestID string, stepIndex int, payload interface{}) Envelope {
	env := Envelope{
		Type:      t,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	}
	if stepIndex >= 0 {
		idx := stepIndex
		env.StepIndex = &idx
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("gateway: marshal %s payload: %v", t, err))
		}
		env.Data = data
	}
	return env
}

// DecodeData unmarshals the envelope payload into target.
func (e *Envelope) DecodeData(target interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s message has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// RequestPayload starts a run. Sent by the client.
type RequestPayload struct {
	Request string `json:"request"`
}

// ExecutionRequestPayload asks the session peer to execute an artifact
// by hand and report the outcome.
type ExecutionRequestPayload struct {
	StepIndex      int    `json:"step_index"`
	Code           string `json:"code"`
	Language       string `json:"language"`
	Description    string `json:"description,omitempty"`
	ValidationRule string `json:"validation_rule,omitempty"`
	Instructions   string `json:"instructions"`
}

// StepResultPayload reports the outcome of a manual execution. Sent by
// the client, correlated by step index.
type StepResultPayload struct {
	StepIndex  int    `json:"step_index"`
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// PlannedStepPayload is one step inside a PLAN_STEPS message.
type PlannedStepPayload struct {
	Index          int    `json:"index"`
	Description    string `json:"description"`
	ExpectedOutput string `json:"expected_output,omitempty"`
	ValidationRule string `json:"validation_rule,omitempty"`
}

// PlanStepsPayload announces the decomposed plan to the client.
type PlanStepsPayload struct {
	Steps []PlannedStepPayload `json:"steps"`
}

// StepCodePayload carries a generated or repaired artifact.
type StepCodePayload struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	Reasoning string `json:"reasoning,omitempty"`
}

// StepOutcomePayload reports a step's validated outcome to the client.
type StepOutcomePayload struct {
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
	Attempt    int    `json:"attempt"`
}

// SummaryPayload carries the final run report.
type SummaryPayload struct {
	Report string `json:"report"`
}

// ErrorPayload carries a terminal error description to the client.
type ErrorPayload struct {
	Kind    string `json:"kind,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message"`
}
