package gateway

import (
	"encoding/json"
	"testing"
)

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(TypeStepCode, "req-123", 2, map[string]string{"code": "ls"})

	if env.Type != TypeStepCode {
		t.Errorf("Type = %s", env.Type)
	}
	if env.RequestID != "req-123" {
		t.Errorf("RequestID = %q", env.RequestID)
	}
	if env.StepIndex == nil || *env.StepIndex != 2 {
		t.Error("StepIndex not set")
	}
	if env.Timestamp.IsZero() {
		t.Error("Timestamp is zero")
	}

	var data map[string]string
	if err := env.DecodeData(&data); err != nil {
		t.Fatalf("DecodeData() error = %v", err)
	}
	if data["code"] != "ls" {
		t.Errorf("payload = %v", data)
	}
}

func TestNewEnvelope_NoStep(t *testing.T) {
	env := NewEnvelope(TypePlanStart, "req-123", -1, nil)

	if env.StepIndex != nil {
		t.Error("StepIndex should be omitted for negative index")
	}
	if env.Data != nil {
		t.Error("Data should be empty for nil payload")
	}
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env := NewEnvelope(TypeStepResult, "req-9", 1, StepResultPayload{
		StepIndex: 1,
		Success:   false,
		Output:    "boom",
	})

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	var payload StepResultPayload
	if err := decoded.DecodeData(&payload); err != nil {
		t.Fatalf("DecodeData() error = %v", err)
	}
	if payload.Output != "boom" || payload.Success {
		t.Errorf("payload = %+v", payload)
	}
}

func TestEnvelope_DecodeData_Empty(t *testing.T) {
	env := NewEnvelope(TypePlanStart, "req-1", -1, nil)

	var target map[string]string
	if err := env.DecodeData(&target); err == nil {
		t.Error("expected error decoding empty payload")
	}
}
