package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jfelder/stepwise/pkg/models"
)

// recordingConn captures envelopes written to it.
type recordingConn struct {
	mu       sync.Mutex
	messages []Envelope
	err      error
}

func (c *recordingConn) WriteJSON(v interface{}) error {
	if c.err != nil {
		return c.err
	}
	env, ok := v.(Envelope)
	if !ok {
		return errors.New("unexpected message type")
	}
	c.mu.Lock()
	c.messages = append(c.messages, env)
	c.mu.Unlock()
	return nil
}

func (c *recordingConn) last() Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages[len(c.messages)-1]
}

func testArtifact() *models.Artifact {
	return &models.Artifact{Code: "ls -la", Language: "bash"}
}

func TestWS_Dispatch_Success(t *testing.T) {
	conn := &recordingConn{}
	gw := NewWS(conn, time.Second, nil)
	gw.BindRequest("req-abc123")

	step := &models.Step{Index: 0, Description: "list files"}

	done := make(chan struct{})
	var outcome *models.Outcome
	var err error
	go func() {
		outcome, err = gw.Dispatch(context.Background(), step, testArtifact())
		close(done)
	}()

	// Wait for the execution request to be sent, then answer it.
	waitFor(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.messages) == 1
	})
	gw.DeliverResult(StepResultPayload{StepIndex: 0, Success: true, Output: "total 8"})

	<-done
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome.Status != models.OutcomeSuccess {
		t.Errorf("Status = %s, want success", outcome.Status)
	}
	if outcome.Output != "total 8" {
		t.Errorf("Output = %q", outcome.Output)
	}

	sent := conn.last()
	if sent.Type != TypeExecutionRequest {
		t.Errorf("sent type = %s", sent.Type)
	}
	if sent.RequestID != "req-abc123" {
		t.Errorf("request_id = %q", sent.RequestID)
	}
	if sent.StepIndex == nil || *sent.StepIndex != 0 {
		t.Error("step_index missing from execution request")
	}
}

func TestWS_Dispatch_Failure(t *testing.T) {
	gw := NewWS(&recordingConn{}, time.Second, nil)
	step := &models.Step{Index: 1}

	go func() {
		time.Sleep(10 * time.Millisecond)
		gw.DeliverResult(StepResultPayload{StepIndex: 1, Success: false, Output: "err", Diagnostic: "exit 1"})
	}()

	outcome, err := gw.Dispatch(context.Background(), step, testArtifact())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome.Status != models.OutcomeFailure {
		t.Errorf("Status = %s, want failure", outcome.Status)
	}
	if outcome.Diagnostic != "exit 1" {
		t.Errorf("Diagnostic = %q", outcome.Diagnostic)
	}
}

func TestWS_Dispatch_Timeout(t *testing.T) {
	gw := NewWS(&recordingConn{}, 20*time.Millisecond, nil)

	outcome, err := gw.Dispatch(context.Background(), &models.Step{Index: 0}, testArtifact())
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome.Status != models.OutcomeTimeout {
		t.Errorf("Status = %s, want timeout", outcome.Status)
	}
}

func TestWS_Dispatch_CorrelationMismatch(t *testing.T) {
	gw := NewWS(&recordingConn{}, time.Second, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		gw.DeliverResult(StepResultPayload{StepIndex: 7, Success: true})
	}()

	_, err := gw.Dispatch(context.Background(), &models.Step{Index: 0}, testArtifact())
	if !errors.Is(err, ErrCorrelation) {
		t.Errorf("error = %v, want ErrCorrelation", err)
	}
}

func TestWS_Dispatch_Cancelled(t *testing.T) {
	gw := NewWS(&recordingConn{}, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := gw.Dispatch(ctx, &models.Step{Index: 0}, testArtifact())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestWS_Dispatch_SecondInFlight(t *testing.T) {
	gw := NewWS(&recordingConn{}, time.Second, nil)

	release := make(chan struct{})
	go func() {
		gw.Dispatch(context.Background(), &models.Step{Index: 0}, testArtifact())
		close(release)
	}()

	waitFor(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return gw.inFlight
	})

	_, err := gw.Dispatch(context.Background(), &models.Step{Index: 1}, testArtifact())
	if !errors.Is(err, ErrDispatchInFlight) {
		t.Errorf("error = %v, want ErrDispatchInFlight", err)
	}

	gw.DeliverResult(StepResultPayload{StepIndex: 0, Success: true})
	<-release
}

func TestWS_Dispatch_DiscardsStaleResult(t *testing.T) {
	gw := NewWS(&recordingConn{}, 20*time.Millisecond, nil)

	// First dispatch times out; the result arrives late.
	outcome, err := gw.Dispatch(context.Background(), &models.Step{Index: 0}, testArtifact())
	if err != nil || outcome.Status != models.OutcomeTimeout {
		t.Fatalf("first dispatch: outcome=%v err=%v", outcome, err)
	}
	gw.DeliverResult(StepResultPayload{StepIndex: 0, Success: true, Output: "late"})

	// Second dispatch must not consume the stale result.
	go func() {
		time.Sleep(10 * time.Millisecond)
		gw.DeliverResult(StepResultPayload{StepIndex: 1, Success: true, Output: "fresh"})
	}()
	outcome, err = gw.Dispatch(context.Background(), &models.Step{Index: 1}, testArtifact())
	if err != nil {
		t.Fatalf("second dispatch error = %v", err)
	}
	if outcome.Output != "fresh" {
		t.Errorf("Output = %q, want fresh", outcome.Output)
	}
}

func TestWS_Notify_WriteError(t *testing.T) {
	conn := &recordingConn{err: errors.New("broken pipe")}
	gw := NewWS(conn, time.Second, nil)

	if err := gw.Notify(NewEnvelope(TypePlanStart, "req-x", -1, nil)); err == nil {
		t.Error("expected write error to propagate")
	}
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
