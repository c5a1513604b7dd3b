package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jfelder/stepwise/pkg/models"
)

// WSConn is the subset of *websocket.Conn the gateway writes through.
type WSConn interface {
	WriteJSON(v interface{}) error
}

// WS is a Dispatcher bound to one websocket session. The server owns
// the read side of the connection and feeds results in via
// DeliverResult; all writes for the session go through this gateway so
// they are serialized on one mutex (gorilla permits a single concurrent
// writer).
type WS struct {
	conn    WSConn
	timeout time.Duration
	logger  *zap.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	inFlight  bool
	requestID string

	results chan StepResultPayload
}

// NewWS creates a gateway over conn. timeout bounds each dispatch wait;
// zero or negative falls back to ten minutes.
func NewWS(conn WSConn, timeout time.Duration, logger *zap.Logger) *WS {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WS{
		conn:    conn,
		timeout: timeout,
		logger:  logger,
		results: make(chan StepResultPayload, 1),
	}
}

// BindRequest associates subsequent messages with a request ID.
func (g *WS) BindRequest(id string) {
	g.mu.Lock()
	g.requestID = id
	g.mu.Unlock()
}

// Notify sends a one-way protocol message to the session peer.
func (g *WS) Notify(env Envelope) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if err := g.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

// DeliverResult hands an inbound step result to a waiting dispatch.
// Results that arrive with no dispatch waiting (e.g. after a timeout)
// are dropped with a warning.
func (g *WS) DeliverResult(res StepResultPayload) {
	select {
	case g.results <- res:
	default:
		g.logger.Warn("dropping unsolicited step result",
			zap.Int("step_index", res.StepIndex))
	}
}

// Dispatch delivers the artifact to the session peer for manual
// execution and blocks until a correlated result arrives, the timeout
// elapses, or ctx is cancelled.
func (g *WS) Dispatch(ctx context.Context, step *models.Step, artifact *models.Artifact) (*models.Outcome, error) {
	g.mu.Lock()
	if g.inFlight {
		g.mu.Unlock()
		return nil, ErrDispatchInFlight
	}
	g.inFlight = true
	requestID := g.requestID
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.inFlight = false
		g.mu.Unlock()
	}()

	// Drop a stale result left over from an earlier timed-out dispatch.
	select {
	case stale := <-g.results:
		g.logger.Warn("discarding stale step result",
			zap.Int("step_index", stale.StepIndex))
	default:
	}

	env := NewEnvelope(TypeExecutionRequest, requestID, step.Index, ExecutionRequestPayload{
		StepIndex:      step.Index,
		Code:           artifact.Code,
		Language:       artifact.Language,
		Description:    step.Description,
		ValidationRule: step.ValidationRule,
		Instructions:   "Execute the code manually and report the output and success status.",
	})
	if err := g.Notify(env); err != nil {
		return nil, err
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case res := <-g.results:
		if res.StepIndex != step.Index {
			return nil, fmt.Errorf("%w: got step %d, want step %d",
				ErrCorrelation, res.StepIndex, step.Index)
		}
		return resultToOutcome(res), nil

	case <-timer.C:
		return &models.Outcome{
			Status:     models.OutcomeTimeout,
			Diagnostic: fmt.Sprintf("no outcome reported within %s", g.timeout),
		}, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func resultToOutcome(res StepResultPayload) *models.Outcome {
	if res.Success {
		return &models.Outcome{
			Status: models.OutcomeSuccess,
			Output: res.Output,
		}
	}
	diagnostic := res.Diagnostic
	if diagnostic == "" {
		diagnostic = "execution reported failure"
	}
	return &models.Outcome{
		Status:     models.OutcomeFailure,
		Output:     res.Output,
		Diagnostic: diagnostic,
	}
}
