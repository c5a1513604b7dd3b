package server

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jfelder/stepwise/internal/capability"
	"github.com/jfelder/stepwise/internal/config"
	"github.com/jfelder/stepwise/internal/gateway"
	"github.com/jfelder/stepwise/internal/manager"
	"github.com/jfelder/stepwise/internal/orchestrator"
	"github.com/jfelder/stepwise/internal/state"
)

// session owns one websocket connection: the read pump, the gateway
// bound to the connection, and the facade driving runs requested on it.
// All outbound writes go through the gateway so they share one mutex.
type session struct {
	conn    *websocket.Conn
	gw      *gateway.WS
	facade  *orchestrator.Facade
	archive *state.DB
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newSession(conn *websocket.Conn, caps capability.Set, archive *state.DB, cfg *config.Config, limiter *orchestrator.Limiter, logger *zap.Logger) *session {
	s := &session{
		conn:    conn,
		archive: archive,
		logger:  logger,
	}
	s.gw = gateway.NewWS(conn, cfg.Orchestrator.DispatchTimeout, logger)
	mgr := manager.New(caps, s.gw, manager.Config{
		MaxAttempts:        cfg.Orchestrator.MaxAttempts,
		SemanticValidation: cfg.Orchestrator.SemanticValidation,
	}, logger, s.relayEvent)
	s.facade = orchestrator.New(mgr, limiter, logger)
	return s
}

// run is the read pump. It blocks until the peer disconnects; any run
// in flight is cancelled on exit.
func (s *session) run() {
	defer s.conn.Close()
	defer s.cancelRun()

	for {
		var env gateway.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("session read error", zap.Error(err))
			}
			return
		}

		switch env.Type {
		case gateway.TypeRequest:
			var req gateway.RequestPayload
			if err := env.DecodeData(&req); err != nil {
				s.sendError("", "", "invalid REQUEST payload: "+err.Error())
				continue
			}
			if req.Request == "" {
				s.sendError("", "", "request text is required")
				continue
			}
			go s.startRun(req.Request)

		case gateway.TypeStepResult:
			var res gateway.StepResultPayload
			if err := env.DecodeData(&res); err != nil {
				s.sendError("", "", "invalid STEP_RESULT payload: "+err.Error())
				continue
			}
			s.gw.DeliverResult(res)

		case gateway.TypeCancel:
			s.cancelRun()

		default:
			s.logger.Warn("unexpected session message", zap.String("type", string(env.Type)))
		}
	}
}

// startRun drives one request end to end on its own goroutine and
// archives the terminal plan.
func (s *session) startRun(request string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	plan, err := s.facade.ExecuteRequest(ctx, request)
	if errors.Is(err, orchestrator.ErrBusy) {
		s.sendError("", "", "a request is already running on this session")
		return
	}
	if plan == nil {
		if err != nil {
			s.sendError("", "", err.Error())
		}
		return
	}

	// Abort details already went out through the event relay.
	if s.archive != nil && plan.RunState.Terminal() {
		if err := s.archive.SaveRun(plan); err != nil {
			s.logger.Error("archive run", zap.String("request_id", plan.ID), zap.Error(err))
		}
	}
}

func (s *session) cancelRun() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// relayEvent translates orchestration progress into protocol messages.
// It runs synchronously on the run goroutine; the gateway serializes
// the actual writes.
func (s *session) relayEvent(e manager.Event) {
	switch e.Type {
	case manager.EventPlanStart:
		s.gw.BindRequest(e.Plan.ID)
		s.notify(gateway.NewEnvelope(gateway.TypeRequestStart, e.Plan.ID, -1,
			gateway.RequestPayload{Request: e.Plan.Request}))
		s.notify(gateway.NewEnvelope(gateway.TypePlanStart, e.Plan.ID, -1, nil))

	case manager.EventPlanReady:
		payload := gateway.PlanStepsPayload{}
		for _, step := range e.Plan.Steps {
			payload.Steps = append(payload.Steps, gateway.PlannedStepPayload{
				Index:          step.Index,
				Description:    step.Description,
				ExpectedOutput: step.ExpectedOutput,
				ValidationRule: step.ValidationRule,
			})
		}
		s.notify(gateway.NewEnvelope(gateway.TypePlanSteps, e.Plan.ID, -1, payload))
		s.notify(gateway.NewEnvelope(gateway.TypePlanComplete, e.Plan.ID, -1, nil))

	case manager.EventStepStart:
		s.notify(gateway.NewEnvelope(gateway.TypeStepStart, e.Plan.ID, e.Step.Index,
			gateway.PlannedStepPayload{
				Index:          e.Step.Index,
				Description:    e.Step.Description,
				ExpectedOutput: e.Step.ExpectedOutput,
				ValidationRule: e.Step.ValidationRule,
			}))

	case manager.EventStepCode:
		s.notify(gateway.NewEnvelope(gateway.TypeStepCode, e.Plan.ID, e.Step.Index,
			gateway.StepCodePayload{
				Code:      e.Artifact.Code,
				Language:  e.Artifact.Language,
				Reasoning: e.Artifact.Reasoning,
			}))

	case manager.EventStepPassed:
		s.notify(gateway.NewEnvelope(gateway.TypeStepSuccess, e.Plan.ID, e.Step.Index,
			gateway.StepOutcomePayload{
				Success: true,
				Output:  e.Outcome.Output,
				Attempt: e.Step.AttemptCount,
			}))

	case manager.EventStepFailed:
		s.notify(gateway.NewEnvelope(gateway.TypeStepFail, e.Plan.ID, e.Step.Index,
			gateway.StepOutcomePayload{
				Success:    false,
				Output:     e.Outcome.Output,
				Diagnostic: e.Outcome.Diagnostic,
				Attempt:    e.Step.AttemptCount,
			}))

	case manager.EventDebugStart:
		s.notify(gateway.NewEnvelope(gateway.TypeDebugStart, e.Plan.ID, e.Step.Index, nil))

	case manager.EventDebugCode:
		s.notify(gateway.NewEnvelope(gateway.TypeDebugCode, e.Plan.ID, e.Step.Index,
			gateway.StepCodePayload{
				Code:      e.Artifact.Code,
				Language:  e.Artifact.Language,
				Reasoning: e.Artifact.Reasoning,
			}))

	case manager.EventStepExhausted:
		s.notify(gateway.NewEnvelope(gateway.TypeDebugAbort, e.Plan.ID, e.Step.Index, nil))

	case manager.EventSummaryStart:
		s.notify(gateway.NewEnvelope(gateway.TypeSummaryStart, e.Plan.ID, -1, nil))

	case manager.EventCompleted:
		s.notify(gateway.NewEnvelope(gateway.TypeSummaryReport, e.Plan.ID, -1,
			gateway.SummaryPayload{Report: e.Plan.Report}))
		s.notify(gateway.NewEnvelope(gateway.TypeRequestComplete, e.Plan.ID, -1, nil))

	case manager.EventAborted:
		stepIndex := -1
		if e.Failure != nil {
			stepIndex = e.Failure.StepIndex
		}
		env := gateway.NewEnvelope(gateway.TypeError, e.Plan.ID, stepIndex, gateway.ErrorPayload{
			Kind:    string(e.Failure.Kind),
			Phase:   string(e.Failure.Phase),
			Message: e.Failure.Message,
		})
		s.notify(env)
	}
}

func (s *session) notify(env gateway.Envelope) {
	if err := s.gw.Notify(env); err != nil {
		s.logger.Warn("session notify failed",
			zap.String("type", string(env.Type)), zap.Error(err))
	}
}

func (s *session) sendError(kind, phase, message string) {
	s.notify(gateway.NewEnvelope(gateway.TypeError, "", -1, gateway.ErrorPayload{
		Kind:    kind,
		Phase:   phase,
		Message: message,
	}))
}
