// Package manager implements the orchestration state machine that owns
// plan and step lifecycle: planning, per-step code generation, dispatch
// for external execution, outcome validation, the bounded debug loop,
// and run-level progression to a terminal state.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jfelder/stepwise/internal/capability"
	"github.com/jfelder/stepwise/internal/gateway"
	"github.com/jfelder/stepwise/pkg/models"
)

// Config holds the policy knobs the state machine consumes.
type Config struct {
	// MaxAttempts is the per-step execution ceiling: the original
	// dispatch plus repairs. Values below 1 are treated as 1.
	MaxAttempts int
	// SemanticValidation routes reported successes through the
	// Validator port, which may demote them with a reason.
	SemanticValidation bool
}

// Manager drives one plan at a time through the orchestration state
// machine. It holds no per-plan state between runs; all mutable run
// state lives on the Plan passed to Run.
type Manager struct {
	caps       capability.Set
	dispatcher gateway.Dispatcher
	cfg        Config
	logger     *zap.Logger
	onEvent    func(Event)
}

// New creates a manager. onEvent may be nil; when set it receives
// progress events synchronously and must not block.
func New(caps capability.Set, dispatcher gateway.Dispatcher, cfg Config, logger *zap.Logger, onEvent func(Event)) *Manager {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		caps:       caps,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		onEvent:    onEvent,
	}
}

// Run drives the plan to a terminal state. It returns the plan's
// Failure as an error when the run aborts, and nil on completion.
// Calling Run on a plan already in a terminal state is a no-op that
// reports the recorded result.
func (m *Manager) Run(ctx context.Context, plan *models.Plan) error {
	if plan.RunState.Terminal() {
		if plan.Failure != nil {
			return plan.Failure
		}
		return nil
	}

	log := m.logger.With(zap.String("request_id", plan.ID))

	// Planning
	m.emit(Event{Type: EventPlanStart, Plan: plan})
	steps, err := m.caps.Planner.Plan(ctx, plan.Request)
	if err != nil {
		return m.abort(plan, classifyPortError(err, models.PhasePlanning, -1))
	}
	if err := ctx.Err(); err != nil {
		return m.abort(plan, cancelledFailure(models.PhasePlanning, -1))
	}
	if len(steps) == 0 {
		// An empty plan cannot satisfy a non-trivial request.
		return m.abort(plan, &models.Failure{
			Kind:      models.FailurePlanning,
			Phase:     models.PhasePlanning,
			StepIndex: -1,
			Message:   "planning produced no steps",
		})
	}

	for i, planned := range steps {
		plan.Steps = append(plan.Steps, &models.Step{
			Index:          i,
			Description:    planned.Description,
			ExpectedInput:  planned.ExpectedInput,
			ExpectedOutput: planned.ExpectedOutput,
			ValidationRule: planned.ValidationRule,
			Status:         models.StepStatusPending,
		})
	}
	plan.RunState = models.RunStateExecuting
	m.emit(Event{Type: EventPlanReady, Plan: plan})
	log.Info("plan ready", zap.Int("steps", len(plan.Steps)))

	// Step execution loop: strictly sequential. A later step may depend
	// on environment side effects of earlier ones.
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return m.abort(plan, cancelledFailure(models.PhaseExecuting, step.Index))
		}
		if failure := m.runStep(ctx, plan, step); failure != nil {
			return m.abort(plan, failure)
		}
	}

	// Summarizing
	plan.RunState = models.RunStateSummarizing
	m.emit(Event{Type: EventSummaryStart, Plan: plan})

	results := make([]capability.StepResult, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		results = append(results, capability.StepResult{
			Description: step.Description,
			Outcome:     step.LastOutcome,
		})
	}
	report, err := m.caps.Summarizer.Summarize(ctx, plan.Request, results)
	if err != nil {
		return m.abort(plan, classifyPortError(err, models.PhaseSummarizing, -1))
	}

	plan.Report = report
	m.finish(plan, models.RunStateCompleted)
	m.emit(Event{Type: EventCompleted, Plan: plan})
	log.Info("run completed", zap.Int("steps", len(plan.Steps)))
	return nil
}

// runStep drives one step to Passed or returns the failure that aborts
// the run. The loop below is the validate/debug sub-protocol: generate
// once, then dispatch/validate/repair until success or exhaustion.
func (m *Manager) runStep(ctx context.Context, plan *models.Plan, step *models.Step) *models.Failure {
	log := m.logger.With(zap.String("request_id", plan.ID), zap.Int("step", step.Index))

	step.Status = models.StepStatusAwaitingCode
	m.emit(Event{Type: EventStepStart, Plan: plan, Step: step})

	artifact, err := m.caps.Coder.GenerateCode(ctx, step, plan.StepHistory(step.Index))
	if err != nil {
		return classifyPortError(err, models.PhaseCoding, step.Index)
	}
	step.CurrentArtifact = artifact
	m.emit(Event{Type: EventStepCode, Plan: plan, Step: step, Artifact: artifact})

	for {
		if err := ctx.Err(); err != nil {
			return cancelledFailure(models.PhaseExecuting, step.Index)
		}

		// The dispatcher is the sole execution surface: the artifact
		// leaves the process here and is never run locally.
		step.Status = models.StepStatusAwaitingExecution
		outcome, err := m.dispatcher.Dispatch(ctx, step, step.CurrentArtifact)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return cancelledFailure(models.PhaseExecuting, step.Index)
			}
			return &models.Failure{
				Kind:      models.FailureCapability,
				Phase:     models.PhaseExecuting,
				StepIndex: step.Index,
				Message:   fmt.Sprintf("dispatch failed: %v", err),
			}
		}

		step.Status = models.StepStatusValidating
		step.LastOutcome = outcome

		if outcome.Success() && m.cfg.SemanticValidation && m.caps.Validator != nil {
			valid, reason, err := m.caps.Validator.Validate(ctx, step, outcome)
			if err != nil {
				return classifyPortError(err, models.PhaseExecuting, step.Index)
			}
			if !valid {
				// Demote the reported success; the gate stays
				// authoritative for everything else.
				outcome = &models.Outcome{
					Status:     models.OutcomeFailure,
					Output:     outcome.Output,
					Diagnostic: reason,
				}
				step.LastOutcome = outcome
			}
		}

		if outcome.Success() {
			step.Status = models.StepStatusPassed
			m.emit(Event{Type: EventStepPassed, Plan: plan, Step: step, Outcome: outcome})
			log.Info("step passed", zap.Int("attempts", step.AttemptCount))
			return nil
		}

		// Failure or timeout: record the attempt, then repair or give up.
		plan.AppendHistory(models.Attempt{
			StepIndex:     step.Index,
			AttemptNumber: step.AttemptCount,
			Artifact:      *step.CurrentArtifact,
			Outcome:       *outcome,
			RecordedAt:    time.Now(),
		})
		step.AttemptCount++
		m.emit(Event{Type: EventStepFailed, Plan: plan, Step: step, Outcome: outcome})
		log.Info("step failed",
			zap.String("outcome", string(outcome.Status)),
			zap.Int("attempt", step.AttemptCount),
			zap.Int("max_attempts", m.cfg.MaxAttempts))

		if step.AttemptCount >= m.cfg.MaxAttempts {
			step.Status = models.StepStatusFailed
			m.emit(Event{Type: EventStepExhausted, Plan: plan, Step: step})
			return &models.Failure{
				Kind:      models.FailureAttemptsExhausted,
				Phase:     models.PhaseDebugging,
				StepIndex: step.Index,
				Message:   fmt.Sprintf("step failed after %d attempts", step.AttemptCount),
			}
		}

		// Debugging is never skipped while attempts remain.
		step.Status = models.StepStatusDebugging
		plan.RunState = models.RunStateDebugging
		m.emit(Event{Type: EventDebugStart, Plan: plan, Step: step, Attempt: step.AttemptCount})

		fixed, err := m.caps.Debugger.Debug(ctx, step, step.CurrentArtifact, outcome)
		if err != nil {
			return classifyPortError(err, models.PhaseDebugging, step.Index)
		}
		step.CurrentArtifact = fixed
		plan.RunState = models.RunStateExecuting
		m.emit(Event{Type: EventDebugCode, Plan: plan, Step: step, Artifact: fixed})
		// The repaired artifact is execution-ready: loop back to
		// dispatch without a fresh GenerateCode call.
	}
}

// abort moves the plan to Aborted with the given failure and returns it.
func (m *Manager) abort(plan *models.Plan, failure *models.Failure) error {
	plan.Failure = failure
	m.finish(plan, models.RunStateAborted)
	m.emit(Event{Type: EventAborted, Plan: plan, Failure: failure})
	m.logger.Info("run aborted",
		zap.String("request_id", plan.ID),
		zap.String("kind", string(failure.Kind)),
		zap.Int("step", failure.StepIndex))
	return failure
}

func (m *Manager) finish(plan *models.Plan, state models.RunState) {
	plan.RunState = state
	now := time.Now()
	plan.CompletedAt = &now
}

func (m *Manager) emit(e Event) {
	if m.onEvent != nil {
		m.onEvent(e)
	}
}

// classifyPortError maps a capability port error to a tagged failure.
func classifyPortError(err error, phase models.Phase, stepIndex int) *models.Failure {
	var planErr *capability.PlanningError
	switch {
	case errors.As(err, &planErr):
		return &models.Failure{
			Kind:      models.FailurePlanning,
			Phase:     phase,
			StepIndex: stepIndex,
			Message:   planErr.Reason,
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return cancelledFailure(phase, stepIndex)
	default:
		return &models.Failure{
			Kind:      models.FailureCapability,
			Phase:     phase,
			StepIndex: stepIndex,
			Message:   err.Error(),
		}
	}
}

func cancelledFailure(phase models.Phase, stepIndex int) *models.Failure {
	return &models.Failure{
		Kind:      models.FailureCancelled,
		Phase:     phase,
		StepIndex: stepIndex,
		Message:   "run cancelled",
	}
}
