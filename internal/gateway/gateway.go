// Package gateway defines the execution boundary: artifacts are handed
// to an external executor (a human or agent on the other end of a
// session connection) and the structured outcome is awaited. Nothing in
// this process ever runs an artifact.
package gateway

import (
	"context"
	"errors"

	"github.com/jfelder/stepwise/pkg/models"
)

// ErrDispatchInFlight is returned when a second dispatch is issued
// before the first resolves. The orchestration core guarantees at most
// one outstanding dispatch per plan; hitting this is a programming error.
var ErrDispatchInFlight = errors.New("dispatch already in flight")

// ErrCorrelation is returned when a result arrives for a different step
// than the one dispatched. Out-of-order correlation is an error
// condition, never silently ignored.
var ErrCorrelation = errors.New("execution result correlation mismatch")

// Dispatcher delivers an artifact for external execution and blocks
// until an outcome is reported back or the dispatch timeout elapses.
// A timeout is reported as a models.OutcomeTimeout outcome, not an
// error; errors are reserved for transport failure and cancellation.
type Dispatcher interface {
	Dispatch(ctx context.Context, step *models.Step, artifact *models.Artifact) (*models.Outcome, error)
}
