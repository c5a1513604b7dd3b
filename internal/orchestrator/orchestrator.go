// Package orchestrator exposes the single-call facade over the
// orchestration state machine. Each session owns one Facade; a
// process-wide Limiter caps how many plans run concurrently across
// sessions.
package orchestrator

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/jfelder/stepwise/internal/manager"
	"github.com/jfelder/stepwise/pkg/models"
)

// ErrBusy is returned when a request arrives while the session's
// current plan is still running. One plan per session at a time.
var ErrBusy = errors.New("a request is already running on this session")

// Limiter bounds the number of plans running at once across the whole
// process. Acquire blocks until a slot frees or the context ends.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter creates a limiter with n slots. Values below 1 mean 1.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) Release() {
	<-l.slots
}

// Facade is the session-scoped entry point: one natural-language
// request in, one fully driven plan out.
type Facade struct {
	mgr     *manager.Manager
	limiter *Limiter
	logger  *zap.Logger

	mu      sync.Mutex
	busy    bool
	current *models.Plan
}

// New creates a facade around a manager. limiter may be shared across
// facades; logger may be nil.
func New(mgr *manager.Manager, limiter *Limiter, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{mgr: mgr, limiter: limiter, logger: logger}
}

// ExecuteRequest drives a request end to end and returns the terminal
// plan. The plan is returned on abort as well, alongside the failure,
// so callers can inspect the recorded history. A second call while a
// run is in progress returns ErrBusy without touching the current plan.
func (f *Facade) ExecuteRequest(ctx context.Context, request string) (*models.Plan, error) {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	f.busy = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.busy = false
		f.mu.Unlock()
	}()

	if err := f.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer f.limiter.Release()

	plan := models.NewPlan(request)
	f.mu.Lock()
	f.current = plan
	f.mu.Unlock()

	f.logger.Info("request accepted",
		zap.String("request_id", plan.ID),
		zap.Int("request_len", len(request)))

	err := f.mgr.Run(ctx, plan)
	return plan, err
}

// Busy reports whether a plan is currently running on this session.
func (f *Facade) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

// Current returns the most recent plan accepted on this session, or
// nil before the first request.
func (f *Facade) Current() *models.Plan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}
