// Package sagas runs multi-store writes as ordered steps that are undone
// in reverse when a later step fails.
package sagas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Step is one unit of a saga. Compensate may be nil for steps with nothing
// to undo.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error

	// Attempts is how often Execute runs before the step fails. Only set it
	// above one for idempotent writes.
	Attempts   int
	RetryDelay time.Duration
}

// State of a saga run.
type State string

const (
	StatePending      State = "PENDING"
	StateRunning      State = "RUNNING"
	StateCompleted    State = "COMPLETED"
	StateCompensating State = "COMPENSATING"
	StateCompensated  State = "COMPENSATED"
	StateFailed       State = "FAILED"
)

// Saga orchestrates its steps in order.
type Saga struct {
	id     string
	name   string
	steps  []Step
	state  State
	logger *zap.Logger
}

func New(name string, logger *zap.Logger) *Saga {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saga{
		id:     uuid.NewString(),
		name:   name,
		state:  StatePending,
		logger: logger.With(zap.String("saga", name)),
	}
}

// AddStep appends a step.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

func (s *Saga) ID() string   { return s.id }
func (s *Saga) Name() string { return s.name }
func (s *Saga) State() State { return s.state }

// Run executes every step. When one fails the completed steps are
// compensated newest first and the step's error is returned wrapped, so
// callers can still inspect it with errors.As.
func (s *Saga) Run(ctx context.Context) error {
	s.state = StateRunning
	s.logger.Debug("Saga started", zap.String("sagaID", s.id), zap.Int("steps", len(s.steps)))

	for i, step := range s.steps {
		if err := s.execute(ctx, step); err != nil {
			s.logger.Warn("Saga step failed",
				zap.String("sagaID", s.id),
				zap.String("step", step.Name),
				zap.Error(err),
			)
			if cerr := s.compensate(ctx, s.steps[:i]); cerr != nil {
				s.state = StateFailed
				return fmt.Errorf("saga %s: step %s: %w (compensation: %v)", s.name, step.Name, err, cerr)
			}
			s.state = StateCompensated
			return fmt.Errorf("saga %s: step %s: %w", s.name, step.Name, err)
		}
	}

	s.state = StateCompleted
	return nil
}

func (s *Saga) execute(ctx context.Context, step Step) error {
	attempts := step.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := step.RetryDelay
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(delay):
			}
		}
		if err = step.Execute(ctx); err == nil {
			return nil
		}
	}
	return err
}

// compensate undoes done in reverse order. It keeps going past failures
// and reports all of them.
func (s *Saga) compensate(ctx context.Context, done []Step) error {
	s.state = StateCompensating
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			s.logger.Error("Compensation failed",
				zap.String("sagaID", s.id),
				zap.String("step", step.Name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}
