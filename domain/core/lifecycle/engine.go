// Package lifecycle implements the decision status state machine.
//
// Everything here is a pure function of its inputs. The caller supplies
// "now"; nothing reads a clock, performs I/O or keeps state between calls.
package lifecycle

import (
	"time"

	"decivue/domain/config"
	"decivue/domain/core/valueobjects"
	pkgerrors "decivue/pkg/errors"
)

// Thresholds configure passive decay.
type Thresholds struct {
	Risk          time.Duration
	Stale         time.Duration
	LowConfidence int
}

// ThresholdsFrom extracts the decay thresholds from a domain config.
func ThresholdsFrom(cfg *config.DomainConfig) Thresholds {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return Thresholds{
		Risk:          cfg.RiskThreshold,
		Stale:         cfg.StaleThreshold,
		LowConfidence: cfg.LowConfidenceThreshold,
	}
}

// Validate requires 0 < Risk < Stale and LowConfidence within [0,100].
func (t Thresholds) Validate() error {
	if t.Risk <= 0 || t.Stale <= t.Risk {
		return pkgerrors.NewValidationErrorf("invalid decay thresholds: risk=%s stale=%s", t.Risk, t.Stale)
	}
	if t.LowConfidence < valueobjects.MinConfidence || t.LowConfidence > valueobjects.MaxConfidence {
		return pkgerrors.NewValidationErrorf("invalid low confidence threshold %d", t.LowConfidence)
	}
	return nil
}

// State is the slice of a decision the state machine operates on.
type State struct {
	Status         valueobjects.Status
	Confidence     valueobjects.Confidence
	LastReviewedAt time.Time
}

// Action is an explicit review request.
type Action struct {
	Kind       valueobjects.ReviewAction
	Confidence *valueobjects.Confidence
	Notes      string
}

// Transition describes one applied change. It maps one to one onto an
// audit log entry.
type Transition struct {
	Kind               valueobjects.EventKind
	PreviousStatus     valueobjects.Status
	NewStatus          valueobjects.Status
	PreviousConfidence valueobjects.Confidence
	NewConfidence      valueobjects.Confidence
	ConfidenceChange   int
	Notes              string
	At                 time.Time
}

// Engine evaluates decay and review actions.
type Engine struct {
	thresholds Thresholds
}

// NewEngine validates the thresholds and returns an engine.
func NewEngine(t Thresholds) (*Engine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Engine{thresholds: t}, nil
}

// DefaultEngine uses the default domain thresholds.
func DefaultEngine() *Engine {
	return &Engine{thresholds: ThresholdsFrom(config.DefaultDomainConfig())}
}

func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Initial returns the state of a newly created decision and its created
// transition.
func (e *Engine) Initial(confidence valueobjects.Confidence, now time.Time) (State, Transition) {
	s := State{
		Status:         valueobjects.StatusFresh,
		Confidence:     confidence,
		LastReviewedAt: now,
	}
	return s, Transition{
		Kind:               valueobjects.EventCreated,
		NewStatus:          valueobjects.StatusFresh,
		PreviousConfidence: confidence,
		NewConfidence:      confidence,
		At:                 now,
	}
}

// Project applies passive decay to s as of now. It never moves a status
// backwards and never touches invalidated decisions. Calling it again with
// the same inputs yields the same state.
func (e *Engine) Project(s State, now time.Time) State {
	switch s.Status {
	case valueobjects.StatusFresh, valueobjects.StatusStable, valueobjects.StatusAtRisk:
	default:
		return s
	}

	age := now.Sub(s.LastReviewedAt)
	if age < 0 {
		age = 0
	}

	next := s.Status
	switch {
	case age > e.thresholds.Stale:
		next = valueobjects.StatusStale
	case age > e.thresholds.Risk && e.thresholds.LowConfidence > 0 && s.Confidence.Int() < e.thresholds.LowConfidence:
		next = valueobjects.StatusStale
	case age > e.thresholds.Risk && s.Status.IsHealthy():
		next = valueobjects.StatusAtRisk
	}

	if !s.Status.DecaysTo(next) {
		return s
	}
	s.Status = next
	return s
}

// Apply evaluates a review action against the projected state.
//
// A nil transition with a nil error means the action was a no-op
// (invalidating an invalidated decision). The returned state is then the
// unchanged input.
func (e *Engine) Apply(s State, a Action, now time.Time) (State, *Transition, error) {
	if a.Kind == "" {
		return s, nil, pkgerrors.NewValidationError("review action is required").
			WithCode(pkgerrors.CodeMissingAction)
	}
	if _, err := valueobjects.ParseReviewAction(string(a.Kind)); err != nil {
		return s, nil, err
	}

	if s.Status.IsTerminal() {
		if a.Kind == valueobjects.ActionInvalidate {
			return s, nil, nil
		}
		return s, nil, pkgerrors.NewInvalidTransitionError(string(a.Kind), string(s.Status))
	}

	if a.Kind.RequiresConfidence() && a.Confidence == nil {
		return s, nil, pkgerrors.NewValidationErrorf("confidence is required to %s a decision", a.Kind).
			WithCode(pkgerrors.CodeInvalidConfidence)
	}
	if a.Confidence != nil {
		if _, err := valueobjects.NewConfidence(a.Confidence.Int()); err != nil {
			return s, nil, err
		}
	}

	current := e.Project(s, now)
	next := current
	if now.After(current.LastReviewedAt) {
		next.LastReviewedAt = now
	}

	switch a.Kind {
	case valueobjects.ActionReaffirm:
		next.Confidence = *a.Confidence
		if current.Status.NeedsReview() {
			next.Status = valueobjects.StatusStable
		}
	case valueobjects.ActionRevise:
		next.Confidence = *a.Confidence
		next.Status = valueobjects.StatusFresh
	case valueobjects.ActionInvalidate:
		next.Confidence = 0
		next.Status = valueobjects.StatusInvalidated
	}

	return next, &Transition{
		Kind:               valueobjects.EventKindFor(a.Kind),
		PreviousStatus:     current.Status,
		NewStatus:          next.Status,
		PreviousConfidence: current.Confidence,
		NewConfidence:      next.Confidence,
		ConfidenceChange:   next.Confidence.Delta(current.Confidence),
		Notes:              a.Notes,
		At:                 now,
	}, nil
}
