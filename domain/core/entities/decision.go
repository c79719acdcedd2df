package entities

import (
	"time"

	"decivue/domain/config"
	"decivue/domain/core/lifecycle"
	"decivue/domain/core/valueobjects"
	"decivue/domain/events"
	pkgerrors "decivue/pkg/errors"
)

// Decision is the aggregate root of the lifecycle model. Its status and
// confidence change only through the lifecycle engine.
type Decision struct {
	id                valueobjects.DecisionID
	userID            string
	content           valueobjects.DecisionContent
	category          valueobjects.Category
	initialConfidence valueobjects.Confidence
	currentConfidence valueobjects.Confidence
	perceivedRisk     valueobjects.Level
	perceivedImpact   valueobjects.Level
	status            valueobjects.Status
	deadline          *time.Time
	lastReviewedAt    time.Time
	createdAt         time.Time
	updatedAt         time.Time

	// version is bumped on every applied transition. originalVersion is the
	// version the aggregate was loaded at and is what repositories compare
	// against when committing.
	version         int
	originalVersion int

	events []events.DomainEvent
}

// NewDecisionParams carries the user supplied fields of a new decision.
type NewDecisionParams struct {
	ID              string
	UserID          string
	Title           string
	Description     string
	Context         string
	Reasoning       string
	DecisionType    string
	Category        string
	Confidence      int
	PerceivedRisk   string
	PerceivedImpact string
	Deadline        *time.Time
}

// NewDecision validates params and creates a fresh decision with its
// created event. An empty ID allocates a new one.
func NewDecision(p NewDecisionParams, engine *lifecycle.Engine, cfg *config.DomainConfig, now time.Time) (*Decision, error) {
	if p.UserID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}
	id := valueobjects.NewDecisionID()
	if p.ID != "" {
		parsed, err := valueobjects.ParseDecisionID(p.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}

	content, err := valueobjects.NewDecisionContentWithConfig(p.Title, p.Description, p.Context, p.Reasoning, p.DecisionType, cfg)
	if err != nil {
		return nil, err
	}
	category, err := valueobjects.ParseCategory(p.Category)
	if err != nil {
		return nil, err
	}
	confidence, err := valueobjects.NewConfidence(p.Confidence)
	if err != nil {
		return nil, err
	}
	risk, err := valueobjects.ParseLevel("perceived_risk", p.PerceivedRisk)
	if err != nil {
		return nil, err
	}
	impact, err := valueobjects.ParseLevel("perceived_impact", p.PerceivedImpact)
	if err != nil {
		return nil, err
	}

	state, tr := engine.Initial(confidence, now)

	d := &Decision{
		id:                id,
		userID:            p.UserID,
		content:           content,
		category:          category,
		initialConfidence: confidence,
		currentConfidence: state.Confidence,
		perceivedRisk:     risk,
		perceivedImpact:   impact,
		status:            state.Status,
		deadline:          p.Deadline,
		lastReviewedAt:    state.LastReviewedAt,
		createdAt:         now,
		updatedAt:         now,
		version:           1,
		originalVersion:   0,
	}
	d.record(tr, "")
	return d, nil
}

// DecisionSnapshot is the flat persisted form of a decision.
type DecisionSnapshot struct {
	ID                string
	UserID            string
	Title             string
	Description       string
	Context           string
	Reasoning         string
	DecisionType      string
	Category          string
	InitialConfidence int
	CurrentConfidence int
	PerceivedRisk     string
	PerceivedImpact   string
	Status            string
	Deadline          *time.Time
	LastReviewedAt    time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int
}

// ReconstructDecision rebuilds a decision from storage. Enumerations are
// re-validated so corrupt rows surface as errors rather than bad state.
func ReconstructDecision(s DecisionSnapshot) (*Decision, error) {
	id, err := valueobjects.ParseDecisionID(s.ID)
	if err != nil {
		return nil, err
	}
	if s.UserID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}
	category, err := valueobjects.ParseCategory(s.Category)
	if err != nil {
		return nil, err
	}
	initial, err := valueobjects.NewConfidence(s.InitialConfidence)
	if err != nil {
		return nil, err
	}
	current, err := valueobjects.NewConfidence(s.CurrentConfidence)
	if err != nil {
		return nil, err
	}
	risk, err := valueobjects.ParseLevel("perceived_risk", s.PerceivedRisk)
	if err != nil {
		return nil, err
	}
	impact, err := valueobjects.ParseLevel("perceived_impact", s.PerceivedImpact)
	if err != nil {
		return nil, err
	}
	status, err := valueobjects.ParseStatus(s.Status)
	if err != nil {
		return nil, err
	}
	version := s.Version
	if version < 1 {
		version = 1
	}

	return &Decision{
		id:                id,
		userID:            s.UserID,
		content:           valueobjects.RestoreDecisionContent(s.Title, s.Description, s.Context, s.Reasoning, s.DecisionType),
		category:          category,
		initialConfidence: initial,
		currentConfidence: current,
		perceivedRisk:     risk,
		perceivedImpact:   impact,
		status:            status,
		deadline:          s.Deadline,
		lastReviewedAt:    s.LastReviewedAt,
		createdAt:         s.CreatedAt,
		updatedAt:         s.UpdatedAt,
		version:           version,
		originalVersion:   version,
	}, nil
}

// RestoreDecision rebuilds the state captured in s on top of a stored
// version, so a version-checked save puts s back in place of a write that
// has to be undone. The restored decision is one version ahead of stored.
func RestoreDecision(s DecisionSnapshot, stored int) (*Decision, error) {
	d, err := ReconstructDecision(s)
	if err != nil {
		return nil, err
	}
	d.originalVersion = stored
	d.version = stored + 1
	return d, nil
}

// Snapshot flattens the decision for persistence.
func (d *Decision) Snapshot() DecisionSnapshot {
	return DecisionSnapshot{
		ID:                d.id.String(),
		UserID:            d.userID,
		Title:             d.content.Title(),
		Description:       d.content.Description(),
		Context:           d.content.Context(),
		Reasoning:         d.content.Reasoning(),
		DecisionType:      d.content.DecisionType(),
		Category:          string(d.category),
		InitialConfidence: d.initialConfidence.Int(),
		CurrentConfidence: d.currentConfidence.Int(),
		PerceivedRisk:     string(d.perceivedRisk),
		PerceivedImpact:   string(d.perceivedImpact),
		Status:            string(d.status),
		Deadline:          d.deadline,
		LastReviewedAt:    d.lastReviewedAt,
		CreatedAt:         d.createdAt,
		UpdatedAt:         d.updatedAt,
		Version:           d.version,
	}
}

func (d *Decision) ID() valueobjects.DecisionID                { return d.id }
func (d *Decision) UserID() string                             { return d.userID }
func (d *Decision) Content() valueobjects.DecisionContent      { return d.content }
func (d *Decision) Category() valueobjects.Category            { return d.category }
func (d *Decision) InitialConfidence() valueobjects.Confidence { return d.initialConfidence }
func (d *Decision) CurrentConfidence() valueobjects.Confidence { return d.currentConfidence }
func (d *Decision) PerceivedRisk() valueobjects.Level          { return d.perceivedRisk }
func (d *Decision) PerceivedImpact() valueobjects.Level        { return d.perceivedImpact }
func (d *Decision) Status() valueobjects.Status                { return d.status }
func (d *Decision) Deadline() *time.Time                       { return d.deadline }
func (d *Decision) LastReviewedAt() time.Time                  { return d.lastReviewedAt }
func (d *Decision) CreatedAt() time.Time                       { return d.createdAt }
func (d *Decision) UpdatedAt() time.Time                       { return d.updatedAt }
func (d *Decision) Version() int                               { return d.version }
func (d *Decision) OriginalVersion() int                       { return d.originalVersion }
func (d *Decision) IsNew() bool                                { return d.originalVersion == 0 }
func (d *Decision) IsOwnedBy(userID string) bool               { return d.userID == userID }

// State returns the lifecycle view of the decision.
func (d *Decision) State() lifecycle.State {
	return lifecycle.State{
		Status:         d.status,
		Confidence:     d.currentConfidence,
		LastReviewedAt: d.lastReviewedAt,
	}
}

// Projected returns a copy whose status reflects passive decay as of now.
// The receiver is not modified and no event is recorded.
func (d *Decision) Projected(engine *lifecycle.Engine, now time.Time) *Decision {
	cp := *d
	cp.events = nil
	cp.status = engine.Project(d.State(), now).Status
	return &cp
}

// Review applies a review action. It returns false when the action was a
// no-op, in which case nothing changed and there is nothing to persist.
func (d *Decision) Review(engine *lifecycle.Engine, action lifecycle.Action, now time.Time) (bool, error) {
	next, tr, err := engine.Apply(d.State(), action, now)
	if err != nil {
		return false, err
	}
	if tr == nil {
		return false, nil
	}

	d.status = next.Status
	d.currentConfidence = next.Confidence
	d.lastReviewedAt = next.LastReviewedAt
	d.updatedAt = now
	d.version++
	d.record(*tr, action.Notes)
	return true, nil
}

func (d *Decision) record(tr lifecycle.Transition, notes string) {
	var previous *valueobjects.Status
	if tr.Kind != valueobjects.EventCreated {
		p := tr.PreviousStatus
		previous = &p
	}
	ev := events.NewDecisionEvent(d.id, d.userID, tr.Kind, notes, tr.ConfidenceChange, previous, tr.NewStatus, d.version, tr.At)
	ev.Metadata = map[string]interface{}{
		"previous_confidence": tr.PreviousConfidence.Int(),
		"new_confidence":      tr.NewConfidence.Int(),
	}
	d.events = append(d.events, ev)
}

// GetUncommittedEvents returns events recorded since the last commit.
func (d *Decision) GetUncommittedEvents() []events.DomainEvent {
	return d.events
}

// MarkEventsAsCommitted clears recorded events and rebases the optimistic
// lock on the current version.
func (d *Decision) MarkEventsAsCommitted() {
	d.events = []events.DomainEvent{}
	d.originalVersion = d.version
}

// DecisionEvents returns the recorded audit entries.
func (d *Decision) DecisionEvents() []events.DecisionEvent {
	out := make([]events.DecisionEvent, 0, len(d.events))
	for _, e := range d.events {
		if de, ok := e.(events.DecisionEvent); ok {
			out = append(out, de)
		}
	}
	return out
}
