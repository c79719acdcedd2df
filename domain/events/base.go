package events

import (
	"time"

	"decivue/domain/core/valueobjects"
)

// DomainEvent is something that happened to an aggregate.
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Bus event type names.
const (
	TypeDecisionCreated     = "decision.created"
	TypeDecisionReaffirmed  = "decision.reaffirmed"
	TypeDecisionRevised     = "decision.revised"
	TypeDecisionInvalidated = "decision.invalidated"
	TypeDecisionDeleted     = "decision.deleted"
	TypeAssumptionValidated = "assumption.validated"
	TypeInsightDismissed    = "insight.dismissed"
)

// DecisionEvent is an entry of a decision's append-only audit log. The
// same value is published on the event bus.
type DecisionEvent struct {
	BaseEvent
	ID               string                 `json:"id"`
	DecisionID       string                 `json:"decision_id"`
	UserID           string                 `json:"user_id"`
	Kind             valueobjects.EventKind `json:"kind"`
	Description      string                 `json:"description"`
	ConfidenceChange int                    `json:"confidence_change"`
	PreviousStatus   *valueobjects.Status   `json:"previous_status,omitempty"`
	NewStatus        valueobjects.Status    `json:"new_status"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

// NewDecisionEvent builds a log entry. previous is nil for the created
// event.
func NewDecisionEvent(
	decisionID valueobjects.DecisionID,
	userID string,
	kind valueobjects.EventKind,
	description string,
	confidenceChange int,
	previous *valueobjects.Status,
	next valueobjects.Status,
	version int,
	at time.Time,
) DecisionEvent {
	if description == "" {
		description = DefaultDescription(kind)
	}
	return DecisionEvent{
		BaseEvent: BaseEvent{
			AggregateID: decisionID.String(),
			EventType:   "decision." + string(kind),
			Timestamp:   at,
			Version:     version,
		},
		ID:               valueobjects.NewEventID(),
		DecisionID:       decisionID.String(),
		UserID:           userID,
		Kind:             kind,
		Description:      description,
		ConfidenceChange: confidenceChange,
		PreviousStatus:   previous,
		NewStatus:        next,
		CreatedAt:        at,
	}
}

// DefaultDescription is used when a review carries no notes.
func DefaultDescription(kind valueobjects.EventKind) string {
	return "Decision was " + string(kind)
}

// IsStatusChange reports whether the entry moved the decision to a
// different status.
func (e DecisionEvent) IsStatusChange() bool {
	return e.PreviousStatus == nil || *e.PreviousStatus != e.NewStatus
}

// DecisionDeleted is published when a decision is removed. Its audit log
// is kept.
type DecisionDeleted struct {
	BaseEvent
	DecisionID string `json:"decision_id"`
	UserID     string `json:"user_id"`
	Title      string `json:"title"`
}

func NewDecisionDeleted(decisionID valueobjects.DecisionID, userID, title string, version int, at time.Time) DecisionDeleted {
	return DecisionDeleted{
		BaseEvent: BaseEvent{
			AggregateID: decisionID.String(),
			EventType:   TypeDecisionDeleted,
			Timestamp:   at,
			Version:     version,
		},
		DecisionID: decisionID.String(),
		UserID:     userID,
		Title:      title,
	}
}

// AssumptionValidated is published when an assumption is confirmed.
type AssumptionValidated struct {
	BaseEvent
	AssumptionID string `json:"assumption_id"`
	DecisionID   string `json:"decision_id"`
	UserID       string `json:"user_id"`
}

func NewAssumptionValidated(assumptionID valueobjects.AssumptionID, decisionID valueobjects.DecisionID, userID string, at time.Time) AssumptionValidated {
	return AssumptionValidated{
		BaseEvent: BaseEvent{
			AggregateID: decisionID.String(),
			EventType:   TypeAssumptionValidated,
			Timestamp:   at,
			Version:     1,
		},
		AssumptionID: assumptionID.String(),
		DecisionID:   decisionID.String(),
		UserID:       userID,
	}
}

// InsightDismissed is published when a user dismisses an insight.
type InsightDismissed struct {
	BaseEvent
	InsightID string `json:"insight_id"`
	UserID    string `json:"user_id"`
}

func NewInsightDismissed(insightID valueobjects.InsightID, userID string, at time.Time) InsightDismissed {
	return InsightDismissed{
		BaseEvent: BaseEvent{
			AggregateID: insightID.String(),
			EventType:   TypeInsightDismissed,
			Timestamp:   at,
			Version:     1,
		},
		InsightID: insightID.String(),
		UserID:    userID,
	}
}
