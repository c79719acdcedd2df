package queries

import (
	"decivue/domain/core/entities"
	"decivue/domain/events"
	"decivue/pkg/utils"
)

// DecisionView is the client representation of a decision. Status is the
// projected status at read time.
type DecisionView struct {
	ID                string  `json:"id"`
	UserID            string  `json:"user_id"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	Context           string  `json:"context"`
	Reasoning         string  `json:"reasoning"`
	DecisionType      string  `json:"decision_type"`
	Category          string  `json:"category"`
	InitialConfidence int     `json:"initial_confidence"`
	CurrentConfidence int     `json:"current_confidence"`
	PerceivedRisk     string  `json:"perceived_risk"`
	PerceivedImpact   string  `json:"perceived_impact"`
	Status            string  `json:"status"`
	Deadline          *string `json:"deadline"`
	LastReviewedAt    string  `json:"last_reviewed_at"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
	Version           int     `json:"version"`
}

func NewDecisionView(d *entities.Decision) DecisionView {
	c := d.Content()
	return DecisionView{
		ID:                d.ID().String(),
		UserID:            d.UserID(),
		Title:             c.Title(),
		Description:       c.Description(),
		Context:           c.Context(),
		Reasoning:         c.Reasoning(),
		DecisionType:      c.DecisionType(),
		Category:          string(d.Category()),
		InitialConfidence: d.InitialConfidence().Int(),
		CurrentConfidence: d.CurrentConfidence().Int(),
		PerceivedRisk:     string(d.PerceivedRisk()),
		PerceivedImpact:   string(d.PerceivedImpact()),
		Status:            string(d.Status()),
		Deadline:          utils.FormatOptional(d.Deadline()),
		LastReviewedAt:    utils.FormatRFC3339(d.LastReviewedAt()),
		CreatedAt:         utils.FormatRFC3339(d.CreatedAt()),
		UpdatedAt:         utils.FormatRFC3339(d.UpdatedAt()),
		Version:           d.Version(),
	}
}

type AssumptionView struct {
	ID             string  `json:"id"`
	DecisionID     string  `json:"decision_id"`
	Content        string  `json:"content"`
	IsValidated    bool    `json:"is_validated"`
	ValidationDate *string `json:"validation_date"`
	CreatedAt      string  `json:"created_at"`
}

func NewAssumptionView(a *entities.Assumption) AssumptionView {
	return AssumptionView{
		ID:             a.ID().String(),
		DecisionID:     a.DecisionID().String(),
		Content:        a.Content(),
		IsValidated:    a.IsValidated(),
		ValidationDate: utils.FormatOptional(a.ValidationDate()),
		CreatedAt:      utils.FormatRFC3339(a.CreatedAt()),
	}
}

// EventView is one audit log entry.
type EventView struct {
	ID               string                 `json:"id"`
	DecisionID       string                 `json:"decision_id"`
	EventType        string                 `json:"event_type"`
	Description      string                 `json:"description"`
	ConfidenceChange int                    `json:"confidence_change"`
	PreviousStatus   *string                `json:"previous_status"`
	NewStatus        string                 `json:"new_status"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        string                 `json:"created_at"`
}

func NewEventView(e events.DecisionEvent) EventView {
	v := EventView{
		ID:               e.ID,
		DecisionID:       e.DecisionID,
		EventType:        string(e.Kind),
		Description:      e.Description,
		ConfidenceChange: e.ConfidenceChange,
		NewStatus:        string(e.NewStatus),
		Metadata:         e.Metadata,
		CreatedAt:        utils.FormatRFC3339(e.CreatedAt),
	}
	if e.PreviousStatus != nil {
		s := string(*e.PreviousStatus)
		v.PreviousStatus = &s
	}
	return v
}

func NewEventViews(entries []events.DecisionEvent) []EventView {
	out := make([]EventView, len(entries))
	for i, e := range entries {
		out[i] = NewEventView(e)
	}
	return out
}

type InsightView struct {
	ID          string  `json:"id"`
	DecisionID  *string `json:"decision_id"`
	InsightType string  `json:"insight_type"`
	Severity    string  `json:"severity"`
	Title       string  `json:"title"`
	Message     string  `json:"message"`
	IsDismissed bool    `json:"is_dismissed"`
	CreatedAt   string  `json:"created_at"`
}

func NewInsightView(i *entities.Insight) InsightView {
	v := InsightView{
		ID:          i.ID().String(),
		InsightType: i.InsightType(),
		Severity:    string(i.Severity()),
		Title:       i.Title(),
		Message:     i.Message(),
		IsDismissed: i.IsDismissed(),
		CreatedAt:   utils.FormatRFC3339(i.CreatedAt()),
	}
	if id := i.DecisionID(); id != nil {
		s := id.String()
		v.DecisionID = &s
	}
	return v
}

func NewInsightViews(list []*entities.Insight) []InsightView {
	out := make([]InsightView, len(list))
	for i, ins := range list {
		out[i] = NewInsightView(ins)
	}
	return out
}
