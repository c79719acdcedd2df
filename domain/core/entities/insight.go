package entities

import (
	"strings"
	"time"

	"decivue/domain/core/valueobjects"
	pkgerrors "decivue/pkg/errors"
)

// Insight is an externally generated recommendation. This service only
// stores, lists and dismisses insights.
type Insight struct {
	id          valueobjects.InsightID
	userID      string
	decisionID  *valueobjects.DecisionID
	insightType string
	severity    valueobjects.Severity
	title       string
	message     string
	isDismissed bool
	createdAt   time.Time
	dismissedAt *time.Time
}

// InsightParams carries the fields of an insight produced elsewhere.
type InsightParams struct {
	ID          string
	UserID      string
	DecisionID  string
	InsightType string
	Severity    string
	Title       string
	Message     string
	IsDismissed bool
	CreatedAt   time.Time
	DismissedAt *time.Time
}

// ReconstructInsight validates p and rebuilds the insight. An empty ID
// allocates a new one.
func ReconstructInsight(p InsightParams) (*Insight, error) {
	var id valueobjects.InsightID
	if p.ID == "" {
		id = valueobjects.NewInsightID()
	} else {
		parsed, err := valueobjects.ParseInsightID(p.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}
	if p.UserID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}
	sev, err := valueobjects.ParseSeverity(p.Severity)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.InsightType) == "" {
		return nil, pkgerrors.NewValidationError("insight type is required")
	}

	ins := &Insight{
		id:          id,
		userID:      p.UserID,
		insightType: p.InsightType,
		severity:    sev,
		title:       p.Title,
		message:     p.Message,
		isDismissed: p.IsDismissed,
		createdAt:   p.CreatedAt,
		dismissedAt: p.DismissedAt,
	}
	if p.DecisionID != "" {
		did, err := valueobjects.ParseDecisionID(p.DecisionID)
		if err != nil {
			return nil, err
		}
		ins.decisionID = &did
	}
	return ins, nil
}

func (i *Insight) ID() valueobjects.InsightID           { return i.id }
func (i *Insight) UserID() string                       { return i.userID }
func (i *Insight) DecisionID() *valueobjects.DecisionID { return i.decisionID }
func (i *Insight) InsightType() string                  { return i.insightType }
func (i *Insight) Severity() valueobjects.Severity      { return i.severity }
func (i *Insight) Title() string                        { return i.title }
func (i *Insight) Message() string                      { return i.message }
func (i *Insight) IsDismissed() bool                    { return i.isDismissed }
func (i *Insight) CreatedAt() time.Time                 { return i.createdAt }
func (i *Insight) DismissedAt() *time.Time              { return i.dismissedAt }

// BelongsTo reports whether the insight is attached to the decision.
func (i *Insight) BelongsTo(id valueobjects.DecisionID) bool {
	return i.decisionID != nil && i.decisionID.Equals(id)
}

// Dismiss hides the insight. Dismissing twice is a no-op returning false.
func (i *Insight) Dismiss(now time.Time) bool {
	if i.isDismissed {
		return false
	}
	i.isDismissed = true
	i.dismissedAt = &now
	return true
}

// Params flattens the insight for persistence.
func (i *Insight) Params() InsightParams {
	p := InsightParams{
		ID:          i.id.String(),
		UserID:      i.userID,
		InsightType: i.insightType,
		Severity:    string(i.severity),
		Title:       i.title,
		Message:     i.message,
		IsDismissed: i.isDismissed,
		CreatedAt:   i.createdAt,
		DismissedAt: i.dismissedAt,
	}
	if i.decisionID != nil {
		p.DecisionID = i.decisionID.String()
	}
	return p
}
