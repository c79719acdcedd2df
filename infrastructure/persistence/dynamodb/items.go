// Package dynamodb stores decisions, assumptions, insights and the
// decision event log in a single DynamoDB table.
//
// Key layout:
//
//	decision    PK=USER#<user>        SK=DECISION#<id>
//	insight     PK=USER#<user>        SK=INSIGHT#<id>
//	assumption  PK=DECISION#<id>      SK=ASSUMPTION#<id>
//	event       PK=EVENT#<id>         SK=EVENT
//	            GSI1PK=DECISION#<id>  GSI1SK=<created_at>#<id>
//	            GSI2PK=OUTBOX         GSI2SK=<created_at>#<id>  (only while pending)
package dynamodb

import (
	"fmt"
	"time"

	"decivue/domain/core/entities"
)

const (
	entityDecision   = "DECISION"
	entityAssumption = "ASSUMPTION"
	entityInsight    = "INSIGHT"
	entityEvent      = "EVENT"

	outboxPartition = "OUTBOX"
	gsiDecisionLog  = "GSI1"
	gsiOutbox       = "GSI2"
)

func userPK(userID string) string   { return fmt.Sprintf("USER#%s", userID) }
func decisionSK(id string) string   { return fmt.Sprintf("DECISION#%s", id) }
func insightSK(id string) string    { return fmt.Sprintf("INSIGHT#%s", id) }
func decisionPK(id string) string   { return fmt.Sprintf("DECISION#%s", id) }
func assumptionSK(id string) string { return fmt.Sprintf("ASSUMPTION#%s", id) }
func eventPK(id string) string      { return fmt.Sprintf("EVENT#%s", id) }
func eventSortKey(at time.Time, id string) string {
	return fmt.Sprintf("%s#%s", at.UTC().Format(time.RFC3339Nano), id)
}

// decisionItem represents the DynamoDB item structure for a decision
type decisionItem struct {
	PK                string  `dynamodbav:"PK"`
	SK                string  `dynamodbav:"SK"`
	EntityType        string  `dynamodbav:"EntityType"`
	DecisionID        string  `dynamodbav:"DecisionID"`
	UserID            string  `dynamodbav:"UserID"`
	Title             string  `dynamodbav:"Title"`
	Description       string  `dynamodbav:"Description"`
	Context           string  `dynamodbav:"Context"`
	Reasoning         string  `dynamodbav:"Reasoning"`
	DecisionType      string  `dynamodbav:"DecisionType"`
	Category          string  `dynamodbav:"Category"`
	InitialConfidence int     `dynamodbav:"InitialConfidence"`
	CurrentConfidence int     `dynamodbav:"CurrentConfidence"`
	PerceivedRisk     string  `dynamodbav:"PerceivedRisk"`
	PerceivedImpact   string  `dynamodbav:"PerceivedImpact"`
	Status            string  `dynamodbav:"Status"`
	Deadline          *string `dynamodbav:"Deadline,omitempty"`
	LastReviewedAt    string  `dynamodbav:"LastReviewedAt"`
	CreatedAt         string  `dynamodbav:"CreatedAt"`
	UpdatedAt         string  `dynamodbav:"UpdatedAt"`
	Version           int     `dynamodbav:"Version"`
}

func toDecisionItem(s entities.DecisionSnapshot) decisionItem {
	item := decisionItem{
		PK:                userPK(s.UserID),
		SK:                decisionSK(s.ID),
		EntityType:        entityDecision,
		DecisionID:        s.ID,
		UserID:            s.UserID,
		Title:             s.Title,
		Description:       s.Description,
		Context:           s.Context,
		Reasoning:         s.Reasoning,
		DecisionType:      s.DecisionType,
		Category:          s.Category,
		InitialConfidence: s.InitialConfidence,
		CurrentConfidence: s.CurrentConfidence,
		PerceivedRisk:     s.PerceivedRisk,
		PerceivedImpact:   s.PerceivedImpact,
		Status:            s.Status,
		LastReviewedAt:    formatTime(s.LastReviewedAt),
		CreatedAt:         formatTime(s.CreatedAt),
		UpdatedAt:         formatTime(s.UpdatedAt),
		Version:           s.Version,
	}
	if s.Deadline != nil {
		d := formatTime(*s.Deadline)
		item.Deadline = &d
	}
	return item
}

func (i decisionItem) snapshot() (entities.DecisionSnapshot, error) {
	s := entities.DecisionSnapshot{
		ID:                i.DecisionID,
		UserID:            i.UserID,
		Title:             i.Title,
		Description:       i.Description,
		Context:           i.Context,
		Reasoning:         i.Reasoning,
		DecisionType:      i.DecisionType,
		Category:          i.Category,
		InitialConfidence: i.InitialConfidence,
		CurrentConfidence: i.CurrentConfidence,
		PerceivedRisk:     i.PerceivedRisk,
		PerceivedImpact:   i.PerceivedImpact,
		Status:            i.Status,
		Version:           i.Version,
	}
	var err error
	if s.LastReviewedAt, err = parseTime(i.LastReviewedAt); err != nil {
		return s, err
	}
	if s.CreatedAt, err = parseTime(i.CreatedAt); err != nil {
		return s, err
	}
	if s.UpdatedAt, err = parseTime(i.UpdatedAt); err != nil {
		return s, err
	}
	if i.Deadline != nil {
		d, err := parseTime(*i.Deadline)
		if err != nil {
			return s, err
		}
		s.Deadline = &d
	}
	return s, nil
}

type assumptionItem struct {
	PK             string  `dynamodbav:"PK"`
	SK             string  `dynamodbav:"SK"`
	EntityType     string  `dynamodbav:"EntityType"`
	AssumptionID   string  `dynamodbav:"AssumptionID"`
	DecisionID     string  `dynamodbav:"DecisionID"`
	Content        string  `dynamodbav:"Content"`
	IsValidated    bool    `dynamodbav:"IsValidated"`
	ValidationDate *string `dynamodbav:"ValidationDate,omitempty"`
	CreatedAt      string  `dynamodbav:"CreatedAt"`
}

type insightItem struct {
	PK          string  `dynamodbav:"PK"`
	SK          string  `dynamodbav:"SK"`
	EntityType  string  `dynamodbav:"EntityType"`
	InsightID   string  `dynamodbav:"InsightID"`
	UserID      string  `dynamodbav:"UserID"`
	DecisionID  string  `dynamodbav:"DecisionID,omitempty"`
	InsightType string  `dynamodbav:"InsightType"`
	Severity    string  `dynamodbav:"Severity"`
	Title       string  `dynamodbav:"Title"`
	Message     string  `dynamodbav:"Message"`
	IsDismissed bool    `dynamodbav:"IsDismissed"`
	CreatedAt   string  `dynamodbav:"CreatedAt"`
	DismissedAt *string `dynamodbav:"DismissedAt,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
