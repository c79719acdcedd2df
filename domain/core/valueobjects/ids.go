package valueobjects

import (
	"encoding/json"

	pkgerrors "decivue/pkg/errors"

	"github.com/google/uuid"
)

// identifier is the shared representation of the opaque UUID identifiers.
type identifier struct {
	value string
}

func newIdentifier() identifier {
	return identifier{value: uuid.New().String()}
}

func parseIdentifier(kind, s string) (identifier, error) {
	if s == "" {
		return identifier{}, pkgerrors.NewValidationErrorf("%s cannot be empty", kind)
	}
	if _, err := uuid.Parse(s); err != nil {
		return identifier{}, pkgerrors.NewValidationErrorf("%s must be a valid UUID", kind)
	}
	return identifier{value: s}, nil
}

func (id identifier) String() string { return id.value }
func (id identifier) IsZero() bool   { return id.value == "" }

func (id identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

func (id *identifier) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, &id.value)
}

// DecisionID identifies a Decision.
type DecisionID struct{ identifier }

func NewDecisionID() DecisionID { return DecisionID{newIdentifier()} }

func ParseDecisionID(s string) (DecisionID, error) {
	id, err := parseIdentifier("decision ID", s)
	return DecisionID{id}, err
}

func (id DecisionID) Equals(other DecisionID) bool { return id.value == other.value }

// AssumptionID identifies an Assumption.
type AssumptionID struct{ identifier }

func NewAssumptionID() AssumptionID { return AssumptionID{newIdentifier()} }

func ParseAssumptionID(s string) (AssumptionID, error) {
	id, err := parseIdentifier("assumption ID", s)
	return AssumptionID{id}, err
}

// InsightID identifies an Insight.
type InsightID struct{ identifier }

func NewInsightID() InsightID { return InsightID{newIdentifier()} }

func ParseInsightID(s string) (InsightID, error) {
	id, err := parseIdentifier("insight ID", s)
	return InsightID{id}, err
}

// NewEventID returns a fresh identifier for a lifecycle event.
func NewEventID() string {
	return uuid.New().String()
}
