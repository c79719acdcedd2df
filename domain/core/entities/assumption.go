package entities

import (
	"strings"
	"time"
	"unicode/utf8"

	"decivue/domain/config"
	"decivue/domain/core/valueobjects"
	pkgerrors "decivue/pkg/errors"
)

// Assumption is a premise a decision rests on. It belongs to exactly one
// decision and is deleted with it.
type Assumption struct {
	id             valueobjects.AssumptionID
	decisionID     valueobjects.DecisionID
	content        string
	isValidated    bool
	validationDate *time.Time
	createdAt      time.Time
}

// NewAssumption validates content. A zero id allocates a new one.
func NewAssumption(id valueobjects.AssumptionID, decisionID valueobjects.DecisionID, content string, cfg *config.DomainConfig, now time.Time) (*Assumption, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if decisionID.IsZero() {
		return nil, pkgerrors.NewValidationError("decision ID is required")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, pkgerrors.NewValidationError("assumption content cannot be empty")
	}
	if utf8.RuneCountInString(content) > cfg.MaxAssumptionLength {
		return nil, pkgerrors.NewValidationErrorf("assumption exceeds maximum length of %d characters", cfg.MaxAssumptionLength)
	}
	if id.IsZero() {
		id = valueobjects.NewAssumptionID()
	}
	return &Assumption{
		id:         id,
		decisionID: decisionID,
		content:    content,
		createdAt:  now,
	}, nil
}

// ReconstructAssumption rebuilds an assumption from storage.
func ReconstructAssumption(id, decisionID, content string, isValidated bool, validationDate *time.Time, createdAt time.Time) (*Assumption, error) {
	aid, err := valueobjects.ParseAssumptionID(id)
	if err != nil {
		return nil, err
	}
	did, err := valueobjects.ParseDecisionID(decisionID)
	if err != nil {
		return nil, err
	}
	return &Assumption{
		id:             aid,
		decisionID:     did,
		content:        content,
		isValidated:    isValidated,
		validationDate: validationDate,
		createdAt:      createdAt,
	}, nil
}

func (a *Assumption) ID() valueobjects.AssumptionID       { return a.id }
func (a *Assumption) DecisionID() valueobjects.DecisionID { return a.decisionID }
func (a *Assumption) Content() string                     { return a.content }
func (a *Assumption) IsValidated() bool                   { return a.isValidated }
func (a *Assumption) ValidationDate() *time.Time          { return a.validationDate }
func (a *Assumption) CreatedAt() time.Time                { return a.createdAt }

// Validate marks the assumption as validated. Validation is one way: a
// second call changes nothing and returns false.
func (a *Assumption) Validate(now time.Time) bool {
	if a.isValidated {
		return false
	}
	a.isValidated = true
	a.validationDate = &now
	return true
}
