// Package commands holds the state-changing requests of the application.
package commands

import (
	"time"

	"decivue/pkg/utils"
)

// CreateDecisionCommand records a new decision with its assumptions. The
// caller allocates DecisionID so it can read the decision back.
type CreateDecisionCommand struct {
	DecisionID      string     `json:"decision_id" validate:"required,uuid"`
	UserID          string     `json:"user_id" validate:"required"`
	Title           string     `json:"title" validate:"required,max=200"`
	Description     string     `json:"description" validate:"max=2000"`
	Context         string     `json:"context" validate:"max=5000"`
	Reasoning       string     `json:"reasoning" validate:"max=5000"`
	DecisionType    string     `json:"decision_type" validate:"max=50"`
	Category        string     `json:"category" validate:"required"`
	Confidence      int        `json:"confidence"`
	PerceivedRisk   string     `json:"perceived_risk" validate:"required"`
	PerceivedImpact string     `json:"perceived_impact" validate:"required"`
	Deadline        *time.Time `json:"deadline"`
	Assumptions     []string   `json:"assumptions" validate:"max=20"`
}

// Validate checks shape only. Enumerations and the confidence range are
// checked by the domain so the caller gets the precise error.
func (c CreateDecisionCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// ReviewDecisionCommand applies a reaffirm, revise or invalidate action.
type ReviewDecisionCommand struct {
	DecisionID string `json:"decision_id" validate:"required,uuid"`
	UserID     string `json:"user_id" validate:"required"`
	Action     string `json:"action"`
	Confidence *int   `json:"confidence"`
	Notes      string `json:"notes" validate:"max=2000"`

	// ExpectedVersion, when positive, must match the stored version.
	ExpectedVersion int `json:"expected_version" validate:"min=0"`
}

func (c ReviewDecisionCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// DeleteDecisionCommand removes a decision and its assumptions.
type DeleteDecisionCommand struct {
	DecisionID string `json:"decision_id" validate:"required,uuid"`
	UserID     string `json:"user_id" validate:"required"`
}

func (c DeleteDecisionCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// AddAssumptionCommand attaches an assumption to an existing decision.
type AddAssumptionCommand struct {
	AssumptionID string `json:"assumption_id" validate:"required,uuid"`
	DecisionID   string `json:"decision_id" validate:"required,uuid"`
	UserID       string `json:"user_id" validate:"required"`
	Content      string `json:"content" validate:"required,max=1000"`
}

func (c AddAssumptionCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// ValidateAssumptionCommand marks an assumption as validated.
type ValidateAssumptionCommand struct {
	AssumptionID string `json:"assumption_id" validate:"required,uuid"`
	DecisionID   string `json:"decision_id" validate:"required,uuid"`
	UserID       string `json:"user_id" validate:"required"`
}

func (c ValidateAssumptionCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// DismissInsightCommand hides an insight.
type DismissInsightCommand struct {
	InsightID string `json:"insight_id" validate:"required,uuid"`
	UserID    string `json:"user_id" validate:"required"`
}

func (c DismissInsightCommand) Validate() error {
	return utils.ValidateStruct(c)
}
