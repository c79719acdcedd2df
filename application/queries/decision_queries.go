// Package queries holds the read side: query types, their results and the
// views returned to clients.
package queries

import (
	"decivue/domain/services"
	"decivue/pkg/common"
	"decivue/pkg/utils"
)

// GetDecisionQuery fetches one decision with its assumptions, timeline and
// active insights.
type GetDecisionQuery struct {
	UserID     string `validate:"required"`
	DecisionID string `validate:"required,uuid"`
}

func (q GetDecisionQuery) Validate() error { return utils.ValidateStruct(q) }

type GetDecisionResult struct {
	Decision    DecisionView     `json:"decision"`
	Assumptions []AssumptionView `json:"assumptions"`
	Events      []EventView      `json:"events"`
	Insights    []InsightView    `json:"insights"`
}

// ListDecisionsQuery lists a user's decisions. Status and NeedsReview are
// matched against the projected status.
type ListDecisionsQuery struct {
	UserID      string `validate:"required"`
	Search      string `validate:"max=200"`
	Category    string
	Status      string
	NeedsReview bool
	Page        int `validate:"min=0"`
	PageSize    int `validate:"min=0"`
}

func (q ListDecisionsQuery) Validate() error { return utils.ValidateStruct(q) }

type ListDecisionsResult struct {
	Decisions  []DecisionView         `json:"decisions"`
	Pagination *common.PaginationInfo `json:"pagination"`
}

// ListDecisionEventsQuery returns a decision's audit log, newest first.
type ListDecisionEventsQuery struct {
	UserID     string `validate:"required"`
	DecisionID string `validate:"required,uuid"`
}

func (q ListDecisionEventsQuery) Validate() error { return utils.ValidateStruct(q) }

type ListDecisionEventsResult struct {
	Events []EventView `json:"events"`
}

// GetDecisionStatsQuery aggregates a user's decisions.
type GetDecisionStatsQuery struct {
	UserID string `validate:"required"`
}

func (q GetDecisionStatsQuery) Validate() error { return utils.ValidateStruct(q) }

type GetDecisionStatsResult struct {
	Stats services.DecisionStats `json:"stats"`
}

// GetDashboardQuery builds the overview screen.
type GetDashboardQuery struct {
	UserID string `validate:"required"`
}

func (q GetDashboardQuery) Validate() error { return utils.ValidateStruct(q) }

type GetDashboardResult struct {
	Stats          services.DecisionStats `json:"stats"`
	NeedsAttention []DecisionView         `json:"needs_attention"`
	Insights       []InsightView          `json:"insights"`
}

// ListInsightsQuery lists insights, optionally for one decision.
type ListInsightsQuery struct {
	UserID           string `validate:"required"`
	DecisionID       string `validate:"omitempty,uuid"`
	IncludeDismissed bool
	Limit            int `validate:"min=0,max=200"`
}

func (q ListInsightsQuery) Validate() error { return utils.ValidateStruct(q) }

type ListInsightsResult struct {
	Insights []InsightView `json:"insights"`
}

// ComputeLifeScoreQuery scores the five LifeOS areas.
type ComputeLifeScoreQuery struct {
	Habit       float64 `json:"habit"`
	Nutrition   float64 `json:"nutrition"`
	Mood        float64 `json:"mood"`
	Finance     float64 `json:"finance"`
	Consistency float64 `json:"consistency"`
}

func (q ComputeLifeScoreQuery) Validate() error { return nil }

type ComputeLifeScoreResult struct {
	Score float64 `json:"score"`
	Label string  `json:"label"`
}
