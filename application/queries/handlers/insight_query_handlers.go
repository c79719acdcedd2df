package handlers

import (
	"context"

	"decivue/application/ports"
	"decivue/application/queries"
	"decivue/domain/core/valueobjects"
	"decivue/domain/services"
)

// ListInsightsHandler lists a user's insights newest first.
type ListInsightsHandler struct {
	insightRepo ports.InsightRepository
}

func NewListInsightsHandler(insightRepo ports.InsightRepository) *ListInsightsHandler {
	return &ListInsightsHandler{insightRepo: insightRepo}
}

func (h *ListInsightsHandler) Handle(ctx context.Context, q queries.ListInsightsQuery) (*queries.ListInsightsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filter := ports.InsightFilter{IncludeDismissed: q.IncludeDismissed, Limit: q.Limit}
	if q.DecisionID != "" {
		id, err := valueobjects.ParseDecisionID(q.DecisionID)
		if err != nil {
			return nil, err
		}
		filter.DecisionID = &id
	}

	list, err := h.insightRepo.ListForUser(ctx, q.UserID, filter)
	if err != nil {
		return nil, err
	}
	return &queries.ListInsightsResult{Insights: queries.NewInsightViews(list)}, nil
}

// ComputeLifeScoreHandler computes the weighted LifeOS score.
type ComputeLifeScoreHandler struct{}

func NewComputeLifeScoreHandler() *ComputeLifeScoreHandler {
	return &ComputeLifeScoreHandler{}
}

func (h *ComputeLifeScoreHandler) Handle(ctx context.Context, q queries.ComputeLifeScoreQuery) (*queries.ComputeLifeScoreResult, error) {
	score, err := services.ComputeLifeScore(services.LifeScoreInputs{
		Habit:       q.Habit,
		Nutrition:   q.Nutrition,
		Mood:        q.Mood,
		Finance:     q.Finance,
		Consistency: q.Consistency,
	})
	if err != nil {
		return nil, err
	}
	return &queries.ComputeLifeScoreResult{Score: score.Score, Label: score.Label}, nil
}
