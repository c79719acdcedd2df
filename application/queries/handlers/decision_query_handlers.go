// Package handlers implements the query handlers. Every decision returned
// is projected through the lifecycle engine at the handler's clock.
package handlers

import (
	"context"

	"decivue/application/ports"
	"decivue/application/queries"
	"decivue/domain/config"
	"decivue/domain/core/entities"
	"decivue/domain/core/lifecycle"
	"decivue/domain/core/valueobjects"
	"decivue/pkg/common"

	"go.uber.org/zap"
)

// GetDecisionHandler returns a decision with everything attached to it.
type GetDecisionHandler struct {
	decisionRepo   ports.DecisionRepository
	assumptionRepo ports.AssumptionRepository
	insightRepo    ports.InsightRepository
	eventLog       ports.DecisionEventLog
	engine         *lifecycle.Engine
	clock          ports.Clock
	logger         *zap.Logger
}

func NewGetDecisionHandler(
	decisionRepo ports.DecisionRepository,
	assumptionRepo ports.AssumptionRepository,
	insightRepo ports.InsightRepository,
	eventLog ports.DecisionEventLog,
	engine *lifecycle.Engine,
	clock ports.Clock,
	logger *zap.Logger,
) *GetDecisionHandler {
	return &GetDecisionHandler{
		decisionRepo:   decisionRepo,
		assumptionRepo: assumptionRepo,
		insightRepo:    insightRepo,
		eventLog:       eventLog,
		engine:         engine,
		clock:          clock,
		logger:         logger,
	}
}

func (h *GetDecisionHandler) Handle(ctx context.Context, q queries.GetDecisionQuery) (*queries.GetDecisionResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	id, err := valueobjects.ParseDecisionID(q.DecisionID)
	if err != nil {
		return nil, err
	}
	decision, err := h.decisionRepo.GetByID(ctx, q.UserID, id)
	if err != nil {
		return nil, err
	}

	assumptions, err := h.assumptionRepo.ListByDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := h.eventLog.ListByDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	insights, err := h.insightRepo.ListForUser(ctx, q.UserID, ports.InsightFilter{DecisionID: &id})
	if err != nil {
		return nil, err
	}

	result := &queries.GetDecisionResult{
		Decision:    queries.NewDecisionView(decision.Projected(h.engine, h.clock.Now())),
		Assumptions: make([]queries.AssumptionView, len(assumptions)),
		Events:      queries.NewEventViews(entries),
		Insights:    queries.NewInsightViews(insights),
	}
	for i, a := range assumptions {
		result.Assumptions[i] = queries.NewAssumptionView(a)
	}
	return result, nil
}

// ListDecisionsHandler lists projected decisions with filtering and
// pagination.
type ListDecisionsHandler struct {
	decisionRepo ports.DecisionRepository
	engine       *lifecycle.Engine
	cfg          *config.DomainConfig
	clock        ports.Clock
	logger       *zap.Logger
}

func NewListDecisionsHandler(
	decisionRepo ports.DecisionRepository,
	engine *lifecycle.Engine,
	cfg *config.DomainConfig,
	clock ports.Clock,
	logger *zap.Logger,
) *ListDecisionsHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &ListDecisionsHandler{
		decisionRepo: decisionRepo,
		engine:       engine,
		cfg:          cfg,
		clock:        clock,
		logger:       logger,
	}
}

func (h *ListDecisionsHandler) Handle(ctx context.Context, q queries.ListDecisionsQuery) (*queries.ListDecisionsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	filter := ports.DecisionFilter{Search: q.Search}
	if q.Category != "" {
		c, err := valueobjects.ParseCategory(q.Category)
		if err != nil {
			return nil, err
		}
		filter.Category = &c
	}
	var status *valueobjects.Status
	if q.Status != "" {
		s, err := valueobjects.ParseStatus(q.Status)
		if err != nil {
			return nil, err
		}
		status = &s
	}

	stored, err := h.decisionRepo.List(ctx, q.UserID, filter)
	if err != nil {
		return nil, err
	}

	matched := make([]*entities.Decision, 0, len(stored))
	now := h.clock.Now()
	for _, d := range stored {
		p := d.Projected(h.engine, now)
		if status != nil && p.Status() != *status {
			continue
		}
		if q.NeedsReview && !p.Status().NeedsReview() {
			continue
		}
		matched = append(matched, p)
	}

	page := common.PaginationParams{Page: q.Page, PageSize: q.PageSize}.
		Normalize(h.cfg.DefaultPageSize, h.cfg.MaxPageSize)
	start, end := page.Window(len(matched))

	views := make([]queries.DecisionView, 0, end-start)
	for _, d := range matched[start:end] {
		views = append(views, queries.NewDecisionView(d))
	}

	h.logger.Debug("Listed decisions",
		zap.String("userID", q.UserID),
		zap.Int("matched", len(matched)),
		zap.Int("page", page.Page),
	)
	return &queries.ListDecisionsResult{
		Decisions:  views,
		Pagination: common.BuildPaginationMeta(page.Page, page.PageSize, len(matched)),
	}, nil
}

// ListDecisionEventsHandler returns the audit log of an owned decision.
type ListDecisionEventsHandler struct {
	decisionRepo ports.DecisionRepository
	eventLog     ports.DecisionEventLog
}

func NewListDecisionEventsHandler(decisionRepo ports.DecisionRepository, eventLog ports.DecisionEventLog) *ListDecisionEventsHandler {
	return &ListDecisionEventsHandler{decisionRepo: decisionRepo, eventLog: eventLog}
}

func (h *ListDecisionEventsHandler) Handle(ctx context.Context, q queries.ListDecisionEventsQuery) (*queries.ListDecisionEventsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	id, err := valueobjects.ParseDecisionID(q.DecisionID)
	if err != nil {
		return nil, err
	}
	// Ownership check. The log itself is not user scoped.
	if _, err := h.decisionRepo.GetByID(ctx, q.UserID, id); err != nil {
		return nil, err
	}
	entries, err := h.eventLog.ListByDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	return &queries.ListDecisionEventsResult{Events: queries.NewEventViews(entries)}, nil
}
