package handlers

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"decivue/application/ports"
	"decivue/application/queries"
	"decivue/domain/config"
	"decivue/domain/core/entities"
	"decivue/domain/core/lifecycle"
	"decivue/domain/services"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GetDecisionStatsHandler aggregates projected decisions. Results are
// cached per user until a command invalidates them or ttl expires.
type GetDecisionStatsHandler struct {
	decisionRepo ports.DecisionRepository
	cache        ports.Cache
	ttl          time.Duration
	engine       *lifecycle.Engine
	clock        ports.Clock
	logger       *zap.Logger
}

func NewGetDecisionStatsHandler(
	decisionRepo ports.DecisionRepository,
	cache ports.Cache,
	ttl time.Duration,
	engine *lifecycle.Engine,
	clock ports.Clock,
	logger *zap.Logger,
) *GetDecisionStatsHandler {
	return &GetDecisionStatsHandler{
		decisionRepo: decisionRepo,
		cache:        cache,
		ttl:          ttl,
		engine:       engine,
		clock:        clock,
		logger:       logger,
	}
}

func (h *GetDecisionStatsHandler) Handle(ctx context.Context, q queries.GetDecisionStatsQuery) (*queries.GetDecisionStatsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	stats, err := h.stats(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	return &queries.GetDecisionStatsResult{Stats: stats}, nil
}

func (h *GetDecisionStatsHandler) stats(ctx context.Context, userID string) (services.DecisionStats, error) {
	// The generation is read before the decisions so that a write landing
	// mid-computation moves the cache past this result.
	var key string
	if h.cache != nil {
		gen, err := ports.StatsGeneration(ctx, h.cache, userID)
		if err != nil {
			h.logger.Warn("Stats cache unavailable", zap.String("userID", userID), zap.Error(err))
		} else {
			key = ports.StatsCacheKey(userID, gen)
		}
	}
	if key != "" {
		if raw, ok := h.cache.Get(ctx, key); ok {
			var cached services.DecisionStats
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			h.logger.Warn("Discarding unreadable stats cache entry", zap.String("key", key))
		}
	}

	projected, err := projectAll(ctx, h.decisionRepo, h.engine, userID, h.clock.Now())
	if err != nil {
		return services.DecisionStats{}, err
	}
	stats := services.ComputeStats(projected)

	// Projection depends on the clock, so a short ttl bounds how stale a
	// cached decay view can get.
	if key != "" && h.ttl > 0 {
		if raw, err := json.Marshal(stats); err == nil {
			if err := h.cache.Set(ctx, key, raw, h.ttl); err != nil {
				h.logger.Warn("Failed to cache stats", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return stats, nil
}

// GetDashboardHandler combines stats, decisions needing attention and the
// newest undismissed insights.
type GetDashboardHandler struct {
	stats        *GetDecisionStatsHandler
	decisionRepo ports.DecisionRepository
	insightRepo  ports.InsightRepository
	engine       *lifecycle.Engine
	cfg          *config.DomainConfig
	clock        ports.Clock
}

func NewGetDashboardHandler(
	stats *GetDecisionStatsHandler,
	decisionRepo ports.DecisionRepository,
	insightRepo ports.InsightRepository,
	engine *lifecycle.Engine,
	cfg *config.DomainConfig,
	clock ports.Clock,
) *GetDashboardHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &GetDashboardHandler{
		stats:        stats,
		decisionRepo: decisionRepo,
		insightRepo:  insightRepo,
		engine:       engine,
		cfg:          cfg,
		clock:        clock,
	}
}

func (h *GetDashboardHandler) Handle(ctx context.Context, q queries.GetDashboardQuery) (*queries.GetDashboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var (
		stats     services.DecisionStats
		projected []*entities.Decision
		insights  []*entities.Insight
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats, err = h.stats.stats(gctx, q.UserID)
		return err
	})
	g.Go(func() (err error) {
		projected, err = projectAll(gctx, h.decisionRepo, h.engine, q.UserID, h.clock.Now())
		return err
	})
	g.Go(func() (err error) {
		insights, err = h.insightRepo.ListForUser(gctx, q.UserID, ports.InsightFilter{Limit: h.cfg.DashboardInsightLimit})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var attention []*entities.Decision
	for _, d := range projected {
		if d.Status().NeedsReview() {
			attention = append(attention, d)
		}
	}
	// Longest unreviewed first.
	sort.SliceStable(attention, func(i, j int) bool {
		return attention[i].LastReviewedAt().Before(attention[j].LastReviewedAt())
	})

	result := &queries.GetDashboardResult{
		Stats:          stats,
		NeedsAttention: make([]queries.DecisionView, len(attention)),
		Insights:       queries.NewInsightViews(insights),
	}
	for i, d := range attention {
		result.NeedsAttention[i] = queries.NewDecisionView(d)
	}
	return result, nil
}

func projectAll(ctx context.Context, repo ports.DecisionRepository, engine *lifecycle.Engine, userID string, now time.Time) ([]*entities.Decision, error) {
	stored, err := repo.List(ctx, userID, ports.DecisionFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]*entities.Decision, len(stored))
	for i, d := range stored {
		out[i] = d.Projected(engine, now)
	}
	return out, nil
}
