package handlers_test

import (
	"context"
	"testing"
	"time"

	"decivue/application/ports"
	"decivue/application/queries"
	"decivue/application/queries/handlers"
	"decivue/domain/config"
	"decivue/domain/core/entities"
	"decivue/domain/core/lifecycle"
	"decivue/domain/core/valueobjects"
	"decivue/infrastructure/di"
	"decivue/infrastructure/persistence/memory"
	pkgerrors "decivue/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

var epoch = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type fixture struct {
	decisions   *memory.DecisionRepository
	assumptions *memory.AssumptionRepository
	insights    *memory.InsightRepository
	log         *memory.EventLog
	cache       *di.InMemoryCache
	clock       *fixedClock
	engine      *lifecycle.Engine
	cfg         *config.DomainConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		decisions:   memory.NewDecisionRepository(),
		assumptions: memory.NewAssumptionRepository(),
		insights:    memory.NewInsightRepository(),
		log:         memory.NewEventLog(),
		cache:       di.NewInMemoryCache(0),
		clock:       &fixedClock{now: epoch},
		engine:      lifecycle.DefaultEngine(),
		cfg:         config.DefaultDomainConfig(),
	}
	t.Cleanup(f.cache.Close)
	return f
}

// seed stores a decision created at `at` with the given confidence.
func (f *fixture) seed(t *testing.T, title, category string, confidence int, at time.Time) *entities.Decision {
	t.Helper()
	d, err := entities.NewDecision(entities.NewDecisionParams{
		UserID:          "u1",
		Title:           title,
		Category:        category,
		Confidence:      confidence,
		PerceivedRisk:   "low",
		PerceivedImpact: "medium",
	}, f.engine, f.cfg, at)
	require.NoError(t, err)
	require.NoError(t, f.decisions.Save(context.Background(), d))
	require.NoError(t, f.log.Append(context.Background(), d.DecisionEvents()))
	return d
}

func (f *fixture) statsHandler(ttl time.Duration) *handlers.GetDecisionStatsHandler {
	return handlers.NewGetDecisionStatsHandler(f.decisions, f.cache, ttl, f.engine, f.clock, zap.NewNop())
}

func TestGetDecision_ProjectsStatusAndAttachesTimeline(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, "Run a 10k", "fitness", 60, epoch)
	a, err := entities.NewAssumption(valueobjects.AssumptionID{}, d.ID(), "Knees hold up", f.cfg, epoch)
	require.NoError(t, err)
	require.NoError(t, f.assumptions.Save(context.Background(), a))
	f.clock.now = epoch.Add(15 * day)

	h := handlers.NewGetDecisionHandler(f.decisions, f.assumptions, f.insights, f.log, f.engine, f.clock, zap.NewNop())
	result, err := h.Handle(context.Background(), queries.GetDecisionQuery{UserID: "u1", DecisionID: d.ID().String()})

	require.NoError(t, err)
	assert.Equal(t, "at_risk", result.Decision.Status)
	require.Len(t, result.Assumptions, 1)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "created", result.Events[0].EventType)
	assert.Nil(t, result.Events[0].PreviousStatus)

	stored, err := f.decisions.GetByID(context.Background(), "u1", d.ID())
	require.NoError(t, err)
	assert.Equal(t, valueobjects.StatusFresh, stored.Status(), "reads must not persist decay")
}

func TestGetDecision_OtherUserIsNotFound(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, "Run a 10k", "fitness", 60, epoch)

	h := handlers.NewGetDecisionHandler(f.decisions, f.assumptions, f.insights, f.log, f.engine, f.clock, zap.NewNop())
	_, err := h.Handle(context.Background(), queries.GetDecisionQuery{UserID: "u2", DecisionID: d.ID().String()})

	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestListDecisions_FiltersOnProjectedStatus(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Old habit", "lifestyle", 70, epoch.Add(-40*day))
	f.seed(t, "Aging plan", "fitness", 70, epoch.Add(-20*day))
	f.seed(t, "New plan", "fitness", 70, epoch)

	h := handlers.NewListDecisionsHandler(f.decisions, f.engine, f.cfg, f.clock, zap.NewNop())

	tests := []struct {
		name   string
		query  queries.ListDecisionsQuery
		titles []string
	}{
		{"all newest first", queries.ListDecisionsQuery{UserID: "u1"}, []string{"New plan", "Aging plan", "Old habit"}},
		{"stale", queries.ListDecisionsQuery{UserID: "u1", Status: "stale"}, []string{"Old habit"}},
		{"needs review", queries.ListDecisionsQuery{UserID: "u1", NeedsReview: true}, []string{"Aging plan", "Old habit"}},
		{"category", queries.ListDecisionsQuery{UserID: "u1", Category: "fitness"}, []string{"New plan", "Aging plan"}},
		{"search", queries.ListDecisionsQuery{UserID: "u1", Search: "habit"}, []string{"Old habit"}},
		{"second page", queries.ListDecisionsQuery{UserID: "u1", Page: 2, PageSize: 2}, []string{"Old habit"}},
		{"past the end", queries.ListDecisionsQuery{UserID: "u1", Page: 5, PageSize: 2}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.Handle(context.Background(), tt.query)
			require.NoError(t, err)
			titles := make([]string, len(result.Decisions))
			for i, d := range result.Decisions {
				titles[i] = d.Title
			}
			assert.Equal(t, tt.titles, titles)
		})
	}
}

func TestListDecisions_RejectsUnknownEnums(t *testing.T) {
	f := newFixture(t)
	h := handlers.NewListDecisionsHandler(f.decisions, f.engine, f.cfg, f.clock, zap.NewNop())

	_, err := h.Handle(context.Background(), queries.ListDecisionsQuery{UserID: "u1", Status: "archived"})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = h.Handle(context.Background(), queries.ListDecisionsQuery{UserID: "u1", Category: "finance"})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestGetDecisionStats_CachesUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "A", "sleep", 40, epoch)
	f.seed(t, "B", "sleep", 81, epoch.Add(-20*day))
	ctx := context.Background()
	h := f.statsHandler(time.Minute)

	first, err := h.Handle(ctx, queries.GetDecisionStatsQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Stats.Total)
	assert.Equal(t, 1, first.Stats.Healthy)
	assert.Equal(t, 1, first.Stats.NeedsReview)
	assert.Equal(t, 61, first.Stats.AvgConfidence)

	f.seed(t, "C", "sleep", 10, epoch)
	cached, err := h.Handle(ctx, queries.GetDecisionStatsQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, cached.Stats.Total)

	require.NoError(t, ports.InvalidateStats(ctx, f.cache, "u1"))
	fresh, err := h.Handle(ctx, queries.GetDecisionStatsQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.Stats.Total)
}

// racingRepo runs onList after the decisions were read, the way a write
// committing during a stats computation would.
type racingRepo struct {
	ports.DecisionRepository
	onList func()
}

func (r *racingRepo) List(ctx context.Context, userID string, filter ports.DecisionFilter) ([]*entities.Decision, error) {
	out, err := r.DecisionRepository.List(ctx, userID, filter)
	if r.onList != nil {
		hook := r.onList
		r.onList = nil
		hook()
	}
	return out, err
}

func TestGetDecisionStats_InvalidationDuringComputeIsNotOverwritten(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "A", "sleep", 40, epoch)
	ctx := context.Background()
	repo := &racingRepo{DecisionRepository: f.decisions}
	repo.onList = func() {
		f.seed(t, "B", "sleep", 60, epoch)
		require.NoError(t, ports.InvalidateStats(ctx, f.cache, "u1"))
	}
	h := handlers.NewGetDecisionStatsHandler(repo, f.cache, time.Minute, f.engine, f.clock, zap.NewNop())

	raced, err := h.Handle(ctx, queries.GetDecisionStatsQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, raced.Stats.Total)

	next, err := h.Handle(ctx, queries.GetDecisionStatsQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Stats.Total)
}

func TestGetDashboard(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Stale one", "sleep", 70, epoch.Add(-45*day))
	f.seed(t, "Risky one", "sleep", 70, epoch.Add(-16*day))
	f.seed(t, "Fine", "sleep", 70, epoch)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		ins, err := entities.ReconstructInsight(entities.InsightParams{
			UserID:      "u1",
			InsightType: "pattern",
			Severity:    "info",
			Title:       "tip",
			IsDismissed: i == 6,
			CreatedAt:   epoch.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		require.NoError(t, f.insights.Save(ctx, ins))
	}

	h := handlers.NewGetDashboardHandler(f.statsHandler(0), f.decisions, f.insights, f.engine, f.cfg, f.clock)
	result, err := h.Handle(ctx, queries.GetDashboardQuery{UserID: "u1"})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Stats.Total)
	require.Len(t, result.NeedsAttention, 2)
	assert.Equal(t, "Stale one", result.NeedsAttention[0].Title)
	require.Len(t, result.Insights, 5)
	for _, ins := range result.Insights {
		assert.False(t, ins.IsDismissed)
	}
}

func TestComputeLifeScore(t *testing.T) {
	h := handlers.NewComputeLifeScoreHandler()

	result, err := h.Handle(context.Background(), queries.ComputeLifeScoreQuery{
		Habit: 80, Nutrition: 70, Mood: 60, Finance: 50, Consistency: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, 65.0, result.Score)
	assert.Equal(t, "Good", result.Label)

	_, err = h.Handle(context.Background(), queries.ComputeLifeScoreQuery{Habit: 120})
	assert.True(t, pkgerrors.IsValidation(err))
}
