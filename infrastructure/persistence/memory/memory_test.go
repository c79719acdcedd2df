package memory_test

import (
	"context"
	"testing"
	"time"

	"decivue/application/ports"
	"decivue/domain/core/entities"
	"decivue/domain/core/lifecycle"
	"decivue/domain/core/valueobjects"
	"decivue/infrastructure/persistence/memory"
	pkgerrors "decivue/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newDecision(t *testing.T, userID, title, category string, at time.Time) *entities.Decision {
	t.Helper()
	d, err := entities.NewDecision(entities.NewDecisionParams{
		UserID:          userID,
		Title:           title,
		Category:        category,
		Confidence:      70,
		PerceivedRisk:   "medium",
		PerceivedImpact: "medium",
	}, lifecycle.DefaultEngine(), nil, at)
	require.NoError(t, err)
	return d
}

func TestDecisionRepository_OptimisticLocking(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewDecisionRepository()
	engine := lifecycle.DefaultEngine()
	d := newDecision(t, "u1", "Walk daily", "fitness", t0)
	require.NoError(t, repo.Save(ctx, d))

	// Two readers load the same version.
	a, err := repo.GetByID(ctx, "u1", d.ID())
	require.NoError(t, err)
	b, err := repo.GetByID(ctx, "u1", d.ID())
	require.NoError(t, err)

	c := valueobjects.MustConfidence(60)
	_, err = a.Review(engine, lifecycle.Action{Kind: valueobjects.ActionReaffirm, Confidence: &c}, t0.Add(time.Hour))
	require.NoError(t, err)
	_, err = b.Review(engine, lifecycle.Action{Kind: valueobjects.ActionRevise, Confidence: &c}, t0.Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, a))
	err = repo.Save(ctx, b)

	assert.True(t, pkgerrors.IsConcurrencyConflict(err))
}

func TestDecisionRepository_CreateTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewDecisionRepository()
	d := newDecision(t, "u1", "Walk daily", "fitness", t0)

	require.NoError(t, repo.Save(ctx, d))
	assert.True(t, pkgerrors.IsConflict(repo.Save(ctx, d)))
}

func TestDecisionRepository_OwnershipAndFilters(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewDecisionRepository()
	older := newDecision(t, "u1", "Drink water", "nutrition", t0)
	newer := newDecision(t, "u1", "Gym three times", "fitness", t0.Add(time.Hour))
	other := newDecision(t, "u2", "Meditate", "mental_health", t0)
	for _, d := range []*entities.Decision{older, newer, other} {
		require.NoError(t, repo.Save(ctx, d))
	}

	_, err := repo.GetByID(ctx, "u1", other.ID())
	assert.True(t, pkgerrors.IsNotFound(err))

	all, err := repo.List(ctx, "u1", ports.DecisionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID(), all[0].ID())

	fitness := valueobjects.CategoryFitness
	filtered, err := repo.List(ctx, "u1", ports.DecisionFilter{Category: &fitness})
	require.NoError(t, err)
	require.Len(t, filtered, 1)

	searched, err := repo.List(ctx, "u1", ports.DecisionFilter{Search: "WATER"})
	require.NoError(t, err)
	require.Len(t, searched, 1)
	assert.Equal(t, older.ID(), searched[0].ID())

	assert.True(t, pkgerrors.IsNotFound(repo.Delete(ctx, "u1", other.ID())))
	require.NoError(t, repo.Delete(ctx, "u2", other.ID()))
}

func TestEventLog_AppendOnlyAndOutbox(t *testing.T) {
	ctx := context.Background()
	log := memory.NewEventLog()
	d := newDecision(t, "u1", "Sleep early", "sleep", t0)
	entries := d.DecisionEvents()

	require.NoError(t, log.Append(ctx, entries))
	assert.True(t, pkgerrors.IsConflict(log.Append(ctx, entries)))

	pending, err := log.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, log.MarkPublished(ctx, []string{pending[0].ID}))
	pending, err = log.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	listed, err := log.ListByDecision(ctx, d.ID())
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestInsightRepository_ListForUser(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInsightRepository()
	for i, dismissed := range []bool{false, true, false} {
		ins, err := entities.ReconstructInsight(entities.InsightParams{
			UserID:      "u1",
			InsightType: "pattern",
			Severity:    "info",
			Title:       "insight",
			IsDismissed: dismissed,
			CreatedAt:   t0.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, ins))
	}

	active, err := repo.ListForUser(ctx, "u1", ports.InsightFilter{})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.True(t, active[0].CreatedAt().After(active[1].CreatedAt()))

	all, err := repo.ListForUser(ctx, "u1", ports.InsightFilter{IncludeDismissed: true, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := repo.ListForUser(ctx, "u2", ports.InsightFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}
