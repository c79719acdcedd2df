package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"decivue/application/ports"
	"decivue/domain/core/entities"
	"decivue/domain/core/lifecycle"
	"decivue/domain/core/valueobjects"
	"decivue/domain/events"
	"decivue/infrastructure/persistence/postgres"
	pkgerrors "decivue/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// Runs against a real database when TEST_DATABASE_URL is set.
func openDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := postgres.Open(ctx, dsn, postgres.PoolOptions{MaxOpenConns: 5})
	require.NoError(t, err)
	_, err = postgres.Migrate(ctx, db, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newDecision(t *testing.T, userID, title string) *entities.Decision {
	t.Helper()
	d, err := entities.NewDecision(entities.NewDecisionParams{
		UserID:          userID,
		Title:           title,
		Description:     "Track it for a month",
		Category:        "fitness",
		Confidence:      70,
		PerceivedRisk:   "medium",
		PerceivedImpact: "high",
	}, lifecycle.DefaultEngine(), nil, t0)
	require.NoError(t, err)
	return d
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := openDB(t)
	ran, err := postgres.Migrate(context.Background(), db, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, ran)
}

func TestDecisionRepository_RoundTripAndOptimisticLock(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewDecisionRepository(openDB(t))
	user := "user-" + uuid.NewString()
	engine := lifecycle.DefaultEngine()

	d := newDecision(t, user, "Run 5k weekly")
	require.NoError(t, repo.Save(ctx, d))
	assert.True(t, pkgerrors.IsConflict(repo.Save(ctx, newCopy(t, d))))

	a, err := repo.GetByID(ctx, user, d.ID())
	require.NoError(t, err)
	assert.Equal(t, "Run 5k weekly", a.Content().Title())
	assert.Equal(t, 1, a.Version())
	b, err := repo.GetByID(ctx, user, d.ID())
	require.NoError(t, err)

	c := valueobjects.MustConfidence(50)
	_, err = a.Review(engine, lifecycle.Action{Kind: valueobjects.ActionRevise, Confidence: &c}, t0.Add(time.Hour))
	require.NoError(t, err)
	_, err = b.Review(engine, lifecycle.Action{Kind: valueobjects.ActionReaffirm, Confidence: &c}, t0.Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, a))
	assert.True(t, pkgerrors.IsConcurrencyConflict(repo.Save(ctx, b)))

	_, err = repo.GetByID(ctx, "someone-else", d.ID())
	assert.True(t, pkgerrors.IsNotFound(err))
}

// newCopy rebuilds an unsaved decision with the same ID.
func newCopy(t *testing.T, d *entities.Decision) *entities.Decision {
	t.Helper()
	s := d.Snapshot()
	c, err := entities.NewDecision(entities.NewDecisionParams{
		ID:              s.ID,
		UserID:          s.UserID,
		Title:           s.Title,
		Category:        s.Category,
		Confidence:      s.InitialConfidence,
		PerceivedRisk:   s.PerceivedRisk,
		PerceivedImpact: s.PerceivedImpact,
	}, lifecycle.DefaultEngine(), nil, t0)
	require.NoError(t, err)
	return c
}

func TestDecisionRepository_ListSearchEscapesWildcards(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewDecisionRepository(openDB(t))
	user := "user-" + uuid.NewString()

	require.NoError(t, repo.Save(ctx, newDecision(t, user, "Cut sugar 100%")))
	require.NoError(t, repo.Save(ctx, newDecision(t, user, "Sleep by 11")))

	all, err := repo.List(ctx, user, ports.DecisionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := repo.List(ctx, user, ports.DecisionFilter{Search: "100%"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Cut sugar 100%", found[0].Content().Title())

	none, err := repo.List(ctx, user, ports.DecisionFilter{Search: "%"})
	require.NoError(t, err)
	assert.Len(t, none, 1)
}

func TestEventLog_AppendListAndOutbox(t *testing.T) {
	ctx := context.Background()
	log := postgres.NewEventLog(openDB(t))
	decisionID := valueobjects.NewDecisionID()

	fresh := valueobjects.StatusFresh
	created := events.NewDecisionEvent(decisionID, "u1", valueobjects.EventCreated, "", 0, nil, valueobjects.StatusFresh, 1, t0)
	revised := events.NewDecisionEvent(decisionID, "u1", valueobjects.EventRevised, "new data", -20, &fresh, valueobjects.StatusFresh, 2, t0.Add(time.Hour))
	require.NoError(t, log.Append(ctx, []events.DecisionEvent{created, revised}))
	assert.True(t, pkgerrors.IsConflict(log.Append(ctx, []events.DecisionEvent{created})))

	list, err := log.ListByDecision(ctx, decisionID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, revised.ID, list[0].ID)
	assert.Equal(t, -20, list[0].ConfidenceChange)
	require.NotNil(t, list[0].PreviousStatus)
	assert.Nil(t, list[1].PreviousStatus)

	require.NoError(t, log.MarkPublished(ctx, []string{created.ID}))
	for i := 0; i < ports.MaxPublishAttempts; i++ {
		require.NoError(t, log.MarkFailed(ctx, revised.ID, "bus down"))
	}
	pending, err := log.PendingEvents(ctx, 1000)
	require.NoError(t, err)
	for _, e := range pending {
		assert.NotEqual(t, created.ID, e.ID)
		assert.NotEqual(t, revised.ID, e.ID)
	}
}

func TestAdvisoryLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	locker := postgres.NewAdvisoryLocker(openDB(t))
	resource := "test-" + uuid.NewString()

	lease, ok, err := locker.TryLock(ctx, resource, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, resource, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lease.Release(ctx))
	again, ok, err := locker.TryLock(ctx, resource, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, again.Release(ctx))
}
