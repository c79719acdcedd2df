package handlers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"decivue/application/commands"
	"decivue/application/commands/handlers"
	"decivue/application/ports"
	"decivue/domain/config"
	"decivue/domain/core/entities"
	"decivue/domain/core/lifecycle"
	"decivue/domain/core/valueobjects"
	"decivue/domain/events"
	"decivue/infrastructure/di"
	"decivue/infrastructure/persistence/memory"
	pkgerrors "decivue/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	return m.Called(ctx, batch).Error(0)
}

type fixture struct {
	decisions   *memory.DecisionRepository
	assumptions *memory.AssumptionRepository
	insights    *memory.InsightRepository
	log         *memory.EventLog
	cache       *di.InMemoryCache
	publisher   *mockPublisher
	clock       *fixedClock
	engine      *lifecycle.Engine
	cfg         *config.DomainConfig
	logger      *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		decisions:   memory.NewDecisionRepository(),
		assumptions: memory.NewAssumptionRepository(),
		insights:    memory.NewInsightRepository(),
		log:         memory.NewEventLog(),
		cache:       di.NewInMemoryCache(0),
		publisher:   &mockPublisher{},
		clock:       &fixedClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
		engine:      lifecycle.DefaultEngine(),
		cfg:         config.DefaultDomainConfig(),
		logger:      zap.NewNop(),
	}
	t.Cleanup(f.cache.Close)
	return f
}

func (f *fixture) createHandler() *handlers.CreateDecisionHandler {
	return handlers.NewCreateDecisionHandler(f.decisions, f.assumptions, f.log, f.publisher, f.cache, f.engine, f.cfg, f.clock, f.logger)
}

func (f *fixture) reviewHandler() *handlers.ReviewDecisionHandler {
	return handlers.NewReviewDecisionHandler(f.decisions, f.log, f.publisher, f.cache, f.engine, f.clock, f.logger)
}

func (f *fixture) create(t *testing.T, confidence int, assumptions ...string) string {
	t.Helper()
	id := uuid.New().String()
	err := f.createHandler().Handle(context.Background(), commands.CreateDecisionCommand{
		DecisionID:      id,
		UserID:          "user-1",
		Title:           "Cut sugar",
		Category:        "nutrition",
		Confidence:      confidence,
		PerceivedRisk:   "low",
		PerceivedImpact: "high",
		Assumptions:     assumptions,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) load(t *testing.T, id string) *entities.Decision {
	t.Helper()
	d, err := f.decisions.GetByID(context.Background(), "user-1", mustDecisionID(t, id))
	require.NoError(t, err)
	return d
}

func mustDecisionID(t *testing.T, id string) valueobjects.DecisionID {
	t.Helper()
	parsed, err := valueobjects.ParseDecisionID(id)
	require.NoError(t, err)
	return parsed
}

func intPtr(v int) *int { return &v }

func TestCreateDecision_RecordsDecisionAssumptionsAndEvent(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(nil)

	id := f.create(t, 80, "Cravings fade", "  ", "Energy improves")

	d := f.load(t, id)
	assert.Equal(t, valueobjects.StatusFresh, d.Status())
	assert.Equal(t, 80, d.CurrentConfidence().Int())
	assert.Equal(t, 1, d.Version())

	assumptions, err := f.assumptions.ListByDecision(context.Background(), d.ID())
	require.NoError(t, err)
	assert.Len(t, assumptions, 2)

	entries, err := f.log.ListByDecision(context.Background(), d.ID())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, valueobjects.EventCreated, entries[0].Kind)
	assert.Nil(t, entries[0].PreviousStatus)

	pending, err := f.log.PendingEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	f.publisher.AssertNumberOfCalls(t, "PublishBatch", 1)
}

func TestCreateDecision_InvalidInputWritesNothing(t *testing.T) {
	f := newFixture(t)
	id := uuid.New().String()

	err := f.createHandler().Handle(context.Background(), commands.CreateDecisionCommand{
		DecisionID:      id,
		UserID:          "user-1",
		Title:           "Cut sugar",
		Category:        "nutrition",
		Confidence:      101,
		PerceivedRisk:   "low",
		PerceivedImpact: "high",
	})

	assert.True(t, pkgerrors.IsValidation(err))
	_, err = f.decisions.GetByID(context.Background(), "user-1", mustDecisionID(t, id))
	assert.True(t, pkgerrors.IsNotFound(err))
	f.publisher.AssertNotCalled(t, "PublishBatch", mock.Anything, mock.Anything)
}

func TestCreateDecision_PublishFailureLeavesEventPending(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(errors.New("bus down"))

	f.create(t, 50)

	pending, err := f.log.PendingEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

type failingLog struct{ ports.DecisionEventLog }

func (failingLog) Append(ctx context.Context, entries []events.DecisionEvent) error {
	return pkgerrors.NewUnavailableError("event log")
}

func TestCreateDecision_FailedEventAppendRollsBack(t *testing.T) {
	f := newFixture(t)
	h := handlers.NewCreateDecisionHandler(f.decisions, f.assumptions, failingLog{f.log}, f.publisher, f.cache, f.engine, f.cfg, f.clock, f.logger)
	id := uuid.New().String()

	err := h.Handle(context.Background(), commands.CreateDecisionCommand{
		DecisionID:      id,
		UserID:          "user-1",
		Title:           "Cut sugar",
		Category:        "nutrition",
		Confidence:      70,
		PerceivedRisk:   "low",
		PerceivedImpact: "high",
		Assumptions:     []string{"Cravings fade"},
	})
	require.Error(t, err)
	appErr := pkgerrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.ErrorTypeUnavailable, appErr.Type)

	_, err = f.decisions.GetByID(context.Background(), "user-1", mustDecisionID(t, id))
	assert.True(t, pkgerrors.IsNotFound(err))
	assumptions, err := f.assumptions.ListByDecision(context.Background(), mustDecisionID(t, id))
	require.NoError(t, err)
	assert.Empty(t, assumptions)
	f.publisher.AssertNotCalled(t, "PublishBatch", mock.Anything, mock.Anything)
}

func TestReviewDecision_ReviseAfterDecay(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(nil)
	id := f.create(t, 70)

	f.clock.now = f.clock.now.Add(20 * 24 * time.Hour)
	err := f.reviewHandler().Handle(context.Background(), commands.ReviewDecisionCommand{
		DecisionID: id,
		UserID:     "user-1",
		Action:     "revise",
		Confidence: intPtr(40),
		Notes:      "Harder than expected",
	})
	require.NoError(t, err)

	d := f.load(t, id)
	assert.Equal(t, valueobjects.StatusFresh, d.Status())
	assert.Equal(t, 40, d.CurrentConfidence().Int())
	assert.Equal(t, 2, d.Version())

	entries, err := f.log.ListByDecision(context.Background(), d.ID())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	latest := entries[0]
	assert.Equal(t, valueobjects.EventRevised, latest.Kind)
	assert.Equal(t, -30, latest.ConfidenceChange)
	require.NotNil(t, latest.PreviousStatus)
	assert.Equal(t, valueobjects.StatusAtRisk, *latest.PreviousStatus)
	assert.Equal(t, "Harder than expected", latest.Description)
}

func TestReviewDecision_FailedEventAppendRollsBack(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(nil)
	id := f.create(t, 90)
	h := handlers.NewReviewDecisionHandler(f.decisions, failingLog{f.log}, f.publisher, f.cache, f.engine, f.clock, f.logger)

	err := h.Handle(context.Background(), commands.ReviewDecisionCommand{
		DecisionID: id, UserID: "user-1", Action: "invalidate",
	})
	require.Error(t, err)
	appErr := pkgerrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.ErrorTypeUnavailable, appErr.Type)

	d := f.load(t, id)
	assert.Equal(t, valueobjects.StatusFresh, d.Status())
	assert.Equal(t, 90, d.CurrentConfidence().Int())
	entries, err := f.log.ListByDecision(context.Background(), d.ID())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, valueobjects.EventCreated, entries[0].Kind)

	// the restored row still accepts the next review
	require.NoError(t, f.reviewHandler().Handle(context.Background(), commands.ReviewDecisionCommand{
		DecisionID: id, UserID: "user-1", Action: "invalidate",
	}))
	d = f.load(t, id)
	assert.Equal(t, valueobjects.StatusInvalidated, d.Status())
	entries, err = f.log.ListByDecision(context.Background(), d.ID())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestReviewDecision_InvalidateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(nil)
	id := f.create(t, 70)
	h := f.reviewHandler()
	cmd := commands.ReviewDecisionCommand{DecisionID: id, UserID: "user-1", Action: "invalidate"}

	require.NoError(t, h.Handle(context.Background(), cmd))
	require.NoError(t, h.Handle(context.Background(), cmd))

	d := f.load(t, id)
	assert.Equal(t, valueobjects.StatusInvalidated, d.Status())
	assert.Equal(t, 2, d.Version())
	entries, err := f.log.ListByDecision(context.Background(), d.ID())
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	err = h.Handle(context.Background(), commands.ReviewDecisionCommand{
		DecisionID: id, UserID: "user-1", Action: "reaffirm", Confidence: intPtr(90),
	})
	assert.True(t, pkgerrors.IsInvalidTransition(err))
}

func TestReviewDecision_Errors(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(nil)
	id := f.create(t, 70)
	h := f.reviewHandler()

	tests := []struct {
		name  string
		cmd   commands.ReviewDecisionCommand
		check func(error) bool
	}{
		{
			name:  "missing action",
			cmd:   commands.ReviewDecisionCommand{DecisionID: id, UserID: "user-1", Confidence: intPtr(50)},
			check: pkgerrors.IsValidation,
		},
		{
			name:  "unknown action",
			cmd:   commands.ReviewDecisionCommand{DecisionID: id, UserID: "user-1", Action: "archive"},
			check: pkgerrors.IsValidation,
		},
		{
			name:  "missing confidence",
			cmd:   commands.ReviewDecisionCommand{DecisionID: id, UserID: "user-1", Action: "reaffirm"},
			check: pkgerrors.IsValidation,
		},
		{
			name:  "other user",
			cmd:   commands.ReviewDecisionCommand{DecisionID: id, UserID: "user-2", Action: "reaffirm", Confidence: intPtr(50)},
			check: pkgerrors.IsNotFound,
		},
		{
			name:  "stale expected version",
			cmd:   commands.ReviewDecisionCommand{DecisionID: id, UserID: "user-1", Action: "reaffirm", Confidence: intPtr(50), ExpectedVersion: 7},
			check: pkgerrors.IsConcurrencyConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	assert.Equal(t, 1, f.load(t, id).Version())
}

func TestReviewDecision_InvalidatesStatsCache(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(nil)
	id := f.create(t, 70)
	ctx := context.Background()
	gen, err := ports.StatsGeneration(ctx, f.cache, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.cache.Set(ctx, ports.StatsCacheKey("user-1", gen), []byte("{}"), time.Minute))

	require.NoError(t, f.reviewHandler().Handle(ctx, commands.ReviewDecisionCommand{
		DecisionID: id, UserID: "user-1", Action: "reaffirm", Confidence: intPtr(75),
	}))

	next, err := ports.StatsGeneration(ctx, f.cache, "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, gen, next)
	_, ok := f.cache.Get(ctx, ports.StatsCacheKey("user-1", next))
	assert.False(t, ok)
}

func TestDeleteDecision_KeepsAuditLog(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.AnythingOfType("events.DecisionDeleted")).Return(nil)
	id := f.create(t, 70, "It helps")
	ctx := context.Background()

	h := handlers.NewDeleteDecisionHandler(f.decisions, f.assumptions, f.publisher, f.cache, f.clock, f.logger)
	require.NoError(t, h.Handle(ctx, commands.DeleteDecisionCommand{DecisionID: id, UserID: "user-1"}))

	_, err := f.decisions.GetByID(ctx, "user-1", mustDecisionID(t, id))
	assert.True(t, pkgerrors.IsNotFound(err))
	assumptions, err := f.assumptions.ListByDecision(ctx, mustDecisionID(t, id))
	require.NoError(t, err)
	assert.Empty(t, assumptions)
	entries, err := f.log.ListByDecision(ctx, mustDecisionID(t, id))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	f.publisher.AssertExpectations(t)

	err = h.Handle(ctx, commands.DeleteDecisionCommand{DecisionID: id, UserID: "user-1"})
	assert.True(t, pkgerrors.IsNotFound(err))
}

// stuckDeleteRepo refuses to delete and records how many assumptions were
// still stored when the delete was attempted.
type stuckDeleteRepo struct {
	*memory.DecisionRepository
	assumptions *memory.AssumptionRepository
	leftover    int
}

func (r *stuckDeleteRepo) Delete(ctx context.Context, userID string, id valueobjects.DecisionID) error {
	rows, err := r.assumptions.ListByDecision(ctx, id)
	if err != nil {
		return err
	}
	r.leftover = len(rows)
	return pkgerrors.NewUnavailableError("decision store")
}

func TestDeleteDecision_FailedDeleteRestoresAssumptions(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(nil)
	id := f.create(t, 70, "It helps", "It is cheap")
	ctx := context.Background()
	repo := &stuckDeleteRepo{DecisionRepository: f.decisions, assumptions: f.assumptions, leftover: -1}

	h := handlers.NewDeleteDecisionHandler(repo, f.assumptions, f.publisher, f.cache, f.clock, f.logger)
	err := h.Handle(ctx, commands.DeleteDecisionCommand{DecisionID: id, UserID: "user-1"})

	require.Error(t, err)
	appErr := pkgerrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.ErrorTypeUnavailable, appErr.Type)
	assert.Zero(t, repo.leftover, "assumptions must be gone before the decision is deleted")

	f.load(t, id)
	assumptions, err := f.assumptions.ListByDecision(ctx, mustDecisionID(t, id))
	require.NoError(t, err)
	contents := make([]string, 0, len(assumptions))
	for _, a := range assumptions {
		contents = append(contents, a.Content())
	}
	assert.ElementsMatch(t, []string{"It helps", "It is cheap"}, contents)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestAssumptions_AddAndValidate(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
	id := f.create(t, 70)
	ctx := context.Background()

	add := handlers.NewAddAssumptionHandler(f.decisions, f.assumptions, f.cfg, f.clock, f.logger)
	validate := handlers.NewValidateAssumptionHandler(f.decisions, f.assumptions, f.publisher, f.clock, f.logger)

	aid := uuid.New().String()
	require.NoError(t, add.Handle(ctx, commands.AddAssumptionCommand{
		AssumptionID: aid, DecisionID: id, UserID: "user-1", Content: "Sleep improves",
	}))

	cmd := commands.ValidateAssumptionCommand{AssumptionID: aid, DecisionID: id, UserID: "user-1"}
	require.NoError(t, validate.Handle(ctx, cmd))
	require.NoError(t, validate.Handle(ctx, cmd))
	f.publisher.AssertNumberOfCalls(t, "Publish", 1)

	list, err := f.assumptions.ListByDecision(ctx, mustDecisionID(t, id))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsValidated())
	require.NotNil(t, list[0].ValidationDate())

	err = add.Handle(ctx, commands.AddAssumptionCommand{
		AssumptionID: uuid.New().String(), DecisionID: id, UserID: "user-2", Content: "Nope",
	})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestAssumptions_RejectedOnInvalidatedDecision(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(nil)
	id := f.create(t, 70)
	ctx := context.Background()
	require.NoError(t, f.reviewHandler().Handle(ctx, commands.ReviewDecisionCommand{
		DecisionID: id, UserID: "user-1", Action: "invalidate",
	}))

	add := handlers.NewAddAssumptionHandler(f.decisions, f.assumptions, f.cfg, f.clock, f.logger)
	err := add.Handle(ctx, commands.AddAssumptionCommand{
		AssumptionID: uuid.New().String(), DecisionID: id, UserID: "user-1", Content: "Too late",
	})
	assert.True(t, pkgerrors.IsInvalidTransition(err))
}

func TestDismissInsight(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("Publish", mock.Anything, mock.AnythingOfType("events.InsightDismissed")).Return(nil)
	ctx := context.Background()

	ins, err := entities.ReconstructInsight(entities.InsightParams{
		UserID:      "user-1",
		InsightType: "pattern",
		Severity:    "warning",
		Title:       "Confidence dropping",
		CreatedAt:   f.clock.now,
	})
	require.NoError(t, err)
	require.NoError(t, f.insights.Save(ctx, ins))

	h := handlers.NewDismissInsightHandler(f.insights, f.publisher, f.clock, f.logger)
	cmd := commands.DismissInsightCommand{InsightID: ins.ID().String(), UserID: "user-1"}
	require.NoError(t, h.Handle(ctx, cmd))
	require.NoError(t, h.Handle(ctx, cmd))
	f.publisher.AssertNumberOfCalls(t, "Publish", 1)

	stored, err := f.insights.GetByID(ctx, "user-1", ins.ID())
	require.NoError(t, err)
	assert.True(t, stored.IsDismissed())

	err = h.Handle(ctx, commands.DismissInsightCommand{InsightID: ins.ID().String(), UserID: "user-2"})
	assert.True(t, pkgerrors.IsNotFound(err))
}
