package messaging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"decivue/application/ports"
	"decivue/domain/core/valueobjects"
	"decivue/domain/events"
	"decivue/infrastructure/di"
	"decivue/infrastructure/messaging"
	"decivue/infrastructure/persistence/memory"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	return m.Called(ctx, batch).Error(0)
}

type stubLocker struct {
	held     bool
	released int
}

type stubLease struct{ l *stubLocker }

func (s stubLease) Release(context.Context) error {
	s.l.released++
	return nil
}

func (l *stubLocker) TryLock(context.Context, string, time.Duration) (ports.Lease, bool, error) {
	if l.held {
		return nil, false, nil
	}
	return stubLease{l: l}, true, nil
}

func newEvent(userID string) events.DecisionEvent {
	return events.NewDecisionEvent(
		valueobjects.NewDecisionID(), userID, valueobjects.EventCreated, "",
		0, nil, valueobjects.StatusFresh, 1, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	)
}

func seedLog(t *testing.T, n int) (*memory.EventLog, []events.DecisionEvent) {
	t.Helper()
	log := memory.NewEventLog()
	var seeded []events.DecisionEvent
	for i := 0; i < n; i++ {
		seeded = append(seeded, newEvent("user-1"))
	}
	require.NoError(t, log.Append(context.Background(), seeded))
	return log, seeded
}

func TestOutboxProcessor_PublishesPendingEvents(t *testing.T) {
	ctx := context.Background()
	log, seeded := seedLog(t, 3)

	publisher := &mockPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	processor := messaging.NewOutboxProcessor(log, publisher, nil, messaging.OutboxProcessorConfig{BatchSize: 2}, zap.NewNop())

	n, err := processor.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = processor.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := log.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	publisher.AssertNumberOfCalls(t, "Publish", len(seeded))
}

func TestOutboxProcessor_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	log, _ := seedLog(t, 1)

	publisher := &mockPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus down"))

	processor := messaging.NewOutboxProcessor(log, publisher, nil, messaging.OutboxProcessorConfig{}, zap.NewNop())
	failures := 0
	processor.OnBatch(func(published, failed int) {
		assert.Zero(t, published)
		failures += failed
	})

	for i := 0; i < ports.MaxPublishAttempts+2; i++ {
		n, err := processor.ProcessOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	pending, err := log.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	publisher.AssertNumberOfCalls(t, "Publish", ports.MaxPublishAttempts)
	assert.Equal(t, ports.MaxPublishAttempts, failures)
}

func TestOutboxProcessor_SkipsWhenLeaseHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	log, _ := seedLog(t, 1)
	publisher := &mockPublisher{}
	locker := &stubLocker{held: true}

	processor := messaging.NewOutboxProcessor(log, publisher, locker, messaging.OutboxProcessorConfig{}, zap.NewNop())

	n, err := processor.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)

	locker.held = false
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
	n, err = processor.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, locker.released)
}

func TestOutboxProcessor_StartStop(t *testing.T) {
	log, _ := seedLog(t, 1)
	publisher := &mockPublisher{}
	published := make(chan struct{}, 1)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		select {
		case published <- struct{}{}:
		default:
		}
	})

	processor := messaging.NewOutboxProcessor(log, publisher, nil, messaging.OutboxProcessorConfig{Interval: 10 * time.Millisecond}, zap.NewNop())
	processor.Start(context.Background())

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("outbox was not drained")
	}
	processor.Stop()
	processor.Stop()
}

func TestOutboxProcessor_StopBeforeStart(t *testing.T) {
	log, _ := seedLog(t, 1)
	publisher := &mockPublisher{}
	processor := messaging.NewOutboxProcessor(log, publisher, nil, messaging.OutboxProcessorConfig{Interval: time.Millisecond}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		processor.Stop()
		processor.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a processor that never started")
	}

	processor.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestOutboxProcessor_SecondStartIsIgnored(t *testing.T) {
	log, _ := seedLog(t, 1)
	processor := messaging.NewOutboxProcessor(log, &mockPublisher{}, nil, messaging.OutboxProcessorConfig{Interval: time.Hour}, zap.NewNop())

	processor.Start(context.Background())
	processor.Start(context.Background())

	done := make(chan struct{})
	go func() {
		processor.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestLocalEventBus_DispatchesByTypeAndWildcard(t *testing.T) {
	ctx := context.Background()
	bus := messaging.NewLocalEventBus(zap.NewNop())

	var typed, all int
	bus.Subscribe(events.TypeDecisionCreated, ports.EventHandlerFunc(func(context.Context, events.DomainEvent) error {
		typed++
		return nil
	}))
	bus.Subscribe(messaging.AllEvents, ports.EventHandlerFunc(func(context.Context, events.DomainEvent) error {
		all++
		return nil
	}))

	require.NoError(t, bus.PublishBatch(ctx, []events.DomainEvent{
		newEvent("user-1"),
		events.NewInsightDismissed(valueobjects.NewInsightID(), "user-1", time.Now()),
	}))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)
}

func TestLocalEventBus_RunsAllHandlersAndReturnsFirstError(t *testing.T) {
	bus := messaging.NewLocalEventBus(zap.NewNop())
	var calls int
	bus.Subscribe(messaging.AllEvents, ports.EventHandlerFunc(func(context.Context, events.DomainEvent) error {
		calls++
		return errors.New("boom")
	}))
	bus.Subscribe(messaging.AllEvents, ports.EventHandlerFunc(func(context.Context, events.DomainEvent) error {
		calls++
		return nil
	}))

	err := bus.Publish(context.Background(), newEvent("user-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 2, calls)
}

func TestStatsInvalidator(t *testing.T) {
	ctx := context.Background()
	cache := di.NewInMemoryCache(0)
	t.Cleanup(cache.Close)
	gen, err := ports.StatsGeneration(ctx, cache, "user-1")
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, ports.StatsCacheKey("user-1", gen), []byte("{}"), time.Minute))

	bus := messaging.NewLocalEventBus(zap.NewNop())
	bus.Subscribe(messaging.AllEvents, messaging.StatsInvalidator(cache))

	require.NoError(t, bus.Publish(ctx, newEvent("user-1")))

	next, err := ports.StatsGeneration(ctx, cache, "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, gen, next)
	_, found := cache.Get(ctx, ports.StatsCacheKey("user-1", next))
	assert.False(t, found)
}

func TestBreakerPublisher_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	next := &mockPublisher{}
	next.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus down"))

	publisher := messaging.NewBreakerPublisher(next, 2, time.Minute, zap.NewNop())

	assert.Error(t, publisher.Publish(ctx, newEvent("user-1")))
	assert.Error(t, publisher.Publish(ctx, newEvent("user-1")))
	assert.Equal(t, gobreaker.StateOpen, publisher.State())

	err := publisher.Publish(ctx, newEvent("user-1"))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	next.AssertNumberOfCalls(t, "Publish", 2)
}
