package ports

import (
	"context"
	"time"

	"decivue/domain/core/entities"
	"decivue/domain/core/valueobjects"
	"decivue/domain/events"

	"github.com/google/uuid"
)

// DecisionRepository defines decision persistence. This is a port in
// hexagonal architecture: the domain does not know about the storage.
type DecisionRepository interface {
	// Save creates a new decision or updates an existing one. Updates are
	// conditional on the version the decision was loaded at and fail with
	// a concurrency conflict when the stored version differs.
	Save(ctx context.Context, decision *entities.Decision) error

	// GetByID returns the decision owned by userID. A decision owned by
	// someone else is reported as not found.
	GetByID(ctx context.Context, userID string, id valueobjects.DecisionID) (*entities.Decision, error)

	// List returns the user's decisions ordered by creation time, newest
	// first. Status filtering is left to the caller because it depends on
	// the projected status.
	List(ctx context.Context, userID string, filter DecisionFilter) ([]*entities.Decision, error)

	// Delete removes the decision. The audit log is not touched.
	Delete(ctx context.Context, userID string, id valueobjects.DecisionID) error
}

// DecisionFilter narrows a decision listing.
type DecisionFilter struct {
	Search   string
	Category *valueobjects.Category
}

// AssumptionRepository defines assumption persistence.
type AssumptionRepository interface {
	Save(ctx context.Context, assumption *entities.Assumption) error
	GetByID(ctx context.Context, decisionID valueobjects.DecisionID, id valueobjects.AssumptionID) (*entities.Assumption, error)
	ListByDecision(ctx context.Context, decisionID valueobjects.DecisionID) ([]*entities.Assumption, error)
	DeleteByDecision(ctx context.Context, decisionID valueobjects.DecisionID) error
}

// InsightRepository stores insights produced by an external generator.
type InsightRepository interface {
	Save(ctx context.Context, insight *entities.Insight) error

	// GetByID returns the insight owned by userID.
	GetByID(ctx context.Context, userID string, id valueobjects.InsightID) (*entities.Insight, error)

	// ListForUser returns insights newest first.
	ListForUser(ctx context.Context, userID string, filter InsightFilter) ([]*entities.Insight, error)
}

// InsightFilter narrows an insight listing.
type InsightFilter struct {
	DecisionID       *valueobjects.DecisionID
	IncludeDismissed bool
	Limit            int
}

// DecisionEventLog is the append-only audit trail of decisions. There is
// deliberately no update or delete operation.
type DecisionEventLog interface {
	// Append stores entries. Appending an entry whose ID already exists
	// fails.
	Append(ctx context.Context, entries []events.DecisionEvent) error

	// ListByDecision returns entries newest first.
	ListByDecision(ctx context.Context, decisionID valueobjects.DecisionID) ([]events.DecisionEvent, error)
}

// OutboxStore is implemented by event logs that track publication state.
type OutboxStore interface {
	// PendingEvents returns up to limit entries not yet published, oldest
	// first.
	PendingEvents(ctx context.Context, limit int) ([]events.DecisionEvent, error)

	// MarkPublished flags the entries as delivered to the event bus.
	MarkPublished(ctx context.Context, eventIDs []string) error

	// MarkFailed records a failed publish attempt. After
	// MaxPublishAttempts failures the entry is no longer pending.
	MarkFailed(ctx context.Context, eventID, reason string) error
}

// MaxPublishAttempts bounds outbox retries per entry.
const MaxPublishAttempts = 5

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(ctx context.Context, event events.DomainEvent) error
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// EventBus is an in-process publisher with subscriptions.
type EventBus interface {
	EventPublisher
	Subscribe(eventType string, handler EventHandler)
}

// EventHandler processes a published event.
type EventHandler interface {
	Handle(ctx context.Context, event events.DomainEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event events.DomainEvent) error

func (f EventHandlerFunc) Handle(ctx context.Context, event events.DomainEvent) error {
	return f(ctx, event)
}

// Cache is a byte oriented key/value cache with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Clock returns the current time. Handlers take it as a dependency so
// decay can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// statsGenerationTTL bounds how long an idle user's stats generation is kept.
const statsGenerationTTL = 24 * time.Hour

func statsGenerationKey(userID string) string {
	return "decision_stats_gen:" + userID
}

// StatsCacheKey is the cache key of a user's decision stats computed under
// generation gen.
func StatsCacheKey(userID, gen string) string {
	return "decision_stats:" + userID + ":" + gen
}

// StatsGeneration returns the user's current stats generation and starts a
// new one when none is live.
func StatsGeneration(ctx context.Context, cache Cache, userID string) (string, error) {
	if raw, ok := cache.Get(ctx, statsGenerationKey(userID)); ok && len(raw) > 0 {
		return string(raw), nil
	}
	return newStatsGeneration(ctx, cache, userID)
}

// InvalidateStats starts a new stats generation for userID. Stats computed
// under an earlier generation can no longer be read back, even when they
// are written after this call.
func InvalidateStats(ctx context.Context, cache Cache, userID string) error {
	_, err := newStatsGeneration(ctx, cache, userID)
	return err
}

func newStatsGeneration(ctx context.Context, cache Cache, userID string) (string, error) {
	gen := uuid.NewString()
	if err := cache.Set(ctx, statsGenerationKey(userID), []byte(gen), statsGenerationTTL); err != nil {
		return "", err
	}
	return gen, nil
}

// Locker hands out leases on named resources shared between processes.
type Locker interface {
	// TryLock returns acquired=false without error when another owner
	// holds an unexpired lease.
	TryLock(ctx context.Context, resource string, ttl time.Duration) (lease Lease, acquired bool, err error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}
