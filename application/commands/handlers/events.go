// Package handlers implements the command handlers.
package handlers

import (
	"context"

	"decivue/application/ports"
	"decivue/domain/core/entities"
	"decivue/domain/events"

	"go.uber.org/zap"
)

// eventCommitter appends a decision's uncommitted audit entries to the
// log and then tries to publish them. Entries that cannot be published
// stay pending in the outbox for the outbox processor.
type eventCommitter struct {
	log       ports.DecisionEventLog
	publisher ports.EventPublisher
	logger    *zap.Logger
}

func (c eventCommitter) commit(ctx context.Context, decision *entities.Decision) error {
	entries := decision.DecisionEvents()
	if len(entries) > 0 {
		if err := c.log.Append(ctx, entries); err != nil {
			return err
		}
	}
	decision.MarkEventsAsCommitted()
	c.publishEntries(ctx, entries)
	return nil
}

func (c eventCommitter) publishEntries(ctx context.Context, entries []events.DecisionEvent) {
	if c.publisher == nil || len(entries) == 0 {
		return
	}

	batch := make([]events.DomainEvent, len(entries))
	ids := make([]string, len(entries))
	for i, e := range entries {
		batch[i] = e
		ids[i] = e.ID
	}

	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Warn("Failed to publish decision events, left in outbox",
			zap.Int("count", len(entries)),
			zap.Error(err),
		)
		return
	}
	if outbox, ok := c.log.(ports.OutboxStore); ok {
		if err := outbox.MarkPublished(ctx, ids); err != nil {
			c.logger.Warn("Failed to mark events as published", zap.Error(err))
		}
	}
}

// publishBestEffort publishes an integration event and only logs failures.
func publishBestEffort(ctx context.Context, publisher ports.EventPublisher, logger *zap.Logger, event events.DomainEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish event",
			zap.String("event_type", event.GetEventType()),
			zap.String("aggregate_id", event.GetAggregateID()),
			zap.Error(err),
		)
	}
}

// invalidateStats retires the cached stats of a user.
func invalidateStats(ctx context.Context, cache ports.Cache, logger *zap.Logger, userID string) {
	if cache == nil {
		return
	}
	if err := ports.InvalidateStats(ctx, cache, userID); err != nil {
		logger.Warn("Failed to invalidate stats cache", zap.String("user_id", userID), zap.Error(err))
	}
}
