package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"decivue/application/ports"
	"decivue/domain/events"

	"go.uber.org/zap"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// handlerTimeout bounds a single subscriber call.
const handlerTimeout = 30 * time.Second

// LocalEventBus dispatches events to in-process subscribers. It is used
// when no external event bus is configured.
type LocalEventBus struct {
	mu       sync.RWMutex
	handlers map[string][]ports.EventHandler
	logger   *zap.Logger
}

func NewLocalEventBus(logger *zap.Logger) *LocalEventBus {
	return &LocalEventBus{
		handlers: make(map[string][]ports.EventHandler),
		logger:   logger,
	}
}

var _ ports.EventBus = (*LocalEventBus)(nil)

// Subscribe registers handler for eventType, or for every type with
// AllEvents.
func (b *LocalEventBus) Subscribe(eventType string, handler ports.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("Registered event handler", zap.String("eventType", eventType))
}

// Publish runs every matching handler. All handlers run even when one
// fails; the first error is returned.
func (b *LocalEventBus) Publish(ctx context.Context, event events.DomainEvent) error {
	b.mu.RLock()
	handlers := make([]ports.EventHandler, 0, len(b.handlers[event.GetEventType()])+len(b.handlers[AllEvents]))
	handlers = append(handlers, b.handlers[event.GetEventType()]...)
	handlers = append(handlers, b.handlers[AllEvents]...)
	b.mu.RUnlock()

	var firstErr error
	for _, h := range handlers {
		handlerCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
		err := h.Handle(handlerCtx, event)
		cancel()
		if err != nil {
			b.logger.Warn("Event handler failed",
				zap.String("eventType", event.GetEventType()),
				zap.String("aggregateID", event.GetAggregateID()),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler for %s failed: %w", event.GetEventType(), err)
			}
		}
	}
	return firstErr
}

func (b *LocalEventBus) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	var firstErr error
	for _, e := range batch {
		if err := b.Publish(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StatsInvalidator retires a user's cached stats when one of their
// decisions changes outside the command handlers, e.g. events replayed
// from the outbox by another instance.
func StatsInvalidator(cache ports.Cache) ports.EventHandler {
	return ports.EventHandlerFunc(func(ctx context.Context, event events.DomainEvent) error {
		var userID string
		switch e := event.(type) {
		case events.DecisionEvent:
			userID = e.UserID
		case events.DecisionDeleted:
			userID = e.UserID
		default:
			return nil
		}
		return ports.InvalidateStats(ctx, cache, userID)
	})
}
