package messaging

import (
	"context"
	"time"

	"decivue/application/ports"
	"decivue/domain/events"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerPublisher stops calling a failing event bus for a while so
// command handlers do not wait on it. Rejected events stay in the outbox.
type BreakerPublisher struct {
	next    ports.EventPublisher
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerPublisher trips after consecutiveFailures failed publishes and
// probes again after openTimeout.
func NewBreakerPublisher(next ports.EventPublisher, consecutiveFailures uint32, openTimeout time.Duration, logger *zap.Logger) *BreakerPublisher {
	settings := gobreaker.Settings{
		Name:        "event-publisher",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerPublisher{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

var _ ports.EventPublisher = (*BreakerPublisher)(nil)

func (p *BreakerPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.next.Publish(ctx, event)
	})
	return err
}

func (p *BreakerPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.next.PublishBatch(ctx, batch)
	})
	return err
}

// State reports the breaker state for health checks.
func (p *BreakerPublisher) State() gobreaker.State {
	return p.breaker.State()
}
