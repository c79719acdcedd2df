// Package messaging moves decision events from the outbox to the event bus.
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

// outboxLockResource names the lease held while draining the outbox.
const outboxLockResource = "decision-outbox"

// OutboxProcessorConfig tunes the processor.
type OutboxProcessorConfig struct {
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

// DefaultOutboxProcessorConfig processes 50 events every 5 seconds.
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize: 50,
		Interval:  5 * time.Second,
		LockTTL:   30 * time.Second,
	}
}

// OutboxProcessor re-publishes decision events that the command handlers
// could not deliver.
type OutboxProcessor struct {
	store     ports.OutboxStore
	publisher ports.EventPublisher
	locker    ports.Locker
	logger    *zap.Logger
	cfg       OutboxProcessorConfig
	observe   func(published, failed int)

	mu          sync.Mutex
	started     bool
	stopped     bool
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewOutboxProcessor creates a processor. locker may be nil when a single
// instance runs.
func NewOutboxProcessor(
	store ports.OutboxStore,
	publisher ports.EventPublisher,
	locker ports.Locker,
	cfg OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	def := DefaultOutboxProcessorConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	return &OutboxProcessor{
		store:       store,
		publisher:   publisher,
		locker:      locker,
		logger:      logger,
		cfg:         cfg,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// OnBatch registers fn to be told the outcome of every non-empty batch.
func (op *OutboxProcessor) OnBatch(fn func(published, failed int)) {
	op.observe = fn
}

// Start begins the background processing of outbox events. It does nothing
// once the processor has been started or stopped.
func (op *OutboxProcessor) Start(ctx context.Context) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.started || op.stopped {
		return
	}
	op.started = true

	op.logger.Info("Starting outbox processor",
		zap.Int("batchSize", op.cfg.BatchSize),
		zap.Duration("interval", op.cfg.Interval),
	)
	go op.processLoop(ctx)
}

// Stop signals the loop and waits for the current batch to finish. It
// returns at once when the loop never ran.
func (op *OutboxProcessor) Stop() {
	op.mu.Lock()
	if !op.stopped {
		op.stopped = true
		op.logger.Info("Stopping outbox processor")
		close(op.stopChan)
	}
	started := op.started
	op.mu.Unlock()

	if started {
		<-op.stoppedChan
	}
}

func (op *OutboxProcessor) processLoop(ctx context.Context) {
	defer close(op.stoppedChan)

	ticker := time.NewTicker(op.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-op.stopChan:
			return
		case <-ticker.C:
			if _, err := op.ProcessOnce(ctx); err != nil {
				op.logger.Error("Error processing outbox batch", zap.Error(err))
			}
		}
	}
}

// ProcessOnce drains one batch and returns the number of events
// published. It does nothing when another instance holds the lease.
func (op *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	if op.locker != nil {
		lease, acquired, err := op.locker.TryLock(ctx, outboxLockResource, op.cfg.LockTTL)
		if err != nil {
			return 0, fmt.Errorf("failed to acquire outbox lock: %w", err)
		}
		if !acquired {
			return 0, nil
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				op.logger.Warn("Failed to release outbox lock", zap.Error(err))
			}
		}()
	}

	pending, err := op.store.PendingEvents(ctx, op.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	published := make([]string, 0, len(pending))
	for _, event := range pending {
		if err := op.publisher.Publish(ctx, event); err != nil {
			op.markFailed(ctx, event, err)
			continue
		}
		published = append(published, event.ID)
	}

	if len(published) > 0 {
		if err := op.store.MarkPublished(ctx, published); err != nil {
			return 0, fmt.Errorf("failed to mark events as published: %w", err)
		}
	}

	if op.observe != nil {
		op.observe(len(published), len(pending)-len(published))
	}
	op.logger.Debug("Completed outbox batch",
		zap.Int("successCount", len(published)),
		zap.Int("failureCount", len(pending)-len(published)),
	)
	return len(published), nil
}

func (op *OutboxProcessor) markFailed(ctx context.Context, event events.DecisionEvent, cause error) {
	if err := op.store.MarkFailed(ctx, event.ID, cause.Error()); err != nil {
		op.logger.Error("Failed to mark event as failed",
			zap.String("eventID", event.ID),
			zap.Error(err),
		)
		return
	}
	op.logger.Warn("Outbox publish failed",
		zap.String("eventID", event.ID),
		zap.String("eventType", event.GetEventType()),
		zap.Error(cause),
	)
}
