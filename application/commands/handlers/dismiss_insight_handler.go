package handlers

import (
	"context"

	"decivue/application/commands"
	"decivue/application/ports"
	"decivue/domain/core/valueobjects"
	"decivue/domain/events"

	"go.uber.org/zap"
)

// DismissInsightHandler hides insights from the user's views.
type DismissInsightHandler struct {
	insightRepo ports.InsightRepository
	publisher   ports.EventPublisher
	clock       ports.Clock
	logger      *zap.Logger
}

func NewDismissInsightHandler(
	insightRepo ports.InsightRepository,
	publisher ports.EventPublisher,
	clock ports.Clock,
	logger *zap.Logger,
) *DismissInsightHandler {
	return &DismissInsightHandler{
		insightRepo: insightRepo,
		publisher:   publisher,
		clock:       clock,
		logger:      logger,
	}
}

func (h *DismissInsightHandler) Handle(ctx context.Context, cmd commands.DismissInsightCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	id, err := valueobjects.ParseInsightID(cmd.InsightID)
	if err != nil {
		return err
	}

	insight, err := h.insightRepo.GetByID(ctx, cmd.UserID, id)
	if err != nil {
		return err
	}
	now := h.clock.Now()
	if !insight.Dismiss(now) {
		return nil
	}
	if err := h.insightRepo.Save(ctx, insight); err != nil {
		return err
	}

	publishBestEffort(ctx, h.publisher, h.logger, events.NewInsightDismissed(id, cmd.UserID, now))
	h.logger.Info("Insight dismissed",
		zap.String("insightID", cmd.InsightID),
		zap.String("userID", cmd.UserID),
	)
	return nil
}
