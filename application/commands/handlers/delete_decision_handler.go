package handlers

import (
	"context"

	"decivue/application/commands"
	"decivue/application/ports"
	"decivue/application/sagas"
	"decivue/domain/core/valueobjects"
	"decivue/domain/events"

	"go.uber.org/zap"
)

// DeleteDecisionHandler handles decision deletion
type DeleteDecisionHandler struct {
	decisionRepo   ports.DecisionRepository
	assumptionRepo ports.AssumptionRepository
	publisher      ports.EventPublisher
	cache          ports.Cache
	clock          ports.Clock
	logger         *zap.Logger
}

func NewDeleteDecisionHandler(
	decisionRepo ports.DecisionRepository,
	assumptionRepo ports.AssumptionRepository,
	publisher ports.EventPublisher,
	cache ports.Cache,
	clock ports.Clock,
	logger *zap.Logger,
) *DeleteDecisionHandler {
	return &DeleteDecisionHandler{
		decisionRepo:   decisionRepo,
		assumptionRepo: assumptionRepo,
		publisher:      publisher,
		cache:          cache,
		clock:          clock,
		logger:         logger,
	}
}

// Handle removes the decision and its assumptions. The audit log is kept.
func (h *DeleteDecisionHandler) Handle(ctx context.Context, cmd commands.DeleteDecisionCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	decisionID, err := valueobjects.ParseDecisionID(cmd.DecisionID)
	if err != nil {
		return err
	}

	decision, err := h.decisionRepo.GetByID(ctx, cmd.UserID, decisionID)
	if err != nil {
		return err
	}

	assumptions, err := h.assumptionRepo.ListByDecision(ctx, decisionID)
	if err != nil {
		return err
	}

	// Children go first so no assumption outlives its decision. They are
	// put back when the decision itself cannot be removed.
	saga := sagas.New("delete-decision", h.logger).
		AddStep(sagas.Step{
			Name:    "delete-assumptions",
			Execute: func(ctx context.Context) error { return h.assumptionRepo.DeleteByDecision(ctx, decisionID) },
			Compensate: func(ctx context.Context) error {
				for _, a := range assumptions {
					if err := h.assumptionRepo.Save(ctx, a); err != nil {
						return err
					}
				}
				return nil
			},
		}).
		AddStep(sagas.Step{
			Name:    "delete-decision",
			Execute: func(ctx context.Context) error { return h.decisionRepo.Delete(ctx, cmd.UserID, decisionID) },
		})
	if err := saga.Run(ctx); err != nil {
		return err
	}

	publishBestEffort(ctx, h.publisher, h.logger, events.NewDecisionDeleted(
		decisionID, cmd.UserID, decision.Content().Title(), decision.Version(), h.clock.Now(),
	))
	invalidateStats(ctx, h.cache, h.logger, cmd.UserID)

	h.logger.Info("Decision deleted",
		zap.String("decisionID", cmd.DecisionID),
		zap.String("userID", cmd.UserID),
	)
	return nil
}
