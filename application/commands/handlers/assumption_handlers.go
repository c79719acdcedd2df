package handlers

import (
	"context"

	"decivue/application/commands"
	"decivue/application/ports"
	"decivue/domain/config"
	"decivue/domain/core/entities"
	"decivue/domain/core/valueobjects"
	"decivue/domain/events"
	pkgerrors "decivue/pkg/errors"

	"go.uber.org/zap"
)

// AddAssumptionHandler attaches assumptions to existing decisions.
type AddAssumptionHandler struct {
	decisionRepo   ports.DecisionRepository
	assumptionRepo ports.AssumptionRepository
	cfg            *config.DomainConfig
	clock          ports.Clock
	logger         *zap.Logger
}

func NewAddAssumptionHandler(
	decisionRepo ports.DecisionRepository,
	assumptionRepo ports.AssumptionRepository,
	cfg *config.DomainConfig,
	clock ports.Clock,
	logger *zap.Logger,
) *AddAssumptionHandler {
	return &AddAssumptionHandler{
		decisionRepo:   decisionRepo,
		assumptionRepo: assumptionRepo,
		cfg:            cfg,
		clock:          clock,
		logger:         logger,
	}
}

func (h *AddAssumptionHandler) Handle(ctx context.Context, cmd commands.AddAssumptionCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	decision, err := loadLiveDecision(ctx, h.decisionRepo, cmd.UserID, cmd.DecisionID, "add an assumption to")
	if err != nil {
		return err
	}
	assumptionID, err := valueobjects.ParseAssumptionID(cmd.AssumptionID)
	if err != nil {
		return err
	}

	a, err := entities.NewAssumption(assumptionID, decision.ID(), cmd.Content, h.cfg, h.clock.Now())
	if err != nil {
		return err
	}
	if err := h.assumptionRepo.Save(ctx, a); err != nil {
		return err
	}

	h.logger.Info("Assumption added",
		zap.String("decisionID", cmd.DecisionID),
		zap.String("assumptionID", cmd.AssumptionID),
	)
	return nil
}

// ValidateAssumptionHandler marks assumptions as validated.
type ValidateAssumptionHandler struct {
	decisionRepo   ports.DecisionRepository
	assumptionRepo ports.AssumptionRepository
	publisher      ports.EventPublisher
	clock          ports.Clock
	logger         *zap.Logger
}

func NewValidateAssumptionHandler(
	decisionRepo ports.DecisionRepository,
	assumptionRepo ports.AssumptionRepository,
	publisher ports.EventPublisher,
	clock ports.Clock,
	logger *zap.Logger,
) *ValidateAssumptionHandler {
	return &ValidateAssumptionHandler{
		decisionRepo:   decisionRepo,
		assumptionRepo: assumptionRepo,
		publisher:      publisher,
		clock:          clock,
		logger:         logger,
	}
}

// Handle validates the assumption. Validating an already validated
// assumption is a no-op.
func (h *ValidateAssumptionHandler) Handle(ctx context.Context, cmd commands.ValidateAssumptionCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	decision, err := loadLiveDecision(ctx, h.decisionRepo, cmd.UserID, cmd.DecisionID, "validate an assumption of")
	if err != nil {
		return err
	}
	assumptionID, err := valueobjects.ParseAssumptionID(cmd.AssumptionID)
	if err != nil {
		return err
	}

	a, err := h.assumptionRepo.GetByID(ctx, decision.ID(), assumptionID)
	if err != nil {
		return err
	}
	now := h.clock.Now()
	if !a.Validate(now) {
		return nil
	}
	if err := h.assumptionRepo.Save(ctx, a); err != nil {
		return err
	}

	publishBestEffort(ctx, h.publisher, h.logger, events.NewAssumptionValidated(a.ID(), decision.ID(), cmd.UserID, now))
	h.logger.Info("Assumption validated",
		zap.String("decisionID", cmd.DecisionID),
		zap.String("assumptionID", cmd.AssumptionID),
	)
	return nil
}

// loadLiveDecision fetches an owned decision and rejects invalidated ones.
func loadLiveDecision(ctx context.Context, repo ports.DecisionRepository, userID, rawID, action string) (*entities.Decision, error) {
	id, err := valueobjects.ParseDecisionID(rawID)
	if err != nil {
		return nil, err
	}
	decision, err := repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if decision.Status().IsTerminal() {
		return nil, pkgerrors.NewInvalidTransitionError(action, string(decision.Status()))
	}
	return decision, nil
}
