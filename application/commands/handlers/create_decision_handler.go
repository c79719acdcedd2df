package handlers

import (
	"context"
	"strings"

	"decivue/application/commands"
	"decivue/application/ports"
	"decivue/application/sagas"
	"decivue/domain/config"
	"decivue/domain/core/entities"
	"decivue/domain/core/lifecycle"
	"decivue/domain/core/valueobjects"
	pkgerrors "decivue/pkg/errors"

	"go.uber.org/zap"
)

// CreateDecisionHandler handles CreateDecisionCommand.
type CreateDecisionHandler struct {
	decisionRepo   ports.DecisionRepository
	assumptionRepo ports.AssumptionRepository
	committer      eventCommitter
	cache          ports.Cache
	engine         *lifecycle.Engine
	cfg            *config.DomainConfig
	clock          ports.Clock
	logger         *zap.Logger
}

func NewCreateDecisionHandler(
	decisionRepo ports.DecisionRepository,
	assumptionRepo ports.AssumptionRepository,
	eventLog ports.DecisionEventLog,
	publisher ports.EventPublisher,
	cache ports.Cache,
	engine *lifecycle.Engine,
	cfg *config.DomainConfig,
	clock ports.Clock,
	logger *zap.Logger,
) *CreateDecisionHandler {
	return &CreateDecisionHandler{
		decisionRepo:   decisionRepo,
		assumptionRepo: assumptionRepo,
		committer:      eventCommitter{log: eventLog, publisher: publisher, logger: logger},
		cache:          cache,
		engine:         engine,
		cfg:            cfg,
		clock:          clock,
		logger:         logger,
	}
}

// Handle creates the decision, its non-empty assumptions and the created
// event.
func (h *CreateDecisionHandler) Handle(ctx context.Context, cmd commands.CreateDecisionCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	now := h.clock.Now()

	decision, err := entities.NewDecision(entities.NewDecisionParams{
		ID:              cmd.DecisionID,
		UserID:          cmd.UserID,
		Title:           cmd.Title,
		Description:     cmd.Description,
		Context:         cmd.Context,
		Reasoning:       cmd.Reasoning,
		DecisionType:    cmd.DecisionType,
		Category:        cmd.Category,
		Confidence:      cmd.Confidence,
		PerceivedRisk:   cmd.PerceivedRisk,
		PerceivedImpact: cmd.PerceivedImpact,
		Deadline:        cmd.Deadline,
	}, h.engine, h.cfg, now)
	if err != nil {
		return err
	}

	// Build every assumption before writing anything so a bad one rejects
	// the whole command.
	var assumptions []*entities.Assumption
	for _, text := range cmd.Assumptions {
		if strings.TrimSpace(text) == "" {
			continue
		}
		a, err := entities.NewAssumption(valueobjects.AssumptionID{}, decision.ID(), text, h.cfg, now)
		if err != nil {
			return err
		}
		assumptions = append(assumptions, a)
	}
	if h.cfg != nil && len(assumptions) > h.cfg.MaxAssumptionsPerCreate {
		return pkgerrors.NewValidationErrorf("at most %d assumptions can be recorded with a decision", h.cfg.MaxAssumptionsPerCreate)
	}

	saveAssumptions := func(ctx context.Context) error {
		for _, a := range assumptions {
			if err := h.assumptionRepo.Save(ctx, a); err != nil {
				return err
			}
		}
		return nil
	}

	// The stores share no transaction, so a failed write removes what the
	// earlier steps stored.
	saga := sagas.New("create-decision", h.logger).
		AddStep(sagas.Step{
			Name:       "save-decision",
			Execute:    func(ctx context.Context) error { return h.decisionRepo.Save(ctx, decision) },
			Compensate: func(ctx context.Context) error { return h.decisionRepo.Delete(ctx, cmd.UserID, decision.ID()) },
			Attempts:   2,
		}).
		AddStep(sagas.Step{
			Name:       "save-assumptions",
			Execute:    saveAssumptions,
			Compensate: func(ctx context.Context) error { return h.assumptionRepo.DeleteByDecision(ctx, decision.ID()) },
		}).
		AddStep(sagas.Step{
			Name:    "record-created",
			Execute: func(ctx context.Context) error { return h.committer.commit(ctx, decision) },
		})
	if err := saga.Run(ctx); err != nil {
		return err
	}
	invalidateStats(ctx, h.cache, h.logger, cmd.UserID)

	h.logger.Info("Decision created",
		zap.String("decisionID", decision.ID().String()),
		zap.String("userID", cmd.UserID),
		zap.String("category", string(decision.Category())),
		zap.Int("assumptions", len(assumptions)),
	)
	return nil
}
