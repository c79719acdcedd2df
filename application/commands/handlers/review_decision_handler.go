package handlers

import (
	"context"

	"decivue/application/commands"
	"decivue/application/ports"
	"decivue/application/sagas"
	"decivue/domain/core/entities"
	"decivue/domain/core/lifecycle"
	"decivue/domain/core/valueobjects"
	pkgerrors "decivue/pkg/errors"

	"go.uber.org/zap"
)

// ReviewDecisionHandler applies reaffirm, revise and invalidate actions.
type ReviewDecisionHandler struct {
	decisionRepo ports.DecisionRepository
	committer    eventCommitter
	cache        ports.Cache
	engine       *lifecycle.Engine
	clock        ports.Clock
	logger       *zap.Logger
}

func NewReviewDecisionHandler(
	decisionRepo ports.DecisionRepository,
	eventLog ports.DecisionEventLog,
	publisher ports.EventPublisher,
	cache ports.Cache,
	engine *lifecycle.Engine,
	clock ports.Clock,
	logger *zap.Logger,
) *ReviewDecisionHandler {
	return &ReviewDecisionHandler{
		decisionRepo: decisionRepo,
		committer:    eventCommitter{log: eventLog, publisher: publisher, logger: logger},
		cache:        cache,
		engine:       engine,
		clock:        clock,
		logger:       logger,
	}
}

// Handle loads the decision, applies the action to its decayed state and
// commits the result with an optimistic version check.
func (h *ReviewDecisionHandler) Handle(ctx context.Context, cmd commands.ReviewDecisionCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	kind, err := valueobjects.ParseReviewAction(cmd.Action)
	if err != nil {
		return err
	}
	action := lifecycle.Action{Kind: kind, Notes: cmd.Notes}
	if cmd.Confidence != nil {
		c, err := valueobjects.NewConfidence(*cmd.Confidence)
		if err != nil {
			return err
		}
		action.Confidence = &c
	}

	decisionID, err := valueobjects.ParseDecisionID(cmd.DecisionID)
	if err != nil {
		return err
	}
	decision, err := h.decisionRepo.GetByID(ctx, cmd.UserID, decisionID)
	if err != nil {
		return err
	}
	if cmd.ExpectedVersion > 0 && cmd.ExpectedVersion != decision.Version() {
		return pkgerrors.NewConcurrencyConflictError("decision", cmd.ExpectedVersion, decision.Version())
	}

	previous := decision.Status()
	before := decision.Snapshot()
	applied, err := decision.Review(h.engine, action, h.clock.Now())
	if err != nil {
		return err
	}
	if !applied {
		h.logger.Debug("Review was a no-op",
			zap.String("decisionID", cmd.DecisionID),
			zap.String("action", cmd.Action),
		)
		return nil
	}

	// An unlogged transition must not stay stored, so a failed append puts
	// the loaded state back with a version-checked write.
	stored := decision.Version()
	restore := func(ctx context.Context) error {
		prior, err := entities.RestoreDecision(before, stored)
		if err != nil {
			return err
		}
		return h.decisionRepo.Save(ctx, prior)
	}
	saga := sagas.New("review-decision", h.logger).
		AddStep(sagas.Step{
			Name:       "save-decision",
			Execute:    func(ctx context.Context) error { return h.decisionRepo.Save(ctx, decision) },
			Compensate: restore,
		}).
		AddStep(sagas.Step{
			Name:    "record-review",
			Execute: func(ctx context.Context) error { return h.committer.commit(ctx, decision) },
		})
	if err := saga.Run(ctx); err != nil {
		return err
	}
	invalidateStats(ctx, h.cache, h.logger, cmd.UserID)

	h.logger.Info("Decision reviewed",
		zap.String("decisionID", cmd.DecisionID),
		zap.String("userID", cmd.UserID),
		zap.String("action", cmd.Action),
		zap.String("storedStatus", string(previous)),
		zap.String("newStatus", string(decision.Status())),
		zap.Int("version", decision.Version()),
	)
	return nil
}
