package handlers

import (
	"net/http"
	"time"

	"decivue/application/commands"
	"decivue/application/commands/bus"
	"decivue/application/queries"
	querybus "decivue/application/queries/bus"
	"decivue/pkg/common"
	pkgerrors "decivue/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DecisionHandler serves /decisions and its sub-resources.
type DecisionHandler struct {
	base
}

func NewDecisionHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *DecisionHandler {
	return &DecisionHandler{base: newBase(commandBus, queryBus, errs, logger)}
}

// CreateDecisionRequest is the body of POST /decisions.
type CreateDecisionRequest struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Context         string     `json:"context"`
	Reasoning       string     `json:"reasoning"`
	DecisionType    string     `json:"decision_type"`
	Category        string     `json:"category"`
	Confidence      *int       `json:"confidence"`
	PerceivedRisk   string     `json:"perceived_risk"`
	PerceivedImpact string     `json:"perceived_impact"`
	Deadline        *time.Time `json:"deadline"`
	Assumptions     []string   `json:"assumptions"`
}

// ReviewRequest is the body of POST /decisions/{id}/review.
type ReviewRequest struct {
	Action          string `json:"action"`
	Confidence      *int   `json:"confidence"`
	Notes           string `json:"notes"`
	ExpectedVersion int    `json:"expected_version"`
}

// AddAssumptionRequest is the body of POST /decisions/{id}/assumptions.
type AddAssumptionRequest struct {
	Content string `json:"content"`
}

// CreateDecision handles POST /decisions
func (h *DecisionHandler) CreateDecision(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req CreateDecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Confidence == nil {
		h.fail(w, r, pkgerrors.NewValidationError("confidence is required").WithDetail("field", "confidence"))
		return
	}

	decisionID := uuid.New().String()
	cmd := commands.CreateDecisionCommand{
		DecisionID:      decisionID,
		UserID:          userID,
		Title:           req.Title,
		Description:     req.Description,
		Context:         req.Context,
		Reasoning:       req.Reasoning,
		DecisionType:    req.DecisionType,
		Category:        req.Category,
		Confidence:      *req.Confidence,
		PerceivedRisk:   req.PerceivedRisk,
		PerceivedImpact: req.PerceivedImpact,
		Deadline:        req.Deadline,
		Assumptions:     req.Assumptions,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("Decision created", zap.String("decisionID", decisionID), zap.String("userID", userID))

	h.respondDecision(w, r, userID, decisionID, http.StatusCreated)
}

// ListDecisions handles GET /decisions
func (h *DecisionHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	needsReview, err := queryBool(r, "needs_review")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "page_size")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	params := r.URL.Query()
	result, err := querybus.Ask[*queries.ListDecisionsResult](r.Context(), h.queryBus, queries.ListDecisionsQuery{
		UserID:      userID,
		Search:      params.Get("search"),
		Category:    params.Get("category"),
		Status:      params.Get("status"),
		NeedsReview: needsReview,
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondWithMeta(w, http.StatusOK, result.Decisions, &common.MetaInfo{Pagination: result.Pagination})
}

// GetDecision handles GET /decisions/{decisionID}
func (h *DecisionHandler) GetDecision(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	h.respondDecision(w, r, userID, chi.URLParam(r, "decisionID"), http.StatusOK)
}

// DeleteDecision handles DELETE /decisions/{decisionID}
func (h *DecisionHandler) DeleteDecision(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	cmd := commands.DeleteDecisionCommand{DecisionID: chi.URLParam(r, "decisionID"), UserID: userID}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("Decision deleted", zap.String("decisionID", cmd.DecisionID), zap.String("userID", userID))
	common.RespondNoContent(w)
}

// ReviewDecision handles POST /decisions/{decisionID}/review
func (h *DecisionHandler) ReviewDecision(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req ReviewRequest
	if !h.decode(w, r, &req) {
		return
	}

	decisionID := chi.URLParam(r, "decisionID")
	cmd := commands.ReviewDecisionCommand{
		DecisionID:      decisionID,
		UserID:          userID,
		Action:          req.Action,
		Confidence:      req.Confidence,
		Notes:           req.Notes,
		ExpectedVersion: req.ExpectedVersion,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}

	h.respondDecision(w, r, userID, decisionID, http.StatusOK)
}

// ListEvents handles GET /decisions/{decisionID}/events
func (h *DecisionHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	result, err := querybus.Ask[*queries.ListDecisionEventsResult](r.Context(), h.queryBus, queries.ListDecisionEventsQuery{
		UserID:     userID,
		DecisionID: chi.URLParam(r, "decisionID"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result.Events)
}

// AddAssumption handles POST /decisions/{decisionID}/assumptions
func (h *DecisionHandler) AddAssumption(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req AddAssumptionRequest
	if !h.decode(w, r, &req) {
		return
	}

	decisionID := chi.URLParam(r, "decisionID")
	cmd := commands.AddAssumptionCommand{
		AssumptionID: uuid.New().String(),
		DecisionID:   decisionID,
		UserID:       userID,
		Content:      req.Content,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondDecision(w, r, userID, decisionID, http.StatusCreated)
}

// ValidateAssumption handles POST /decisions/{decisionID}/assumptions/{assumptionID}/validate
func (h *DecisionHandler) ValidateAssumption(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	decisionID := chi.URLParam(r, "decisionID")
	cmd := commands.ValidateAssumptionCommand{
		AssumptionID: chi.URLParam(r, "assumptionID"),
		DecisionID:   decisionID,
		UserID:       userID,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondDecision(w, r, userID, decisionID, http.StatusOK)
}

// respondDecision renders the decision detail after a read or a write.
func (h *DecisionHandler) respondDecision(w http.ResponseWriter, r *http.Request, userID, decisionID string, status int) {
	result, err := querybus.Ask[*queries.GetDecisionResult](r.Context(), h.queryBus, queries.GetDecisionQuery{
		UserID:     userID,
		DecisionID: decisionID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, status, result)
}
