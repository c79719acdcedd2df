package handlers

import (
	"net/http"

	"decivue/application/commands"
	"decivue/application/commands/bus"
	"decivue/application/queries"
	querybus "decivue/application/queries/bus"
	"decivue/pkg/common"
	pkgerrors "decivue/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// InsightHandler serves /insights.
type InsightHandler struct {
	base
}

func NewInsightHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *InsightHandler {
	return &InsightHandler{base: newBase(commandBus, queryBus, errs, logger)}
}

// ListInsights handles GET /insights
func (h *InsightHandler) ListInsights(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	includeDismissed, err := queryBool(r, "include_dismissed")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := querybus.Ask[*queries.ListInsightsResult](r.Context(), h.queryBus, queries.ListInsightsQuery{
		UserID:           userID,
		DecisionID:       r.URL.Query().Get("decision_id"),
		IncludeDismissed: includeDismissed,
		Limit:            limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result.Insights)
}

// DismissInsight handles POST /insights/{insightID}/dismiss
func (h *InsightHandler) DismissInsight(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	cmd := commands.DismissInsightCommand{InsightID: chi.URLParam(r, "insightID"), UserID: userID}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondNoContent(w)
}
