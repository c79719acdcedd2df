package handlers

import (
	"net/http"

	"decivue/application/queries"
	querybus "decivue/application/queries/bus"
	"decivue/pkg/common"
	pkgerrors "decivue/pkg/errors"

	"go.uber.org/zap"
)

// StatsHandler serves the read-only overview endpoints.
type StatsHandler struct {
	base
}

func NewStatsHandler(queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{base: newBase(nil, queryBus, errs, logger)}
}

// GetStats handles GET /stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	result, err := querybus.Ask[*queries.GetDecisionStatsResult](r.Context(), h.queryBus, queries.GetDecisionStatsQuery{UserID: userID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result.Stats)
}

// GetDashboard handles GET /dashboard
func (h *StatsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	result, err := querybus.Ask[*queries.GetDashboardResult](r.Context(), h.queryBus, queries.GetDashboardQuery{UserID: userID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// ComputeLifeScore handles POST /life-score
func (h *StatsHandler) ComputeLifeScore(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.userID(w, r); !ok {
		return
	}
	var q queries.ComputeLifeScoreQuery
	if !h.decode(w, r, &q) {
		return
	}
	result, err := querybus.Ask[*queries.ComputeLifeScoreResult](r.Context(), h.queryBus, q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}
