// Package handlers adapts HTTP requests to commands and queries.
package handlers

import (
	"net/http"
	"strconv"

	"decivue/application/commands/bus"
	querybus "decivue/application/queries/bus"
	"decivue/pkg/auth"
	"decivue/pkg/common"
	pkgerrors "decivue/pkg/errors"

	"go.uber.org/zap"
)

// base carries what every resource handler needs.
type base struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

func newBase(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler, logger *zap.Logger) base {
	return base{commandBus: commandBus, queryBus: queryBus, errors: errs, logger: logger}
}

// userID returns the authenticated caller or renders 401.
func (b base) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		b.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("Unauthorized"))
		return "", false
	}
	return user.UserID, true
}

// decode parses the request body into v, rendering 400 on failure.
func (b base) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := common.ParseJSONBody(w, r, v, common.DefaultMaxBodyBytes); err != nil {
		b.errors.Handle(w, r, pkgerrors.NewValidationError("Invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (b base) fail(w http.ResponseWriter, r *http.Request, err error) {
	b.errors.Handle(w, r, err)
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, pkgerrors.NewValidationErrorf("%s must be a boolean", name)
	}
	return v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, pkgerrors.NewValidationErrorf("%s must be a non-negative integer", name)
	}
	return v, nil
}
