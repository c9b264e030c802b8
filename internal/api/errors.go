package api

import (
	"log/slog"
	"net/http"

	"github.com/dawapos/dawapos/internal/model"
)

// storeError maps a store-layer error onto an HTTP status. Validation problems
// are 400, permission problems 403, missing records 404, and state-machine or
// stock conflicts 409. Anything unrecognized is a 500 and gets logged.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case model.IsValidation(err):
		jsonError(w, http.StatusBadRequest, err.Error())
	case model.IsForbidden(err):
		jsonError(w, http.StatusForbidden, err.Error())
	case model.IsNotFound(err):
		jsonError(w, http.StatusNotFound, err.Error())
	case model.IsInsufficientStock(err), model.IsInvariantViolation(err), model.IsInvalidTransition(err):
		jsonError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
