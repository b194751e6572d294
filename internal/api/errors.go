package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: msg, Details: details}})
}

// handleError maps importer errors onto status codes.
func handleError(w http.ResponseWriter, err error) {
	var verr *importer.ValidationError
	if errors.As(err, &verr) {
		var details map[string]any
		if verr.Row >= 0 {
			details = map[string]any{"row": verr.Row}
		}
		writeError(w, http.StatusUnprocessableEntity, verr.Code, verr.Message, details)
		return
	}

	var rerr *importer.RunError
	if errors.As(err, &rerr) {
		writeError(w, http.StatusBadGateway, "run_failed", rerr.Err.Error(), map[string]any{"run_id": rerr.Run.ID})
		return
	}

	switch {
	case errors.Is(err, importer.ErrRunNotFound),
		errors.Is(err, importer.ErrRecordNotFound),
		errors.Is(err, importer.ErrCompanyNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, importer.ErrRecordNotInConflict):
		writeError(w, http.StatusConflict, "record_not_in_conflict", err.Error(), nil)
	case errors.Is(err, importer.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, importer.ErrDryRunPublish):
		writeError(w, http.StatusConflict, "dry_run", err.Error(), nil)
	case errors.Is(err, importer.ErrNotManualRun):
		writeError(w, http.StatusConflict, "not_manual_run", err.Error(), nil)
	default:
		zap.L().Error("api: internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, "bad_request", msg, nil)
}
