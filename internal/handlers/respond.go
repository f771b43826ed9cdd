package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/errandly/backend/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates the business-error taxonomy to HTTP. Anything
// outside the taxonomy is an internal bug: logged with the full chain,
// returned as an opaque 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		vErr *apperr.ValidationError
		pErr *apperr.PreconditionError
		nErr *apperr.NotFoundError
		uErr *apperr.UnauthorizedError
		cErr *apperr.ConflictError
		xErr *apperr.ExternalError
	)
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": vErr.Reason})
	case errors.As(err, &pErr):
		writeJSON(w, http.StatusConflict, map[string]string{"error": pErr.Reason})
	case errors.As(err, &nErr):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nErr.Error()})
	case errors.As(err, &uErr):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": uErr.Reason})
	case errors.As(err, &cErr):
		writeJSON(w, http.StatusConflict, map[string]string{"error": cErr.Reason})
	case errors.As(err, &xErr):
		logger.Warn("upstream provider failure", "service", xErr.Service, "error", xErr.Err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "a provider we depend on is unavailable, try again shortly"})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
