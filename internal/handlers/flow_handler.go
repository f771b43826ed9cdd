package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/errandly/backend/internal/flows"
	"github.com/errandly/backend/internal/middleware"
	"github.com/errandly/backend/internal/models"
	"github.com/errandly/backend/internal/session"
)

// FlowService is the flow manager surface used by the HTTP layer.
type FlowService interface {
	Begin(ctx context.Context, account *models.Account, flow session.Flow) (*flows.StepResult, error)
	Advance(ctx context.Context, ownerID uuid.UUID, input string) (*flows.StepResult, error)
	Cancel(ctx context.Context, ownerID uuid.UUID) error
}

// FlowHandler serves the conversational flow endpoints.
type FlowHandler struct {
	Service FlowService
	Logger  *slog.Logger
}

// Begin handles POST /v1/flows/{kind}.
func (h *FlowHandler) Begin(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	kind := strings.TrimPrefix(r.URL.Path, "/v1/flows/")
	res, err := h.Service.Begin(r.Context(), acc, session.Flow(kind))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type advanceRequest struct {
	Input string `json:"input"`
}

// Advance handles POST /v1/flows/steps.
func (h *FlowHandler) Advance(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	res, err := h.Service.Advance(r.Context(), acc.ID, req.Input)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CancelFlow handles DELETE /v1/flows.
func (h *FlowHandler) CancelFlow(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	if err := h.Service.Cancel(r.Context(), acc.ID); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
