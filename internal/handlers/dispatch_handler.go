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
)

// DispatchService is the dispatcher surface used by the HTTP layer.
type DispatchService interface {
	SubmitOffer(ctx context.Context, workerID, taskID uuid.UUID, price int64, vehicleType *models.VehicleType) (*models.Offer, error)
	AcceptOffer(ctx context.Context, customerID, offerID uuid.UUID) (*models.Channel, error)
	ConfirmInProgress(ctx context.Context, workerID, taskID uuid.UUID) error
	MarkCompleted(ctx context.Context, customerID, taskID uuid.UUID) (*models.Task, error)
	CancelTask(ctx context.Context, customerID, taskID uuid.UUID) error
	RaiseDispute(ctx context.Context, callerAccountID, taskID uuid.UUID) error
	ResolveDispute(ctx context.Context, taskID uuid.UUID, outcome models.TaskStatus) error
	Rate(ctx context.Context, customerID, taskID uuid.UUID, stars int, comment string) error
}

// TaskReader is the read-only task access for GET endpoints.
type TaskReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Task, error)
}

// RatingOpener opens the rating flow once a task completes.
type RatingOpener interface {
	BeginRating(ctx context.Context, account *models.Account, taskID, workerID uuid.UUID) (*flows.StepResult, error)
}

// DispatchHandler serves the task lifecycle endpoints.
type DispatchHandler struct {
	Service DispatchService
	Tasks   TaskReader
	Flows   RatingOpener
	Logger  *slog.Logger
}

// --- POST /v1/tasks/{id}/offers ---

type submitOfferRequest struct {
	Price       int64   `json:"price"`
	VehicleType *string `json:"vehicle_type,omitempty"`
}

type offerResponse struct {
	OfferID   string `json:"offer_id"`
	TaskID    string `json:"task_id"`
	Price     int64  `json:"price"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expires_at"`
}

func (h *DispatchHandler) SubmitOffer(w http.ResponseWriter, r *http.Request) {
	worker := middleware.WorkerFromCtx(r.Context())
	if worker == nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "worker registration required"})
		return
	}
	taskID, ok := extractPathID(r, "/v1/tasks/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return
	}

	var req submitOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	var vt *models.VehicleType
	if req.VehicleType != nil {
		v := models.VehicleType(*req.VehicleType)
		vt = &v
	}

	offer, err := h.Service.SubmitOffer(r.Context(), worker.ID, taskID, req.Price, vt)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, offerResponse{
		OfferID:   offer.ID.String(),
		TaskID:    offer.TaskID.String(),
		Price:     offer.Price,
		Status:    string(offer.Status),
		ExpiresAt: offer.ExpiresAt.Format(timeLayout),
	})
}

// --- POST /v1/offers/{id}/accept ---

type acceptOfferResponse struct {
	TaskID    string `json:"task_id"`
	ChannelID string `json:"channel_id"`
}

func (h *DispatchHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	offerID, ok := extractPathID(r, "/v1/offers/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offer id"})
		return
	}

	channel, err := h.Service.AcceptOffer(r.Context(), acc.ID, offerID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptOfferResponse{
		TaskID:    channel.TaskID.String(),
		ChannelID: channel.ID.String(),
	})
}

// --- POST /v1/tasks/{id}/progress ---

func (h *DispatchHandler) ConfirmInProgress(w http.ResponseWriter, r *http.Request) {
	worker := middleware.WorkerFromCtx(r.Context())
	if worker == nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "worker registration required"})
		return
	}
	taskID, ok := extractPathID(r, "/v1/tasks/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return
	}
	if err := h.Service.ConfirmInProgress(r.Context(), worker.ID, taskID); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID.String(), "status": string(models.TaskStatusInProgress)})
}

// --- POST /v1/tasks/{id}/complete ---

type completeResponse struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	RatingPrompt string `json:"rating_prompt,omitempty"`
}

// MarkCompleted finishes the task and opens the rating flow in one round
// trip; a flow that can't open (another one active) is logged, not fatal.
func (h *DispatchHandler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	taskID, ok := extractPathID(r, "/v1/tasks/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return
	}

	task, err := h.Service.MarkCompleted(r.Context(), acc.ID, taskID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}

	resp := completeResponse{TaskID: task.ID.String(), Status: string(task.Status)}
	if task.AssignedWorkerID != nil {
		if res, err := h.Flows.BeginRating(r.Context(), acc, task.ID, *task.AssignedWorkerID); err != nil {
			h.Logger.Warn("open rating flow", "task_id", task.ID, "error", err)
		} else {
			resp.RatingPrompt = res.Prompt
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- POST /v1/tasks/{id}/cancel ---

func (h *DispatchHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	taskID, ok := extractPathID(r, "/v1/tasks/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return
	}
	if err := h.Service.CancelTask(r.Context(), acc.ID, taskID); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID.String(), "status": string(models.TaskStatusCancelled)})
}

// --- POST /v1/tasks/{id}/dispute ---

func (h *DispatchHandler) RaiseDispute(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	taskID, ok := extractPathID(r, "/v1/tasks/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return
	}
	if err := h.Service.RaiseDispute(r.Context(), acc.ID, taskID); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID.String(), "status": string(models.TaskStatusDisputed)})
}

// --- POST /v1/tasks/{id}/resolve ---

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

// ResolveDispute is admin-only.
func (h *DispatchHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	if acc.Role != models.AccountRoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "dispute resolution requires the admin role"})
		return
	}
	taskID, ok := extractPathID(r, "/v1/tasks/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.Service.ResolveDispute(r.Context(), taskID, models.TaskStatus(req.Outcome)); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID.String(), "status": req.Outcome})
}

// --- POST /v1/tasks/{id}/rating ---

type rateRequest struct {
	Stars   int    `json:"stars"`
	Comment string `json:"comment"`
}

// Rate is the direct alternative to the conversational rating flow.
func (h *DispatchHandler) Rate(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	taskID, ok := extractPathID(r, "/v1/tasks/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return
	}

	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.Service.Rate(r.Context(), acc.ID, taskID, req.Stars, req.Comment); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"task_id": taskID.String()})
}

// --- GET /v1/tasks and GET /v1/tasks/{id} ---

func (h *DispatchHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	taskID, ok := extractPathID(r, "/v1/tasks/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return
	}
	task, err := h.Tasks.GetByID(r.Context(), taskID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *DispatchHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	tasks, err := h.Tasks.ListByCustomer(r.Context(), acc.ID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// extractPathID parses the UUID segment after the given prefix. Supports
// paths like /v1/tasks/{id} and /v1/tasks/{id}/offers.
func extractPathID(r *http.Request, prefix string) (uuid.UUID, bool) {
	path := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
