package main

import (
	"log/slog"
	"net/http"

	"github.com/errandly/backend/internal/flows"
	"github.com/errandly/backend/internal/handlers"
	"github.com/errandly/backend/internal/middleware"
	"github.com/errandly/backend/internal/repository"
	"github.com/errandly/backend/internal/services"
)

// RegisterV1Routes adds the /v1/ dispatch and flow endpoints to the mux.
// Middleware chain: APIKeyAuth -> handler. Role checks live in the handlers.
func RegisterV1Routes(
	mux *http.ServeMux,
	apiKeyRepo *repository.APIKeyRepo,
	workerRepo *repository.WorkerRepo,
	taskRepo *repository.TaskRepo,
	dispatcher *services.Dispatcher,
	flowMgr *flows.Manager,
	logger *slog.Logger,
) {
	dh := &handlers.DispatchHandler{
		Service: dispatcher,
		Tasks:   taskRepo,
		Flows:   flowMgr,
		Logger:  logger,
	}
	fh := &handlers.FlowHandler{
		Service: flowMgr,
		Logger:  logger,
	}

	auth := middleware.APIKeyAuth(apiKeyRepo, workerRepo)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth(h))
	}

	handle("POST /v1/flows/steps", fh.Advance)
	handle("POST /v1/flows/{kind}", fh.Begin)
	handle("DELETE /v1/flows", fh.CancelFlow)

	handle("POST /v1/tasks/{id}/offers", dh.SubmitOffer)
	handle("POST /v1/offers/{id}/accept", dh.AcceptOffer)
	handle("POST /v1/tasks/{id}/progress", dh.ConfirmInProgress)
	handle("POST /v1/tasks/{id}/complete", dh.MarkCompleted)
	handle("POST /v1/tasks/{id}/cancel", dh.CancelTask)
	handle("POST /v1/tasks/{id}/dispute", dh.RaiseDispute)
	handle("POST /v1/tasks/{id}/resolve", dh.ResolveDispute)
	handle("POST /v1/tasks/{id}/rating", dh.Rate)

	handle("GET /v1/tasks/{id}", dh.GetTask)
	handle("GET /v1/tasks", dh.ListTasks)
}
