// Package flows runs the multi-step conversations: task creation, worker
// registration, and rating. Each flow accumulates state in the session store
// and commits through the dispatcher or registry on its final step. Invalid
// input is rejected without advancing the step, so users retry in place.
package flows

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/errandly/backend/internal/apperr"
	"github.com/errandly/backend/internal/geo"
	"github.com/errandly/backend/internal/models"
	"github.com/errandly/backend/internal/services"
	"github.com/errandly/backend/internal/session"
	"github.com/errandly/backend/internal/verify"
)

// Policy decides what happens when a flow starts while another is active.
type Policy string

const (
	// PolicyReject refuses the new flow until the active one finishes or
	// expires.
	PolicyReject Policy = "reject"
	// PolicyResume returns the active flow's current prompt instead.
	PolicyResume Policy = "resume"
)

// ParsePolicy maps the FLOW_POLICY setting, defaulting to reject.
func ParsePolicy(s string) Policy {
	if Policy(s) == PolicyResume {
		return PolicyResume
	}
	return PolicyReject
}

// SessionStore is the session persistence used by the flow manager.
type SessionStore interface {
	Get(ctx context.Context, ownerID uuid.UUID) (*session.Session, error)
	Put(ctx context.Context, sess *session.Session) error
	Delete(ctx context.Context, ownerID uuid.UUID) error
	TTL() time.Duration
}

// TaskCreator commits a finished task-creation flow.
type TaskCreator interface {
	CreateTask(ctx context.Context, customerID uuid.UUID, draft services.TaskDraft) (*models.Task, error)
}

// WorkerRater commits a finished rating flow.
type WorkerRater interface {
	Rate(ctx context.Context, customerID, taskID uuid.UUID, stars int, comment string) error
}

// WorkerRegistry commits a finished registration flow.
type WorkerRegistry interface {
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Worker, error)
	Create(ctx context.Context, w *models.Worker) error
}

// Manager owns the step machines for every flow kind.
type Manager struct {
	Sessions SessionStore
	Policy   Policy
	Resolver geo.Resolver
	Tasks    TaskCreator
	Rater    WorkerRater
	Registry WorkerRegistry
	Verifier verify.IdentityVerifier
	Validate *validator.Validate
	Logger   *slog.Logger
}

// StepResult carries the next prompt, or the outcome when the flow finished.
type StepResult struct {
	Prompt string       `json:"prompt"`
	Done   bool         `json:"done"`
	Task   *models.Task `json:"task,omitempty"`
}

// Begin starts a task-creation or registration flow for the account. Rating
// flows start through BeginRating because they need a task binding.
func (m *Manager) Begin(ctx context.Context, account *models.Account, flow session.Flow) (*StepResult, error) {
	if flow != session.FlowTaskCreation && flow != session.FlowRegistration {
		return nil, apperr.Validationf("unknown flow %q", flow)
	}
	if flow == session.FlowRegistration {
		if _, err := m.Registry.GetByAccountID(ctx, account.ID); err == nil {
			return nil, apperr.Preconditionf("you are already registered as a worker")
		}
	}

	if res, err := m.checkActive(ctx, account.ID); res != nil || err != nil {
		return res, err
	}

	now := time.Now()
	sess := &session.Session{
		OwnerID:   account.ID,
		Flow:      flow,
		Step:      0,
		CreatedAt: now,
		ExpiresAt: now.Add(m.Sessions.TTL()),
	}
	switch flow {
	case session.FlowTaskCreation:
		sess.TaskCreation = &session.TaskCreationState{}
	case session.FlowRegistration:
		sess.Registration = &session.RegistrationState{TelegramID: account.TelegramID}
	}
	if err := m.Sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	return &StepResult{Prompt: m.promptFor(sess)}, nil
}

// BeginRating opens the rating flow for a completed task.
func (m *Manager) BeginRating(ctx context.Context, account *models.Account, taskID, workerID uuid.UUID) (*StepResult, error) {
	if res, err := m.checkActive(ctx, account.ID); res != nil || err != nil {
		return res, err
	}

	now := time.Now()
	sess := &session.Session{
		OwnerID:   account.ID,
		Flow:      session.FlowRating,
		Step:      0,
		Rating:    &session.RatingState{TaskID: taskID, WorkerID: workerID},
		CreatedAt: now,
		ExpiresAt: now.Add(m.Sessions.TTL()),
	}
	if err := m.Sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	return &StepResult{Prompt: m.promptFor(sess)}, nil
}

// checkActive applies the concurrent-flow policy. A non-nil result means the
// caller should return it (the resumed flow's prompt).
func (m *Manager) checkActive(ctx context.Context, ownerID uuid.UUID) (*StepResult, error) {
	active, err := m.Sessions.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, nil
	}
	if m.Policy == PolicyResume {
		m.Logger.Info("resuming active flow", "owner_id", ownerID, "flow", active.Flow, "step", active.Step)
		return &StepResult{Prompt: m.promptFor(active)}, nil
	}
	return nil, apperr.Preconditionf("another %s flow is already in progress; finish or cancel it first", active.Flow)
}

// Advance feeds one input into the owner's active flow. The session only
// advances when the input is valid; a validation error leaves it untouched
// so the same step can be retried.
func (m *Manager) Advance(ctx context.Context, ownerID uuid.UUID, input string) (*StepResult, error) {
	sess, err := m.Sessions.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.Preconditionf("no active session; start a flow first")
	}

	input = strings.TrimSpace(input)

	var res *StepResult
	switch sess.Flow {
	case session.FlowTaskCreation:
		res, err = m.advanceTaskCreation(ctx, sess, input)
	case session.FlowRegistration:
		res, err = m.advanceRegistration(ctx, sess, input)
	case session.FlowRating:
		res, err = m.advanceRating(ctx, sess, input)
	default:
		return nil, fmt.Errorf("session %s has unknown flow %q", ownerID, sess.Flow)
	}
	if err != nil {
		return nil, err
	}

	if res.Done {
		if err := m.Sessions.Delete(ctx, ownerID); err != nil {
			m.Logger.Warn("delete finished session", "owner_id", ownerID, "error", err)
		}
		return res, nil
	}

	sess.Step++
	sess.Touch(time.Now(), m.Sessions.TTL())
	if err := m.Sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	return res, nil
}

// Cancel abandons the owner's active flow, if any.
func (m *Manager) Cancel(ctx context.Context, ownerID uuid.UUID) error {
	return m.Sessions.Delete(ctx, ownerID)
}

// parseLocation accepts "lat,lon" pairs or free-text addresses. Coordinates
// are reverse-geocoded for a display address; free text goes through the
// geocoder.
func (m *Manager) parseLocation(ctx context.Context, input string) (*models.Location, error) {
	if input == "" {
		return nil, apperr.Validationf("location cannot be empty")
	}

	if lat, lon, ok := splitCoords(input); ok {
		if err := m.Validate.Var(lat, "gte=-90,lte=90"); err != nil {
			return nil, apperr.Validationf("latitude %v out of range", lat)
		}
		if err := m.Validate.Var(lon, "gte=-180,lte=180"); err != nil {
			return nil, apperr.Validationf("longitude %v out of range", lon)
		}
		addr, err := m.Resolver.Reverse(ctx, geo.Point{Lat: lat, Lon: lon})
		if err != nil {
			// A missing display address shouldn't block the flow.
			m.Logger.Warn("reverse geocode failed", "error", err)
			addr = input
		}
		return &models.Location{Lat: lat, Lon: lon, Address: addr}, nil
	}

	pt, addr, err := m.Resolver.Resolve(ctx, input)
	if err != nil {
		return nil, err
	}
	return &models.Location{Lat: pt.Lat, Lon: pt.Lon, Address: addr}, nil
}

func splitCoords(input string) (lat, lon float64, ok bool) {
	parts := strings.SplitN(input, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	return lat, lon, err1 == nil && err2 == nil
}

// promptFor returns the instruction for the session's current step, used on
// flow start and on policy resume.
func (m *Manager) promptFor(sess *session.Session) string {
	switch sess.Flow {
	case session.FlowTaskCreation:
		return taskCreationPrompt(sess)
	case session.FlowRegistration:
		return registrationPrompt(sess.Step)
	case session.FlowRating:
		return ratingPrompt(sess.Step)
	}
	return ""
}
