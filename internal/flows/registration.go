package flows

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/errandly/backend/internal/apperr"
	"github.com/errandly/backend/internal/models"
	"github.com/errandly/backend/internal/session"
)

// Registration collects role, legal name, national ID, and a starting
// location, then runs the identity check and creates the worker record.
// The verdict decides the worker's verification status; a provider outage
// surfaces as an external error and the flow stays on its last step.
func (m *Manager) advanceRegistration(ctx context.Context, sess *session.Session, input string) (*StepResult, error) {
	state := sess.Registration

	switch sess.Step {
	case 0:
		role := models.WorkerRole(strings.ToLower(input))
		if !role.IsValid() {
			return nil, apperr.Validationf("role must be %q or %q", models.WorkerRoleRider, models.WorkerRoleErrander)
		}
		state.Role = role
		return &StepResult{Prompt: registrationPrompt(1)}, nil

	case 1:
		if err := m.Validate.Var(input, "required,min=2,max=120"); err != nil {
			return nil, apperr.Validationf("please send your full legal name")
		}
		state.ClaimedName = input
		return &StepResult{Prompt: registrationPrompt(2)}, nil

	case 2:
		if err := m.Validate.Var(input, "required,numeric,min=6,max=20"); err != nil {
			return nil, apperr.Validationf("national ID must be 6 to 20 digits")
		}
		state.NationalID = input
		return &StepResult{Prompt: registrationPrompt(3)}, nil

	case 3:
		loc, err := m.parseLocation(ctx, input)
		if err != nil {
			return nil, err
		}
		state.Location = loc
		return m.commitRegistration(ctx, sess)
	}
	return nil, apperr.Preconditionf("registration has no step %d", sess.Step)
}

func (m *Manager) commitRegistration(ctx context.Context, sess *session.Session) (*StepResult, error) {
	state := sess.Registration

	verdict, err := m.Verifier.VerifyIdentity(ctx, state.NationalID, state.ClaimedName)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	worker := &models.Worker{
		ID:                uuid.New(),
		AccountID:         sess.OwnerID,
		TelegramID:        state.TelegramID,
		Role:              state.Role,
		Verification:      models.VerificationRejected,
		VerifyReason:      verdict.Reason,
		IsAvailable:       false,
		LastKnownLocation: state.Location,
		LocationAt:        &now,
	}
	if verdict.Accepted {
		worker.Verification = models.VerificationVerified
		worker.VerifyReason = ""
		worker.IsAvailable = true
	}
	if err := m.Registry.Create(ctx, worker); err != nil {
		return nil, err
	}

	m.Logger.Info("worker registered", "worker_id", worker.ID,
		"role", worker.Role, "verification", worker.Verification)

	prompt := "You're verified and available. We'll ping you when tasks appear nearby."
	if !verdict.Accepted {
		prompt = "We couldn't verify your identity: " + verdict.Reason + ". Contact support to retry."
	}
	return &StepResult{Prompt: prompt, Done: true}, nil
}

func registrationPrompt(step int) string {
	switch step {
	case 0:
		return "What kind of work? Reply \"rider\" for deliveries or \"errander\" for errands."
	case 1:
		return "What is your full legal name, exactly as on your ID?"
	case 2:
		return "Send your national ID number."
	case 3:
		return "Where are you based? Send an address or \"lat,lon\"."
	}
	return ""
}
