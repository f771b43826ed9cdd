package flows

import (
	"context"
	"strings"

	"github.com/errandly/backend/internal/apperr"
	"github.com/errandly/backend/internal/models"
	"github.com/errandly/backend/internal/services"
	"github.com/errandly/backend/internal/session"
)

// skipWord lets optional steps be passed over.
const skipWord = "skip"

// Task creation collects kind, then locations, then optional instructions.
// Delivery needs pickup and dropoff; an errand has a single location.
func (m *Manager) advanceTaskCreation(ctx context.Context, sess *session.Session, input string) (*StepResult, error) {
	state := sess.TaskCreation

	switch sess.Step {
	case 0:
		kind := models.TaskKind(strings.ToLower(input))
		if !kind.IsValid() {
			return nil, apperr.Validationf("task kind must be %q or %q", models.TaskKindDelivery, models.TaskKindErrand)
		}
		state.Kind = kind
		return &StepResult{Prompt: taskCreationPromptAfterKind(kind)}, nil

	case 1:
		loc, err := m.parseLocation(ctx, input)
		if err != nil {
			return nil, err
		}
		state.Pickup = loc
		if state.Kind == models.TaskKindDelivery {
			return &StepResult{Prompt: "Where should it be dropped off? Send an address or \"lat,lon\"."}, nil
		}
		return &StepResult{Prompt: instructionsPrompt}, nil

	case 2:
		if state.Kind == models.TaskKindDelivery {
			loc, err := m.parseLocation(ctx, input)
			if err != nil {
				return nil, err
			}
			state.Dropoff = loc
			return &StepResult{Prompt: instructionsPrompt}, nil
		}
		return m.commitTask(ctx, sess, input)

	case 3:
		if state.Kind != models.TaskKindDelivery {
			return nil, apperr.Preconditionf("errand flow has no step %d", sess.Step)
		}
		return m.commitTask(ctx, sess, input)
	}
	return nil, apperr.Preconditionf("task creation has no step %d", sess.Step)
}

func (m *Manager) commitTask(ctx context.Context, sess *session.Session, input string) (*StepResult, error) {
	state := sess.TaskCreation
	instructions := ""
	if !strings.EqualFold(input, skipWord) {
		instructions = input
	}
	if state.Pickup == nil {
		return nil, apperr.Preconditionf("task location was never collected")
	}

	task, err := m.Tasks.CreateTask(ctx, sess.OwnerID, services.TaskDraft{
		Kind:         state.Kind,
		Pickup:       *state.Pickup,
		Dropoff:      state.Dropoff,
		Instructions: instructions,
	})
	if err != nil {
		return nil, err
	}
	return &StepResult{
		Prompt: "Task " + task.RefCode + " is live. We're notifying nearby workers now.",
		Done:   true,
		Task:   task,
	}, nil
}

const instructionsPrompt = "Any instructions for the worker? Send them, or \"skip\"."

func taskCreationPrompt(sess *session.Session) string {
	if sess.Step == 0 {
		return "What do you need? Reply \"delivery\" or \"errand\"."
	}
	state := sess.TaskCreation
	switch {
	case state.Pickup == nil:
		if state.Kind == models.TaskKindDelivery {
			return "Where should the worker pick up? Send an address or \"lat,lon\"."
		}
		return "Where does the errand happen? Send an address or \"lat,lon\"."
	case state.Kind == models.TaskKindDelivery && state.Dropoff == nil:
		return "Where should it be dropped off? Send an address or \"lat,lon\"."
	default:
		return instructionsPrompt
	}
}

func taskCreationPromptAfterKind(kind models.TaskKind) string {
	if kind == models.TaskKindDelivery {
		return "Where should the worker pick up? Send an address or \"lat,lon\"."
	}
	return "Where does the errand happen? Send an address or \"lat,lon\"."
}
