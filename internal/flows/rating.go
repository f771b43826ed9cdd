package flows

import (
	"context"
	"strconv"
	"strings"

	"github.com/errandly/backend/internal/apperr"
	"github.com/errandly/backend/internal/session"
)

// Rating collects a star count and an optional comment, then records the
// review through the dispatcher. The (task, worker) binding was fixed when
// the flow opened.
func (m *Manager) advanceRating(ctx context.Context, sess *session.Session, input string) (*StepResult, error) {
	state := sess.Rating

	switch sess.Step {
	case 0:
		stars, err := strconv.Atoi(input)
		if err != nil || stars < 1 || stars > 5 {
			return nil, apperr.Validationf("rating must be a whole number from 1 to 5")
		}
		state.Stars = stars
		return &StepResult{Prompt: ratingPrompt(1)}, nil

	case 1:
		comment := ""
		if !strings.EqualFold(input, skipWord) {
			comment = input
		}
		if err := m.Rater.Rate(ctx, sess.OwnerID, state.TaskID, state.Stars, comment); err != nil {
			return nil, err
		}
		return &StepResult{Prompt: "Thanks, your rating was recorded.", Done: true}, nil
	}
	return nil, apperr.Preconditionf("rating has no step %d", sess.Step)
}

func ratingPrompt(step int) string {
	switch step {
	case 0:
		return "How many stars, 1 to 5?"
	case 1:
		return "Anything to add? Send a comment, or \"skip\"."
	}
	return ""
}
