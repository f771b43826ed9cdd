// Package session holds short-lived, per-owner conversation state with TTL
// expiry. Every multi-step flow (task creation, registration, rating) keeps
// its partial record here until the final step commits it.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/errandly/backend/internal/models"
)

// Flow identifies which multi-step conversation a session belongs to.
type Flow string

const (
	FlowTaskCreation Flow = "task-creation"
	FlowRegistration Flow = "registration"
	FlowRating       Flow = "rating"
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 10 * time.Minute

// TaskCreationState is the partial task record accumulated step by step.
// Only the fields collected so far are set.
type TaskCreationState struct {
	Kind         models.TaskKind  `json:"kind"`
	Pickup       *models.Location `json:"pickup,omitempty"`
	Dropoff      *models.Location `json:"dropoff,omitempty"`
	Instructions *string          `json:"instructions,omitempty"`
}

// RegistrationState is the partial worker record for the registration flow.
type RegistrationState struct {
	Role        models.WorkerRole `json:"role,omitempty"`
	ClaimedName string            `json:"claimed_name,omitempty"`
	NationalID  string            `json:"national_id,omitempty"`
	Location    *models.Location  `json:"location,omitempty"`
	TelegramID  int64             `json:"telegram_id,omitempty"`
}

// RatingState binds the rating flow to one (task, worker) pair.
type RatingState struct {
	TaskID   uuid.UUID `json:"task_id"`
	WorkerID uuid.UUID `json:"worker_id"`
	Stars    int       `json:"stars,omitempty"`
}

// Session is single-owner conversation state. Exactly one of the state
// fields matching Flow is non-nil.
type Session struct {
	OwnerID      uuid.UUID          `json:"owner_id"`
	Flow         Flow               `json:"flow"`
	Step         int                `json:"step"`
	TaskCreation *TaskCreationState `json:"task_creation,omitempty"`
	Registration *RegistrationState `json:"registration,omitempty"`
	Rating       *RatingState       `json:"rating,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	ExpiresAt    time.Time          `json:"expires_at"`
}

// Expired reports whether the session's TTL has lapsed at the given instant.
// The store double-checks this on read so a stale session is never resumed
// even if the backing key outlived its TTL.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Touch extends the session's expiry by ttl from now.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.ExpiresAt = now.Add(ttl)
}
