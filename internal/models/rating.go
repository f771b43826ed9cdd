package models

import (
	"time"

	"github.com/google/uuid"
)

// Rating is a customer's one-shot review of the worker who completed a task.
// At most one rating exists per (task, worker) pair.
type Rating struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	WorkerID   uuid.UUID `json:"worker_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Stars      int       `json:"stars"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
