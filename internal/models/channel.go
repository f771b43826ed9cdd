package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the ephemeral private communication binding between a customer
// and the worker assigned to a task. ExternalID is the identifier of the
// conversation on the chat provider.
type Channel struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	WorkerID   uuid.UUID `json:"worker_id"`
	ExternalID int64     `json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
}
