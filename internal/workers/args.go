// Package workers holds the River background jobs: channel teardown after
// the grace period, candidate notification fan-out, and periodic
// session/expiry maintenance.
package workers

import (
	"github.com/google/uuid"

	"github.com/errandly/backend/internal/models"
)

// ChannelTeardownArgs schedules destruction of a task's private channel.
type ChannelTeardownArgs struct {
	ChannelID uuid.UUID `json:"channel_id"`
}

func (ChannelTeardownArgs) Kind() string { return "channel_teardown" }

// NotifyCandidatesArgs fans a new task out to the workers found by the
// radius search.
type NotifyCandidatesArgs struct {
	TaskID         uuid.UUID       `json:"task_id"`
	RefCode        string          `json:"ref_code"`
	TaskKind       models.TaskKind `json:"task_kind"`
	PickupAddress  string          `json:"pickup_address"`
	DropoffAddress string          `json:"dropoff_address,omitempty"`
	RecipientIDs   []int64         `json:"recipient_ids"`
}

func (NotifyCandidatesArgs) Kind() string { return "notify_candidates" }

/// MaintenanceArgs is the periodic sweep: expired sessions, overdue tasks and
// offers.
type MaintenanceArgs struct{}

func (MaintenanceArgs) Kind() string { return "dispatch_maintenance" }
