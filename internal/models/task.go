package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskKind distinguishes the two fixed task types.
type TaskKind string

const (
	TaskKindDelivery TaskKind = "delivery"
	TaskKindErrand   TaskKind = "errand"
)

func (k TaskKind) IsValid() bool {
	return k == TaskKindDelivery || k == TaskKindErrand
}

// WorkerRole maps a task kind to the worker role that may fulfill it.
func (k TaskKind) WorkerRole() WorkerRole {
	if k == TaskKindDelivery {
		return WorkerRoleRider
	}
	return WorkerRoleErrander
}

// Task lifecycle statuses.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusOffered    TaskStatus = "offered"
	TaskStatusAccepted   TaskStatus = "accepted"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusDisputed   TaskStatus = "disputed"
	TaskStatusExpired    TaskStatus = "expired"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusOffered, TaskStatusAccepted, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusCancelled, TaskStatusDisputed, TaskStatusExpired:
		return true
	default:
		return false
	}
}

// AcceptsOffers reports whether workers may still bid on a task in this status.
func (s TaskStatus) AcceptsOffers() bool {
	return s == TaskStatusPending || s == TaskStatusOffered
}

func (s TaskStatus) String() string { return string(s) }

// Location is a coordinate paired with its resolved human-readable address.
type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address"`
}

// Task is a unified delivery or errand request. Errand tasks carry their
// single location in Pickup; Dropoff is nil for them.
type Task struct {
	ID               uuid.UUID  `json:"id"`
	CustomerID       uuid.UUID  `json:"customer_id"`
	Kind             TaskKind   `json:"kind"`
	RefCode          string     `json:"ref_code"`
	Pickup           Location   `json:"pickup"`
	Dropoff          *Location  `json:"dropoff,omitempty"`
	Instructions     string     `json:"instructions,omitempty"`
	Status           TaskStatus `json:"status"`
	AssignedWorkerID *uuid.UUID `json:"assigned_worker_id,omitempty"`
	ChannelID        *uuid.UUID `json:"channel_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
}
