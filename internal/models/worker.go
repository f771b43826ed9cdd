package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkerRole identifies what kind of tasks a worker fulfills.
type WorkerRole string

const (
	WorkerRoleRider    WorkerRole = "rider"
	WorkerRoleErrander WorkerRole = "errander"
)

func (r WorkerRole) IsValid() bool {
	return r == WorkerRoleRider || r == WorkerRoleErrander
}

// Identity verification statuses.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

func (s VerificationStatus) IsValid() bool {
	switch s {
	case VerificationPending, VerificationVerified, VerificationRejected:
		return true
	default:
		return false
	}
}

// Worker is a registered rider or errander. IsAvailable is forced false the
// moment one of the worker's offers is accepted and restored on task
// completion, cancellation, or dispute resolution.
type Worker struct {
	ID                uuid.UUID          `json:"id"`
	AccountID         uuid.UUID          `json:"account_id"`
	TelegramID        int64              `json:"telegram_id"`
	Role              WorkerRole         `json:"role"`
	Verification      VerificationStatus `json:"verification"`
	VerifyReason      string             `json:"verify_reason,omitempty"`
	IsAvailable       bool               `json:"is_available"`
	LastKnownLocation *Location          `json:"last_known_location,omitempty"`
	LocationAt        *time.Time         `json:"location_at,omitempty"`
	RatingSum         int64              `json:"rating_sum"`
	ReviewCount       int                `json:"review_count"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// RatingAverage is the running mean over all ratings, 0 when unrated.
func (w *Worker) RatingAverage() float64 {
	if w.ReviewCount == 0 {
		return 0
	}
	return float64(w.RatingSum) / float64(w.ReviewCount)
}

// LocationFresh reports whether the worker's last known location is newer
// than the staleness threshold.
func (w *Worker) LocationFresh(now time.Time, staleness time.Duration) bool {
	if w.LastKnownLocation == nil || w.LocationAt == nil {
		return false
	}
	return now.Sub(*w.LocationAt) <= staleness
}
