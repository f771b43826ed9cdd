package models

import (
	"time"

	"github.com/google/uuid"
)

// Offer statuses.
type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "pending"
	OfferStatusAccepted OfferStatus = "accepted"
	OfferStatusRejected OfferStatus = "rejected"
	OfferStatusExpired  OfferStatus = "expired"
)

func (s OfferStatus) IsValid() bool {
	switch s {
	case OfferStatusPending, OfferStatusAccepted, OfferStatusRejected, OfferStatusExpired:
		return true
	default:
		return false
	}
}

func (s OfferStatus) String() string { return string(s) }

// VehicleType for delivery offers.
type VehicleType string

const (
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleBicycle    VehicleType = "bicycle"
	VehicleCar        VehicleType = "car"
	VehicleVan        VehicleType = "van"
)

func (v VehicleType) IsValid() bool {
	switch v {
	case VehicleMotorcycle, VehicleBicycle, VehicleCar, VehicleVan:
		return true
	default:
		return false
	}
}

// Offer is a worker's priced bid against exactly one task. Price is in the
// smallest currency unit. VehicleType is set only for delivery tasks.
type Offer struct {
	ID          uuid.UUID    `json:"id"`
	TaskID      uuid.UUID    `json:"task_id"`
	WorkerID    uuid.UUID    `json:"worker_id"`
	Price       int64        `json:"price"`
	VehicleType *VehicleType `json:"vehicle_type,omitempty"`
	Status      OfferStatus  `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// Expired reports whether the offer's expiry has passed at the given instant.
func (o *Offer) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
