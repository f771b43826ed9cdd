package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles.
const (
	AccountRoleCustomer = "customer"
	AccountRoleWorker   = "worker"
	AccountRoleAdmin    = "admin"
)

// Account is the authenticated identity behind a customer or worker.
// TelegramID is where notifications for this account are delivered.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	TelegramID   int64     `json:"telegram_id"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
