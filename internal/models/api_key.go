package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey authenticates the command-routing layer's calls on behalf of an
// account. Only the SHA-256 hash of the key is stored.
type APIKey struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	KeyHash   string    `json:"-"`
	KeyPrefix string    `json:"key_prefix"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
