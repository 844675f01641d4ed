package models

import (
	"time"

	"github.com/likefeed/backend/internal/secret"
)

// Wallet is a custodial wallet record. SigningKey is never serialised.
type Wallet struct {
	Address    string            `json:"address"` // EIP-55 checksummed
	SigningKey secret.SigningKey `json:"-"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
