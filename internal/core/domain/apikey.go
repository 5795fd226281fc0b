package domain

import (
	"time"

	"github.com/google/uuid"
)

// APIKey authorizes a caller to act as exactly one user. The secret is
// stored as an Argon2id hash; the plaintext is shown once at issuance.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	KeyID      string     `json:"key_id"` // public identifier sent by the caller
	SecretHash string     `json:"-"`
	Active     bool       `json:"active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// IsUsable reports whether the key may authenticate requests right now.
func (k *APIKey) IsUsable(now time.Time) bool {
	if !k.Active {
		return false
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return false
	}
	return true
}
