package models

import "time"

// TokenStatus captures the reset-token lifecycle. PENDING is the only
// non-terminal state; EXPIRED and USED are terminal.
type TokenStatus string

const (
	TokenStatusPending TokenStatus = "PENDING"
	TokenStatusExpired TokenStatus = "EXPIRED"
	TokenStatusUsed    TokenStatus = "USED"
)

// ResetToken is a single-use, time-limited password reset credential.
type ResetToken struct {
	ID        string      `db:"id" json:"id"`
	UserID    string      `db:"user_id" json:"user_id"`
	Token     string      `db:"token" json:"-"`
	ExpiresAt time.Time   `db:"expires_at" json:"expires_at"`
	Status    TokenStatus `db:"status" json:"status"`
	UsedAt    *time.Time  `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}
