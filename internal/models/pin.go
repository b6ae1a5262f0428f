package models

import "time"

// AdminPin is the secondary credential row held one-to-one with an ADMIN
// identity. FailedAttempts counts consecutive wrong submissions; it resets to
// zero when the lock engages and on any successful verification.
type AdminPin struct {
	UserID         string     `db:"user_id" json:"user_id"`
	PinHash        string     `db:"pin_hash" json:"-"`
	FailedAttempts int        `db:"failed_attempts" json:"failed_attempts"`
	LastChanged    *time.Time `db:"last_changed" json:"last_changed,omitempty"`
	LockUntil      *time.Time `db:"lock_until" json:"lock_until,omitempty"`
}

// LockedAt reports whether the PIN gate is locked at the given instant.
func (p *AdminPin) LockedAt(now time.Time) bool {
	return p.LockUntil != nil && p.LockUntil.After(now)
}
