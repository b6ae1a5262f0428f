package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campusdir/directory-api/internal/models"
)

// PinRepository manages admin PIN rows and the lockout counters around them.
type PinRepository struct {
	db *sqlx.DB
}

// NewPinRepository creates a new instance of PinRepository.
func NewPinRepository(db *sqlx.DB) *PinRepository {
	return &PinRepository{db: db}
}

// Find returns the PIN row for an admin identity.
func (r *PinRepository) Find(ctx context.Context, userID string) (*models.AdminPin, error) {
	const query = `SELECT user_id, pin_hash, failed_attempts, last_changed, lock_until FROM admin_pins WHERE user_id = $1 LIMIT 1`
	var pin models.AdminPin
	if err := r.db.GetContext(ctx, &pin, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find admin pin: %w", err)
	}
	return &pin, nil
}

// RegisterFailure advances the lockout machine by one wrong submission as a
// single conditional UPDATE, so two concurrent submissions cannot double-count
// or both skip the lock transition. When the incremented counter reaches
// maxAttempts the lock engages and the counter resets to zero; otherwise the
// counter is persisted as incremented. The post-update state is returned.
func (r *PinRepository) RegisterFailure(ctx context.Context, userID string, maxAttempts int, lockUntil time.Time) (*models.AdminPin, error) {
	const query = `UPDATE admin_pins
		SET failed_attempts = CASE WHEN failed_attempts + 1 >= $2 THEN 0 ELSE failed_attempts + 1 END,
		    lock_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE lock_until END
		WHERE user_id = $1
		RETURNING user_id, pin_hash, failed_attempts, last_changed, lock_until`
	var pin models.AdminPin
	if err := r.db.GetContext(ctx, &pin, query, userID, maxAttempts, lockUntil); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("register pin failure: %w", err)
	}
	return &pin, nil
}

// ResetAttempts clears the failure counter after a successful verification.
func (r *PinRepository) ResetAttempts(ctx context.Context, userID string) error {
	const query = `UPDATE admin_pins SET failed_attempts = 0 WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("reset pin attempts: %w", err)
	}
	return nil
}

// UpdateHash stores a freshly hashed PIN and clears any lock state.
func (r *PinRepository) UpdateHash(ctx context.Context, userID, pinHash string, changedAt time.Time) error {
	const query = `UPDATE admin_pins SET pin_hash = $2, failed_attempts = 0, last_changed = $3, lock_until = NULL WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, pinHash, changedAt); err != nil {
		return fmt.Errorf("update pin hash: %w", err)
	}
	return nil
}

// Upsert provisions or replaces the PIN row for an admin identity. Promotions
// land here with no existing row; re-keyed admins get a fresh counter and any
// lock cleared.
func (r *PinRepository) Upsert(ctx context.Context, userID, pinHash string, changedAt time.Time) error {
	const query = `INSERT INTO admin_pins (user_id, pin_hash, failed_attempts, last_changed)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (user_id) DO UPDATE SET pin_hash = $2, failed_attempts = 0, last_changed = $3, lock_until = NULL`
	if _, err := r.db.ExecContext(ctx, query, userID, pinHash, changedAt); err != nil {
		return fmt.Errorf("upsert admin pin: %w", err)
	}
	return nil
}

// Create inserts a PIN row for a newly provisioned admin identity.
func (r *PinRepository) Create(ctx context.Context, userID, pinHash string, createdAt time.Time) error {
	const query = `INSERT INTO admin_pins (user_id, pin_hash, failed_attempts, last_changed) VALUES ($1, $2, 0, $3)`
	if _, err := r.db.ExecContext(ctx, query, userID, pinHash, createdAt); err != nil {
		return fmt.Errorf("create admin pin: %w", err)
	}
	return nil
}
