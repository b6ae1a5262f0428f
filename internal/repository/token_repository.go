package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusdir/directory-api/internal/models"
)

// TokenRepository persists password-reset tokens.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// DeletePendingForUser removes any outstanding PENDING tokens for an identity,
// keeping the at-most-one-pending-token invariant.
func (r *TokenRepository) DeletePendingForUser(ctx context.Context, userID string) error {
	const query = `DELETE FROM reset_tokens WHERE user_id = $1 AND status = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, models.TokenStatusPending); err != nil {
		return fmt.Errorf("delete pending reset tokens: %w", err)
	}
	return nil
}

// Create stores a new reset token.
func (r *TokenRepository) Create(ctx context.Context, token *models.ResetToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO reset_tokens (id, user_id, token, expires_at, status, used_at, created_at)
		VALUES (:id, :user_id, :token, :expires_at, :status, :used_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}
	return nil
}

// ExpireStale lazily flips every overdue PENDING token to EXPIRED. Called on
// each verification so the table stays self-cleaning without a background job.
func (r *TokenRepository) ExpireStale(ctx context.Context, now time.Time) error {
	const query = `UPDATE reset_tokens SET status = $1 WHERE status = $2 AND expires_at < $3`
	if _, err := r.db.ExecContext(ctx, query, models.TokenStatusExpired, models.TokenStatusPending, now); err != nil {
		return fmt.Errorf("expire stale reset tokens: %w", err)
	}
	return nil
}

// FindPending returns a token by value, requiring PENDING status.
func (r *TokenRepository) FindPending(ctx context.Context, token string) (*models.ResetToken, error) {
	const query = `SELECT id, user_id, token, expires_at, status, used_at, created_at FROM reset_tokens WHERE token = $1 AND status = $2 LIMIT 1`
	var record models.ResetToken
	if err := r.db.GetContext(ctx, &record, query, token, models.TokenStatusPending); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find pending reset token: %w", err)
	}
	return &record, nil
}

// MarkUsed transitions a token to its terminal USED state.
func (r *TokenRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	const query = `UPDATE reset_tokens SET status = $2, used_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.TokenStatusUsed, usedAt); err != nil {
		return fmt.Errorf("mark reset token used: %w", err)
	}
	return nil
}
