package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdir/directory-api/internal/models"
)

func TestTokenRepositoryDeletePendingForUser(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM reset_tokens WHERE user_id = $1 AND status = $2")).
		WithArgs("user-1", models.TokenStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.DeletePendingForUser(context.Background(), "user-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryExpireStaleOnlyTouchesPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reset_tokens SET status = $1 WHERE status = $2 AND expires_at < $3")).
		WithArgs(models.TokenStatusExpired, models.TokenStatusPending, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ExpireStale(context.Background(), now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryFindPendingRequiresPendingStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery("SELECT id, user_id, token, expires_at, status, used_at, created_at FROM reset_tokens WHERE token").
		WithArgs("deadbeef", models.TokenStatusPending).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindPending(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTokenRepositoryMarkUsed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	usedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reset_tokens SET status = $2, used_at = $3 WHERE id = $1")).
		WithArgs("tok-1", models.TokenStatusUsed, usedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkUsed(context.Background(), "tok-1", usedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
