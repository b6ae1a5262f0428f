package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pinRow(attempts int, lockUntil interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"user_id", "pin_hash", "failed_attempts", "last_changed", "lock_until"}).
		AddRow("admin-1", "hash", attempts, time.Now(), lockUntil)
}

func TestPinRepositoryFind(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPinRepository(db)

	mock.ExpectQuery("SELECT user_id, pin_hash, failed_attempts, last_changed, lock_until FROM admin_pins WHERE user_id").
		WithArgs("admin-1").
		WillReturnRows(pinRow(1, nil))

	pin, err := repo.Find(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, pin.FailedAttempts)
	assert.Nil(t, pin.LockUntil)
}

// The failure path is one conditional UPDATE so concurrent submissions cannot
// double-count; the test pins the statement shape and the returned state.
func TestPinRepositoryRegisterFailureReturnsPostState(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPinRepository(db)

	lockUntil := time.Now().Add(10 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE admin_pins")).
		WithArgs("admin-1", 3, lockUntil).
		WillReturnRows(pinRow(0, lockUntil))

	pin, err := repo.RegisterFailure(context.Background(), "admin-1", 3, lockUntil)
	require.NoError(t, err)
	assert.Equal(t, 0, pin.FailedAttempts)
	require.NotNil(t, pin.LockUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPinRepositoryResetAttempts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPinRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE admin_pins SET failed_attempts = 0 WHERE user_id = $1")).
		WithArgs("admin-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ResetAttempts(context.Background(), "admin-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPinRepositoryUpsertReplacesRowAndClearsLock(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPinRepository(db)

	changedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id) DO UPDATE SET pin_hash = $2, failed_attempts = 0, last_changed = $3, lock_until = NULL")).
		WithArgs("user-1", "new-hash", changedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), "user-1", "new-hash", changedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPinRepositoryUpdateHashClearsLockState(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPinRepository(db)

	changedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE admin_pins SET pin_hash = $2, failed_attempts = 0, last_changed = $3, lock_until = NULL WHERE user_id = $1")).
		WithArgs("admin-1", "new-hash", changedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateHash(context.Background(), "admin-1", "new-hash", changedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
