package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdir/directory-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func identityRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "role", "active", "last_login", "login_count", "created_at", "updated_at"}).
		AddRow("user-1", "alice", "alice@school.edu", "hash", "STAFF", true, nil, 3, time.Now(), time.Now())
}

func TestIdentityRepositoryFindByUsername(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectQuery("SELECT id, username, email, password_hash, role, active, last_login, login_count, created_at, updated_at FROM users WHERE username").
		WithArgs("alice").
		WillReturnRows(identityRows())

	identity, err := repo.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.ID)
	assert.Equal(t, models.RoleStaff, identity.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepositoryFindByUsernameMiss(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectQuery("SELECT .* FROM users WHERE username").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestIdentityRepositoryFindByUsernameOrEmailJoinsProfiles(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectQuery("SELECT DISTINCT u.id, u.username, u.email, .* LEFT JOIN staff_profiles sf .* LEFT JOIN student_profiles st").
		WithArgs("alice@school.edu").
		WillReturnRows(identityRows())

	identity, err := repo.FindByUsernameOrEmail(context.Background(), "alice@school.edu")
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepositoryRecordLogin(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	ts := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET login_count = login_count + 1, last_login = $2, updated_at = $2 WHERE id = $1")).
		WithArgs("user-1", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordLogin(context.Background(), "user-1", ts))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepositoryCreateCommitsUserAndProfile(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO staff_profiles").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	identity := &models.Identity{Username: "grace_h", Email: "grace@school.edu", PasswordHash: "hash", Role: models.RoleStaff}
	details := models.RoleDetails{Staff: &models.StaffDetails{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@school.edu", HireDate: "2020-09-01",
	}}
	require.NoError(t, repo.Create(context.Background(), identity, details))
	assert.NotEmpty(t, identity.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepositoryCreateRollsBackOnProfileFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO staff_profiles").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	identity := &models.Identity{Username: "grace_h", Email: "grace@school.edu", PasswordHash: "hash", Role: models.RoleStaff}
	details := models.RoleDetails{Staff: &models.StaffDetails{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@school.edu", HireDate: "2020-09-01",
	}}
	require.Error(t, repo.Create(context.Background(), identity, details))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepositorySetActiveFlipsAllTablesInOneTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET active").
		WithArgs("user-1", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE staff_profiles SET active").
		WithArgs("user-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE student_profiles SET active").
		WithArgs("user-1", true).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, repo.SetActive(context.Background(), "user-1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepositorySetActiveRollsBackMidway(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET active").
		WithArgs("user-1", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE staff_profiles SET active").
		WithArgs("user-1", true).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	require.Error(t, repo.SetActive(context.Background(), "user-1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepositoryUsernameExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE username = $1 AND id <> $2")).
		WithArgs("alice", "").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	taken, err := repo.UsernameExists(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestIdentityRepositoryCreateLoginAttempt(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewIdentityRepository(db)

	mock.ExpectExec("INSERT INTO login_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))

	attempt := &models.LoginAttempt{Success: false}
	require.NoError(t, repo.CreateLoginAttempt(context.Background(), attempt))
	assert.NotEmpty(t, attempt.ID)
	assert.False(t, attempt.AttemptedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
