package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusdir/directory-api/internal/models"
	appErrors "github.com/campusdir/directory-api/pkg/errors"
)

type pinStoreStub struct {
	rows map[string]*models.AdminPin
	err  error
}

func (s *pinStoreStub) Find(ctx context.Context, userID string) (*models.AdminPin, error) {
	if s.err != nil {
		return nil, s.err
	}
	row, ok := s.rows[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *row
	return &copied, nil
}

// RegisterFailure mirrors the conditional UPDATE: the attempt that reaches the
// limit engages the lock and zeroes the counter.
func (s *pinStoreStub) RegisterFailure(ctx context.Context, userID string, maxAttempts int, lockUntil time.Time) (*models.AdminPin, error) {
	if s.err != nil {
		return nil, s.err
	}
	row, ok := s.rows[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if row.FailedAttempts+1 >= maxAttempts {
		row.FailedAttempts = 0
		until := lockUntil
		row.LockUntil = &until
	} else {
		row.FailedAttempts++
	}
	copied := *row
	return &copied, nil
}

func (s *pinStoreStub) ResetAttempts(ctx context.Context, userID string) error {
	if row, ok := s.rows[userID]; ok {
		row.FailedAttempts = 0
	}
	return nil
}

func (s *pinStoreStub) UpdateHash(ctx context.Context, userID, pinHash string, changedAt time.Time) error {
	row, ok := s.rows[userID]
	if !ok {
		return sql.ErrNoRows
	}
	row.PinHash = pinHash
	row.FailedAttempts = 0
	row.LockUntil = nil
	row.LastChanged = &changedAt
	return nil
}

type auditStoreStub struct {
	events []*models.AuditEvent
}

func (a *auditStoreStub) Create(ctx context.Context, event *models.AuditEvent) error {
	a.events = append(a.events, event)
	return nil
}

func (a *auditStoreStub) actions() []string {
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action)
	}
	return out
}

func hashOf(t *testing.T, raw string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newPinFixture(t *testing.T) (*PinService, *pinStoreStub, *auditStoreStub) {
	store := &pinStoreStub{rows: map[string]*models.AdminPin{
		"admin-1": {UserID: "admin-1", PinHash: hashOf(t, "123456")},
	}}
	audit := &auditStoreStub{}
	svc := NewPinService(store, NewAuditRecorder(audit, nil), nil, validator.New(), nil, 3, 10*time.Minute)
	return svc, store, audit
}

var adminPrincipal = models.Principal{ID: "admin-1", Username: "root", Role: models.RoleAdmin}

func TestPinVerifySuccessResetsAttempts(t *testing.T) {
	svc, store, audit := newPinFixture(t)
	store.rows["admin-1"].FailedAttempts = 2

	err := svc.Verify(context.Background(), adminPrincipal, "123456", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 0, store.rows["admin-1"].FailedAttempts)
	assert.Contains(t, audit.actions(), models.AuditActionPinVerified)
}

func TestPinVerifyWrongConsumesOneAttempt(t *testing.T) {
	svc, store, audit := newPinFixture(t)

	err := svc.Verify(context.Background(), adminPrincipal, "000000", "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPinIncorrect))
	assert.Equal(t, 1, store.rows["admin-1"].FailedAttempts)
	assert.Equal(t, []string{models.AuditActionPinFailed}, audit.actions())
}

func TestPinVerifyThirdFailureLocks(t *testing.T) {
	svc, store, audit := newPinFixture(t)
	store.rows["admin-1"].FailedAttempts = 2

	err := svc.Verify(context.Background(), adminPrincipal, "000000", "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPinLocked))

	row := store.rows["admin-1"]
	assert.Equal(t, 0, row.FailedAttempts)
	require.NotNil(t, row.LockUntil)
	assert.Contains(t, audit.actions(), models.AuditActionPinLocked)
}

func TestPinVerifyWhileLockedConsumesNoAttempt(t *testing.T) {
	svc, store, audit := newPinFixture(t)
	until := time.Now().Add(5 * time.Minute)
	store.rows["admin-1"].LockUntil = &until
	store.rows["admin-1"].FailedAttempts = 0

	err := svc.Verify(context.Background(), adminPrincipal, "123456", "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPinLocked))
	assert.Equal(t, 0, store.rows["admin-1"].FailedAttempts)
	assert.Empty(t, audit.actions())
}

func TestPinVerifyLazyUnlockAfterWindow(t *testing.T) {
	svc, store, _ := newPinFixture(t)
	until := time.Now().Add(-time.Minute)
	store.rows["admin-1"].LockUntil = &until

	err := svc.Verify(context.Background(), adminPrincipal, "123456", "127.0.0.1")
	require.NoError(t, err)
}

// A fresh budget applies after the lock elapses: the first wrong submission
// counts as failure one of three, not a fourth strike.
func TestPinVerifyBudgetResetsAfterLock(t *testing.T) {
	svc, store, _ := newPinFixture(t)
	until := time.Now().Add(-time.Minute)
	store.rows["admin-1"].LockUntil = &until
	store.rows["admin-1"].FailedAttempts = 0

	err := svc.Verify(context.Background(), adminPrincipal, "000000", "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPinIncorrect))
	assert.Equal(t, 1, store.rows["admin-1"].FailedAttempts)
}

func TestPinVerifyMalformedConsumesNoAttempt(t *testing.T) {
	svc, store, _ := newPinFixture(t)

	err := svc.Verify(context.Background(), adminPrincipal, "12ab56", "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, 0, store.rows["admin-1"].FailedAttempts)
}

func TestPinVerifyMissingRowIsAudited(t *testing.T) {
	svc, _, audit := newPinFixture(t)

	err := svc.Verify(context.Background(), models.Principal{ID: "ghost"}, "123456", "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	assert.Equal(t, []string{models.AuditActionPinMissing}, audit.actions())
}

func TestPinChangeRotatesHash(t *testing.T) {
	svc, store, audit := newPinFixture(t)

	err := svc.ChangePin(context.Background(), adminPrincipal, models.ChangePinRequest{
		OldPin:     "123456",
		NewPin:     "654321",
		ConfirmPin: "654321",
	}, "127.0.0.1")
	require.NoError(t, err)

	row := store.rows["admin-1"]
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(row.PinHash), []byte("654321")))
	assert.NotNil(t, row.LastChanged)
	assert.Contains(t, audit.actions(), models.AuditActionPinChanged)
}

func TestPinChangeConfirmationMismatch(t *testing.T) {
	svc, _, _ := newPinFixture(t)

	err := svc.ChangePin(context.Background(), adminPrincipal, models.ChangePinRequest{
		OldPin:     "123456",
		NewPin:     "654321",
		ConfirmPin: "111111",
	}, "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestPinChangeWrongOldPinCountsAgainstBudget(t *testing.T) {
	svc, store, _ := newPinFixture(t)

	err := svc.ChangePin(context.Background(), adminPrincipal, models.ChangePinRequest{
		OldPin:     "999999",
		NewPin:     "654321",
		ConfirmPin: "654321",
	}, "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPinIncorrect))
	assert.Equal(t, 1, store.rows["admin-1"].FailedAttempts)
}
