package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdir/directory-api/internal/models"
	appErrors "github.com/campusdir/directory-api/pkg/errors"
)

type accountIdentityStub struct {
	identities map[string]*models.Identity
	created    []*models.Identity
	deleted    []string
	activeErr  error
	nextID     int
}

func (s *accountIdentityStub) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	identity, ok := s.identities[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *identity
	return &copied, nil
}

func (s *accountIdentityStub) UsernameExists(ctx context.Context, username, excludeID string) (bool, error) {
	for _, identity := range s.identities {
		if identity.Username == username && identity.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *accountIdentityStub) EmailExists(ctx context.Context, email, excludeID string) (bool, error) {
	for _, identity := range s.identities {
		if identity.Email == email && identity.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *accountIdentityStub) List(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, int, error) {
	out := make([]models.Identity, 0, len(s.identities))
	for _, identity := range s.identities {
		out = append(out, *identity)
	}
	return out, len(out), nil
}

func (s *accountIdentityStub) PendingAccounts(ctx context.Context) ([]models.PendingAccount, error) {
	var pending []models.PendingAccount
	for _, identity := range s.identities {
		if !identity.Active {
			pending = append(pending, models.PendingAccount{ID: identity.ID, Username: identity.Username, Role: identity.Role})
		}
	}
	return pending, nil
}

func (s *accountIdentityStub) Create(ctx context.Context, identity *models.Identity, details models.RoleDetails) error {
	if identity.ID == "" {
		s.nextID++
		identity.ID = "new-" + string(rune('0'+s.nextID))
	}
	if s.identities == nil {
		s.identities = make(map[string]*models.Identity)
	}
	copied := *identity
	s.identities[identity.ID] = &copied
	s.created = append(s.created, &copied)
	return nil
}

func (s *accountIdentityStub) Update(ctx context.Context, identity *models.Identity) error {
	existing, ok := s.identities[identity.ID]
	if !ok {
		return sql.ErrNoRows
	}
	hash := existing.PasswordHash
	copied := *identity
	if copied.PasswordHash == "" {
		copied.PasswordHash = hash
	}
	s.identities[identity.ID] = &copied
	return nil
}

func (s *accountIdentityStub) Delete(ctx context.Context, id string) error {
	delete(s.identities, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *accountIdentityStub) SetActive(ctx context.Context, id string, active bool) error {
	if s.activeErr != nil {
		return s.activeErr
	}
	identity, ok := s.identities[id]
	if !ok {
		return sql.ErrNoRows
	}
	identity.Active = active
	return nil
}

type accountPinStub struct {
	created  map[string]string
	upserted map[string]string
}

func (s *accountPinStub) Create(ctx context.Context, userID, pinHash string, createdAt time.Time) error {
	if s.created == nil {
		s.created = make(map[string]string)
	}
	s.created[userID] = pinHash
	return nil
}

func (s *accountPinStub) Upsert(ctx context.Context, userID, pinHash string, changedAt time.Time) error {
	if s.upserted == nil {
		s.upserted = make(map[string]string)
	}
	s.upserted[userID] = pinHash
	return nil
}

func validStaffDetails() models.RoleDetails {
	return models.RoleDetails{Staff: &models.StaffDetails{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "grace@school.edu",
		HireDate:  "2020-09-01",
	}}
}

func newAccountFixture(t *testing.T) (*AccountService, *accountIdentityStub, *accountPinStub, *auditStoreStub) {
	identities := &accountIdentityStub{identities: map[string]*models.Identity{
		"user-1": {ID: "user-1", Username: "alice", Email: "alice@school.edu", Role: models.RoleStaff, Active: true},
		"user-2": {ID: "user-2", Username: "pending_bob", Email: "bob@school.edu", Role: models.RoleStudent, Active: false},
	}}
	pins := &accountPinStub{}
	audit := &auditStoreStub{}
	svc := NewAccountService(identities, pins, NewAuditRecorder(audit, nil), validator.New(), nil)
	return svc, identities, pins, audit
}

func TestRegisterCreatesInactiveAccount(t *testing.T) {
	svc, identities, _, audit := newAccountFixture(t)

	identity, err := svc.Register(context.Background(), models.RegisterRequest{
		Username: "grace_h",
		Password: "P@ssw0rd1",
		Role:     models.RoleStaff,
		Details:  validStaffDetails(),
	}, "127.0.0.1")
	require.NoError(t, err)

	assert.False(t, identity.Active)
	assert.Equal(t, "grace@school.edu", identity.Email)
	assert.NotEmpty(t, identity.PasswordHash)
	assert.Len(t, identities.created, 1)
	assert.Contains(t, audit.actions(), models.AuditActionUserCreate)
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	svc, _, _, _ := newAccountFixture(t)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Username: "alice",
		Password: "P@ssw0rd1",
		Role:     models.RoleStaff,
		Details:  validStaffDetails(),
	}, "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestRegisterRejectsForeignEmailDomain(t *testing.T) {
	svc, _, _, _ := newAccountFixture(t)

	details := validStaffDetails()
	details.Staff.Email = "grace@example.com"
	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Username: "grace_h",
		Password: "P@ssw0rd1",
		Role:     models.RoleStaff,
		Details:  details,
	}, "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestRegisterRejectsRoleDetailsMismatch(t *testing.T) {
	svc, _, _, _ := newAccountFixture(t)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Username: "grace_h",
		Password: "P@ssw0rd1",
		Role:     models.RoleStudent,
		Details:  validStaffDetails(),
	}, "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	svc, _, _, _ := newAccountFixture(t)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Username: "grace_h",
		Password: "alllowercase",
		Role:     models.RoleStaff,
		Details:  validStaffDetails(),
	}, "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSetActiveApprovesAndAudits(t *testing.T) {
	svc, identities, _, audit := newAccountFixture(t)

	err := svc.SetActive(context.Background(), models.Principal{ID: "admin-1"}, "user-2", true, "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, identities.identities["user-2"].Active)
	assert.Contains(t, audit.actions(), models.AuditActionUserApprove)
}

func TestSetActiveDeactivateAudits(t *testing.T) {
	svc, identities, _, audit := newAccountFixture(t)

	err := svc.SetActive(context.Background(), models.Principal{ID: "admin-1"}, "user-1", false, "127.0.0.1")
	require.NoError(t, err)
	assert.False(t, identities.identities["user-1"].Active)
	assert.Contains(t, audit.actions(), models.AuditActionUserDeactivate)
}

func TestSetActiveMapsStorageFailure(t *testing.T) {
	svc, identities, _, _ := newAccountFixture(t)
	identities.activeErr = errors.New("tx aborted")

	err := svc.SetActive(context.Background(), models.Principal{ID: "admin-1"}, "user-2", true, "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTransactionFailed))
}

func TestSetActiveUnknownAccount(t *testing.T) {
	svc, _, _, _ := newAccountFixture(t)

	err := svc.SetActive(context.Background(), models.Principal{ID: "admin-1"}, "ghost", true, "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestPendingListsInactiveOnly(t *testing.T) {
	svc, _, _, _ := newAccountFixture(t)

	pending, err := svc.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "user-2", pending[0].ID)
}

func TestApplyDeleteRefusesSelf(t *testing.T) {
	svc, identities, _, _ := newAccountFixture(t)

	err := svc.ApplyDelete(context.Background(), &models.StagedMutation{
		Kind:     models.MutationDelete,
		ActorID:  "user-1",
		TargetID: "user-1",
	}, "127.0.0.1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, identities.deleted)
}

func TestApplyCreateProvisionsAdminPin(t *testing.T) {
	svc, _, pins, _ := newAccountFixture(t)

	identity, err := svc.ApplyCreate(context.Background(), &models.StagedMutation{
		Kind:       models.MutationCreate,
		ActorID:    "admin-1",
		Username:   "second_admin",
		Role:       models.RoleAdmin,
		Details:    models.RoleDetails{Admin: &models.AdminDetails{Email: "second@school.edu"}},
		NewPinHash: "hashed-pin",
	}, "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "hashed-pin", pins.created[identity.ID])
}
