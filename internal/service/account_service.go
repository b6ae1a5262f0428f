package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusdir/directory-api/internal/models"
	appErrors "github.com/campusdir/directory-api/pkg/errors"
)

type accountIdentityStore interface {
	FindByID(ctx context.Context, id string) (*models.Identity, error)
	UsernameExists(ctx context.Context, username, excludeID string) (bool, error)
	EmailExists(ctx context.Context, email, excludeID string) (bool, error)
	List(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, int, error)
	PendingAccounts(ctx context.Context) ([]models.PendingAccount, error)
	Create(ctx context.Context, identity *models.Identity, details models.RoleDetails) error
	Update(ctx context.Context, identity *models.Identity) error
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
}

type accountPinStore interface {
	Create(ctx context.Context, userID, pinHash string, createdAt time.Time) error
	Upsert(ctx context.Context, userID, pinHash string, changedAt time.Time) error
}

// AccountService manages directory accounts: listing, self-registration, the
// approval queue, and the execution of confirmed privileged mutations.
type AccountService struct {
	identities accountIdentityStore
	pins       accountPinStore
	audit      *AuditRecorder
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewAccountService constructs an AccountService instance.
func NewAccountService(identities accountIdentityStore, pins accountPinStore, audit *AuditRecorder, validate *validator.Validate, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AccountService{
		identities: identities,
		pins:       pins,
		audit:      audit,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// List returns directory accounts matching the filter with pagination metadata.
func (s *AccountService) List(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, *models.Pagination, error) {
	identities, total, err := s.identities.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list accounts")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return identities, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one account by identifier.
func (s *AccountService) Get(ctx context.Context, id string) (*models.Identity, error) {
	identity, err := s.identities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch account")
	}
	return identity, nil
}

// Pending lists self-registered accounts awaiting approval.
func (s *AccountService) Pending(ctx context.Context) ([]models.PendingAccount, error) {
	pending, err := s.identities.PendingAccounts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending accounts")
	}
	return pending, nil
}

// Register creates an inactive STAFF or STUDENT account from the public
// self-registration form. The account stays unusable until an admin approves it.
func (s *AccountService) Register(ctx context.Context, req models.RegisterRequest, ip string) (*models.Identity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if !validPassword(req.Password) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "password must be at least 8 characters with upper case, lower case, and a digit")
	}
	if err := s.ValidateNewIdentity(ctx, req.Username, req.Role, req.Details, ""); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	identity := &models.Identity{
		Username:     req.Username,
		Email:        req.Details.ContactEmail(),
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       false,
	}
	if err := s.identities.Create(ctx, identity, req.Details); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransactionFailed.Code, appErrors.ErrTransactionFailed.Status, appErrors.ErrTransactionFailed.Message)
	}

	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   &identity.ID,
		Action:    models.AuditActionUserCreate,
		TableName: strPtr("users"),
		RowID:     &identity.ID,
		Detail:    "self-registration pending approval",
		IPAddress: ip,
	})
	return identity, nil
}

// SetActive approves or deactivates an account. The underlying write flips the
// identity and its profile row together; a failure leaves every table untouched.
func (s *AccountService) SetActive(ctx context.Context, actor models.Principal, id string, active bool, ip string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.identities.SetActive(ctx, id, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrTransactionFailed.Code, appErrors.ErrTransactionFailed.Status, appErrors.ErrTransactionFailed.Message)
	}

	action := models.AuditActionUserApprove
	detail := "account approved"
	if !active {
		action = models.AuditActionUserDeactivate
		detail = "account deactivated"
	}
	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   &actor.ID,
		Action:    action,
		TableName: strPtr("users"),
		RowID:     &id,
		Detail:    detail,
		IPAddress: ip,
	})
	return nil
}

// ValidateNewIdentity runs the field rules and uniqueness checks shared by
// self-registration and staged admin mutations. excludeID exempts an existing
// identity from the uniqueness checks on update.
func (s *AccountService) ValidateNewIdentity(ctx context.Context, username string, role models.Role, details models.RoleDetails, excludeID string) error {
	if !validUsername(username) {
		return appErrors.Clone(appErrors.ErrValidation, "username must be 4 to 20 letters, digits, or underscores")
	}
	if !role.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	if details.Variant() != role {
		return appErrors.Clone(appErrors.ErrValidation, "details do not match the requested role")
	}
	if err := s.validateDetails(role, details); err != nil {
		return err
	}

	taken, err := s.identities.UsernameExists(ctx, username, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, "username already in use")
	}
	inUse, err := s.identities.EmailExists(ctx, details.ContactEmail(), excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if inUse {
		return appErrors.Clone(appErrors.ErrConflict, "email already in use")
	}
	return nil
}

func (s *AccountService) validateDetails(role models.Role, details models.RoleDetails) error {
	now := s.now().UTC()
	switch role {
	case models.RoleAdmin:
		if err := s.validator.Struct(details.Admin); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admin details")
		}
		if !validInstitutionalEmail(details.Admin.Email) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("email must end with %s", emailDomain))
		}
	case models.RoleStaff:
		if err := s.validator.Struct(details.Staff); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid staff details")
		}
		d := details.Staff
		if !validName(d.FirstName) || !validName(d.LastName) {
			return appErrors.Clone(appErrors.ErrValidation, "names must be 2 to 40 letters")
		}
		if !validInstitutionalEmail(d.Email) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("email must end with %s", emailDomain))
		}
		if d.Department != "" && !validDepartment(d.Department) {
			return appErrors.Clone(appErrors.ErrValidation, "department may contain letters and spaces only")
		}
		if !validHireDate(d.HireDate, now) {
			return appErrors.Clone(appErrors.ErrValidation, "hire date must not be in the future")
		}
	case models.RoleStudent:
		if err := s.validator.Struct(details.Student); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student details")
		}
		d := details.Student
		if !validName(d.FirstName) || !validName(d.LastName) {
			return appErrors.Clone(appErrors.ErrValidation, "names must be 2 to 40 letters")
		}
		if !validInstitutionalEmail(d.Email) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("email must end with %s", emailDomain))
		}
		if !validDateOfBirth(d.DateOfBirth, now) {
			return appErrors.Clone(appErrors.ErrValidation, "date of birth must be in the past")
		}
	}
	return nil
}

// ApplyCreate executes a confirmed CREATE mutation. Uniqueness is re-checked
// because the directory can change between staging and confirmation.
func (s *AccountService) ApplyCreate(ctx context.Context, m *models.StagedMutation, ip string) (*models.Identity, error) {
	if err := s.ValidateNewIdentity(ctx, m.Username, m.Role, m.Details, ""); err != nil {
		return nil, err
	}

	active := true
	if m.Active != nil {
		active = *m.Active
	}
	identity := &models.Identity{
		Username:     m.Username,
		Email:        m.Details.ContactEmail(),
		PasswordHash: m.PasswordHash,
		Role:         m.Role,
		Active:       active,
	}
	if err := s.identities.Create(ctx, identity, m.Details); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransactionFailed.Code, appErrors.ErrTransactionFailed.Status, appErrors.ErrTransactionFailed.Message)
	}

	if m.Role == models.RoleAdmin && m.NewPinHash != "" {
		if err := s.pins.Create(ctx, identity.ID, m.NewPinHash, s.now().UTC()); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrTransactionFailed.Code, appErrors.ErrTransactionFailed.Status, appErrors.ErrTransactionFailed.Message)
		}
	}

	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   &m.ActorID,
		Action:    models.AuditActionUserCreate,
		TableName: strPtr("users"),
		RowID:     &identity.ID,
		Detail:    fmt.Sprintf("created %s account %s", m.Role, m.Username),
		IPAddress: ip,
	})
	return identity, nil
}

// ApplyUpdate executes a confirmed UPDATE mutation. Staged updates carry the
// complete replacement state, so Details is always the full variant for the
// target role; an empty PasswordHash keeps the stored one.
func (s *AccountService) ApplyUpdate(ctx context.Context, m *models.StagedMutation, ip string) (*models.Identity, error) {
	identity, err := s.Get(ctx, m.TargetID)
	if err != nil {
		return nil, err
	}
	if err := s.ValidateNewIdentity(ctx, m.Username, m.Role, m.Details, m.TargetID); err != nil {
		return nil, err
	}

	identity.Username = m.Username
	identity.Role = m.Role
	identity.PasswordHash = m.PasswordHash
	if m.Active != nil {
		identity.Active = *m.Active
	}
	if err := s.identities.Update(ctx, identity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransactionFailed.Code, appErrors.ErrTransactionFailed.Status, appErrors.ErrTransactionFailed.Message)
	}

	if m.Role == models.RoleAdmin && m.NewPinHash != "" {
		if err := s.pins.Upsert(ctx, identity.ID, m.NewPinHash, s.now().UTC()); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrTransactionFailed.Code, appErrors.ErrTransactionFailed.Status, appErrors.ErrTransactionFailed.Message)
		}
	}

	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   &m.ActorID,
		Action:    models.AuditActionUserUpdate,
		TableName: strPtr("users"),
		RowID:     &m.TargetID,
		Detail:    fmt.Sprintf("updated account %s", m.Username),
		IPAddress: ip,
	})
	return identity, nil
}

// ApplyDelete executes a confirmed DELETE mutation. Admins cannot delete their
// own account; that check happens here as well as at staging time.
func (s *AccountService) ApplyDelete(ctx context.Context, m *models.StagedMutation, ip string) error {
	if m.TargetID == m.ActorID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete your own account")
	}
	identity, err := s.Get(ctx, m.TargetID)
	if err != nil {
		return err
	}
	if err := s.identities.Delete(ctx, m.TargetID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrTransactionFailed.Code, appErrors.ErrTransactionFailed.Status, appErrors.ErrTransactionFailed.Message)
	}

	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   &m.ActorID,
		Action:    models.AuditActionUserDelete,
		TableName: strPtr("users"),
		RowID:     &m.TargetID,
		Detail:    fmt.Sprintf("deleted account %s", identity.Username),
		IPAddress: ip,
	})
	return nil
}
