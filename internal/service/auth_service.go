package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusdir/directory-api/internal/models"
	"github.com/campusdir/directory-api/internal/repository"
	appErrors "github.com/campusdir/directory-api/pkg/errors"
)

type authIdentityStore interface {
	FindByUsername(ctx context.Context, username string) (*models.Identity, error)
	RecordLogin(ctx context.Context, id string, ts time.Time) error
	CreateLoginAttempt(ctx context.Context, attempt *models.LoginAttempt) error
}

type authPinStore interface {
	Find(ctx context.Context, userID string) (*models.AdminPin, error)
}

type authSessionStore interface {
	Create(ctx context.Context, id string, session *models.Session) error
	Delete(ctx context.Context, id string) error
}

// AuthService verifies credentials and owns the session lifecycle. Every
// verification step has a distinct audited reason, but callers always receive
// the same generic credential error so account state cannot be enumerated.
type AuthService struct {
	identities  authIdentityStore
	pins        authPinStore
	sessions    authSessionStore
	audit       *AuditRecorder
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	idleTimeout time.Duration
	now         func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(identities authIdentityStore, pins authPinStore, sessions authSessionStore, audit *AuditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, idleTimeout time.Duration) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		identities:  identities,
		pins:        pins,
		sessions:    sessions,
		audit:       audit,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Login authenticates a directory account and establishes a rotated session.
// priorSessionID, when non-empty, names a session to destroy first so a login
// never continues an identifier that predates authentication.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, priorSessionID string) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	identity, err := s.identities.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.failLogin(ctx, nil, req, "unknown username")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch identity")
	}

	if !identity.Active {
		return nil, s.failLogin(ctx, identity, req, "account pending approval")
	}

	if identity.Role != req.Role {
		return nil, s.failLogin(ctx, identity, req, "role mismatch")
	}

	// Admin logins present the PIN and it is checked before the password.
	if identity.Role == models.RoleAdmin {
		if !validPin(req.Pin) {
			return nil, s.failLogin(ctx, identity, req, "admin PIN missing or malformed")
		}
		pin, err := s.pins.Find(ctx, identity.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.audit.Record(ctx, &models.AuditEvent{
					ActorID:   &identity.ID,
					Action:    models.AuditActionPinMissing,
					TableName: strPtr("admin_pins"),
					RowID:     &identity.ID,
					Detail:    "admin identity has no PIN row",
					IPAddress: req.IP,
				})
				return nil, s.failLogin(ctx, identity, req, "admin PIN not provisioned")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch admin PIN")
		}
		if bcrypt.CompareHashAndPassword([]byte(pin.PinHash), []byte(req.Pin)) != nil {
			return nil, s.failLogin(ctx, identity, req, "admin PIN mismatch")
		}
	}

	if bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)) != nil {
		return nil, s.failLogin(ctx, identity, req, "password mismatch")
	}

	now := s.now().UTC()
	if err := s.identities.RecordLogin(ctx, identity.ID, now); err != nil {
		s.logger.Warn("failed to update login stats", zap.Error(err))
	}
	s.recordAttempt(ctx, &identity.ID, true)

	if priorSessionID != "" {
		if err := s.sessions.Delete(ctx, priorSessionID); err != nil {
			s.logger.Warn("failed to destroy prior session", zap.Error(err))
		}
	}

	sessionID, err := repository.NewSessionID()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session identifier")
	}

	session := &models.Session{
		UserID:       identity.ID,
		Username:     identity.Username,
		Role:         identity.Role,
		IPAddress:    req.IP,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.sessions.Create(ctx, sessionID, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist session")
	}

	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   &identity.ID,
		Action:    models.AuditActionLogin,
		TableName: strPtr("users"),
		RowID:     &identity.ID,
		Detail:    "login successful",
		IPAddress: req.IP,
	})
	s.metrics.RecordLoginAttempt(true)
	s.metrics.SessionOpened()

	return &models.LoginResponse{
		SessionID: sessionID,
		ExpiresIn: int64(s.idleTimeout.Seconds()),
		IssuedAt:  now,
		User:      session.Principal(),
	}, nil
}

// Logout destroys the presented session.
func (s *AuthService) Logout(ctx context.Context, sessionID string, actor models.Principal, ip string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to destroy session")
	}
	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   &actor.ID,
		Action:    models.AuditActionLogout,
		TableName: strPtr("users"),
		RowID:     &actor.ID,
		Detail:    "logout",
		IPAddress: ip,
	})
	s.metrics.SessionClosed()
	return nil
}

// failLogin writes the attempt ledger row and the detailed audit reason, then
// returns the one generic credential error shown to every failed login.
func (s *AuthService) failLogin(ctx context.Context, identity *models.Identity, req models.LoginRequest, reason string) error {
	var userID *string
	if identity != nil {
		userID = &identity.ID
	}
	s.recordAttempt(ctx, userID, false)
	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   userID,
		Action:    models.AuditActionLoginFailed,
		TableName: strPtr("users"),
		RowID:     userID,
		Detail:    reason,
		IPAddress: req.IP,
	})
	s.metrics.RecordLoginAttempt(false)
	return appErrors.Clone(appErrors.ErrInvalidCredentials, "")
}

func (s *AuthService) recordAttempt(ctx context.Context, userID *string, success bool) {
	if err := s.identities.CreateLoginAttempt(ctx, &models.LoginAttempt{UserID: userID, Success: success}); err != nil {
		s.logger.Warn("failed to record login attempt", zap.Error(err))
	}
}
