package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusdir/directory-api/internal/models"
	appErrors "github.com/campusdir/directory-api/pkg/errors"
)

type resetIdentityStore interface {
	FindByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*models.Identity, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

type resetTokenStore interface {
	DeletePendingForUser(ctx context.Context, userID string) error
	Create(ctx context.Context, token *models.ResetToken) error
	ExpireStale(ctx context.Context, now time.Time) error
	FindPending(ctx context.Context, token string) (*models.ResetToken, error)
	MarkUsed(ctx context.Context, id string, usedAt time.Time) error
}

// ResetService issues and consumes password-reset tokens. Issuance never
// reveals whether an account exists; verification and consumption report a
// single generic failure for every invalid token state.
type ResetService struct {
	identities resetIdentityStore
	tokens     resetTokenStore
	audit      *AuditRecorder
	validator  *validator.Validate
	logger     *zap.Logger
	tokenTTL   time.Duration
	now        func() time.Time
}

// NewResetService constructs a ResetService instance.
func NewResetService(identities resetIdentityStore, tokens resetTokenStore, audit *AuditRecorder, validate *validator.Validate, logger *zap.Logger, tokenTTL time.Duration) *ResetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ResetService{
		identities: identities,
		tokens:     tokens,
		audit:      audit,
		validator:  validate,
		logger:     logger,
		tokenTTL:   tokenTTL,
		now:        time.Now,
	}
}

// Issue creates a fresh reset token for the matched identity, replacing any
// outstanding pending token. The token value is returned for delivery by the
// caller; when the lookup misses, Issue returns an empty token and no error so
// responses stay uniform.
func (s *ResetService) Issue(ctx context.Context, req models.ForgotPasswordRequest, ip string) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset request")
	}

	identity, err := s.identities.FindByUsernameOrEmail(ctx, req.UsernameOrEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch identity")
	}

	if err := s.tokens.DeletePendingForUser(ctx, identity.ID); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to supersede pending tokens")
	}

	value, err := newTokenValue()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate token")
	}

	now := s.now().UTC()
	token := &models.ResetToken{
		UserID:    identity.ID,
		Token:     value,
		ExpiresAt: now.Add(s.tokenTTL),
		Status:    models.TokenStatusPending,
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store token")
	}

	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   &identity.ID,
		Action:    models.AuditActionResetIssued,
		TableName: strPtr("reset_tokens"),
		RowID:     &token.ID,
		Detail:    "password reset token issued",
		IPAddress: ip,
	})
	return value, nil
}

// Verify checks that a token exists, is pending, and is not past its expiry.
// Overdue pending tokens are flipped to EXPIRED first, so a token is never
// honoured past its window regardless of when cleanup last ran.
func (s *ResetService) Verify(ctx context.Context, value string) (*models.ResetToken, error) {
	now := s.now().UTC()
	if err := s.tokens.ExpireStale(ctx, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire stale tokens")
	}

	token, err := s.tokens.FindPending(ctx, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch token")
	}
	if !now.Before(token.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
	}
	return token, nil
}

// Consume redeems a verified token: the new password replaces the old hash and
// the token moves to its terminal USED state so it cannot be redeemed twice.
func (s *ResetService) Consume(ctx context.Context, req models.ResetPasswordRequest, ip string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset payload")
	}
	if !validPassword(req.NewPassword) {
		return appErrors.Clone(appErrors.ErrValidation, "password must be at least 8 characters with upper case, lower case, and a digit")
	}

	token, err := s.Verify(ctx, req.Token)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	now := s.now().UTC()
	if err := s.identities.UpdatePassword(ctx, token.UserID, string(hash), now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	if err := s.tokens.MarkUsed(ctx, token.ID, now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire token")
	}

	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   &token.UserID,
		Action:    models.AuditActionResetConsumed,
		TableName: strPtr("reset_tokens"),
		RowID:     &token.ID,
		Detail:    "password reset token consumed",
		IPAddress: ip,
	})
	return nil
}

// newTokenValue returns 32 random bytes as lowercase hex.
func newTokenValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
