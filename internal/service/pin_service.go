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

type pinStore interface {
	Find(ctx context.Context, userID string) (*models.AdminPin, error)
	RegisterFailure(ctx context.Context, userID string, maxAttempts int, lockUntil time.Time) (*models.AdminPin, error)
	ResetAttempts(ctx context.Context, userID string) error
	UpdateHash(ctx context.Context, userID, pinHash string, changedAt time.Time) error
}

// PinService owns the confirmation PIN and its lockout machine. Every
// privileged mutation passes through Verify before it is applied.
type PinService struct {
	pins         pinStore
	audit        *AuditRecorder
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	maxAttempts  int
	lockDuration time.Duration
	now          func() time.Time
}

// NewPinService constructs a PinService instance.
func NewPinService(pins pinStore, audit *AuditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, maxAttempts int, lockDuration time.Duration) *PinService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PinService{
		pins:         pins,
		audit:        audit,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		maxAttempts:  maxAttempts,
		lockDuration: lockDuration,
		now:          time.Now,
	}
}

// Verify checks a PIN submission against the actor's stored hash and advances
// the lockout machine. Submissions while locked and malformed submissions are
// rejected without consuming an attempt. A wrong PIN consumes exactly one
// attempt, and the attempt that reaches the limit engages the lock.
func (s *PinService) Verify(ctx context.Context, actor models.Principal, pin, ip string) error {
	row, err := s.pins.Find(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.audit.Record(ctx, &models.AuditEvent{
				ActorID:   &actor.ID,
				Action:    models.AuditActionPinMissing,
				TableName: strPtr("admin_pins"),
				RowID:     &actor.ID,
				Detail:    "confirmation attempted with no PIN row",
				IPAddress: ip,
			})
			return appErrors.Clone(appErrors.ErrInternal, "privileged confirmation is not available")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch PIN")
	}

	now := s.now().UTC()
	if row.LockedAt(now) {
		return appErrors.Clone(appErrors.ErrPinLocked, "")
	}

	if !validPin(pin) {
		return appErrors.Clone(appErrors.ErrValidation, "PIN must be exactly six digits")
	}

	if bcrypt.CompareHashAndPassword([]byte(row.PinHash), []byte(pin)) != nil {
		return s.registerFailure(ctx, actor, ip, now)
	}

	if row.FailedAttempts > 0 {
		if err := s.pins.ResetAttempts(ctx, actor.ID); err != nil {
			s.logger.Warn("failed to reset pin attempts", zap.Error(err))
		}
	}
	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   &actor.ID,
		Action:    models.AuditActionPinVerified,
		TableName: strPtr("admin_pins"),
		RowID:     &actor.ID,
		Detail:    "PIN verified",
		IPAddress: ip,
	})
	return nil
}

// ChangePin rotates the actor's PIN after verifying the current one, so a
// rotation failure counts against the same lockout budget as any other
// confirmation.
func (s *PinService) ChangePin(ctx context.Context, actor models.Principal, req models.ChangePinRequest, ip string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid PIN change payload")
	}
	if req.NewPin != req.ConfirmPin {
		return appErrors.Clone(appErrors.ErrValidation, "new PIN and confirmation do not match")
	}
	if !validPin(req.NewPin) {
		return appErrors.Clone(appErrors.ErrValidation, "PIN must be exactly six digits")
	}

	if err := s.Verify(ctx, actor, req.OldPin, ip); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPin), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash PIN")
	}
	if err := s.pins.UpdateHash(ctx, actor.ID, string(hash), s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store PIN")
	}

	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   &actor.ID,
		Action:    models.AuditActionPinChanged,
		TableName: strPtr("admin_pins"),
		RowID:     &actor.ID,
		Detail:    "PIN changed",
		IPAddress: ip,
	})
	return nil
}

func (s *PinService) registerFailure(ctx context.Context, actor models.Principal, ip string, now time.Time) error {
	updated, err := s.pins.RegisterFailure(ctx, actor.ID, s.maxAttempts, now.Add(s.lockDuration))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record PIN failure")
	}

	lockedNow := updated.FailedAttempts == 0 && updated.LockedAt(now)
	s.metrics.RecordPinFailure(lockedNow)

	if lockedNow {
		s.audit.Record(ctx, &models.AuditEvent{
			ActorID:   &actor.ID,
			Action:    models.AuditActionPinLocked,
			TableName: strPtr("admin_pins"),
			RowID:     &actor.ID,
			Detail:    fmt.Sprintf("PIN locked for %s after %d failures", s.lockDuration, s.maxAttempts),
			IPAddress: ip,
		})
		return appErrors.Clone(appErrors.ErrPinLocked, "")
	}

	remaining := s.maxAttempts - updated.FailedAttempts
	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   &actor.ID,
		Action:    models.AuditActionPinFailed,
		TableName: strPtr("admin_pins"),
		RowID:     &actor.ID,
		Detail:    fmt.Sprintf("incorrect PIN, %d of %d attempts used", updated.FailedAttempts, s.maxAttempts),
		IPAddress: ip,
	})
	return appErrors.Clone(appErrors.ErrPinIncorrect, fmt.Sprintf("incorrect PIN, %d attempt(s) remaining", remaining))
}
