package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusdir/directory-api/internal/models"
	"github.com/campusdir/directory-api/internal/repository"
	appErrors "github.com/campusdir/directory-api/pkg/errors"
)

type mutationStagingStore interface {
	Put(ctx context.Context, mutation *models.StagedMutation) error
	Get(ctx context.Context, id string) (*models.StagedMutation, error)
	Delete(ctx context.Context, id string) error
	TTL() time.Duration
}

// GatewayService is the two-phase gateway in front of privileged directory
// mutations. Stage validates a mutation and parks it server-side; Execute
// redeems the signed transfer token, passes the PIN gate, and applies the
// parked mutation. The client only ever holds an opaque signed reference.
type GatewayService struct {
	staging   mutationStagingStore
	accounts  *AccountService
	pins      *PinService
	audit     *AuditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	secret    []byte
	now       func() time.Time
}

// NewGatewayService constructs a GatewayService instance.
func NewGatewayService(staging mutationStagingStore, accounts *AccountService, pins *PinService, audit *AuditRecorder, validate *validator.Validate, logger *zap.Logger, secret string) *GatewayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &GatewayService{
		staging:   staging,
		accounts:  accounts,
		pins:      pins,
		audit:     audit,
		validator: validate,
		logger:    logger,
		secret:    []byte(secret),
		now:       time.Now,
	}
}

// StageCreate validates and parks a CREATE mutation, returning the transfer
// token for the confirmation phase.
func (s *GatewayService) StageCreate(ctx context.Context, actor models.Principal, req models.StageAccountRequest, ip string) (*models.StageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid account payload")
	}
	if !validPassword(req.Password) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "password must be at least 8 characters with upper case, lower case, and a digit")
	}
	if err := s.accounts.ValidateNewIdentity(ctx, req.Username, req.Role, req.Details, ""); err != nil {
		return nil, err
	}

	var pinHash string
	if req.Role == models.RoleAdmin {
		if !validPin(req.NewPin) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "admin accounts require a six digit PIN")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPin), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash PIN")
		}
		pinHash = string(hash)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	mutation := &models.StagedMutation{
		Kind:         models.MutationCreate,
		ActorID:      actor.ID,
		Username:     req.Username,
		PasswordHash: string(passwordHash),
		Role:         req.Role,
		Active:       req.Active,
		Details:      req.Details,
		NewPinHash:   pinHash,
	}
	return s.stage(ctx, actor, mutation, ip, fmt.Sprintf("staged create of %s account %s", req.Role, req.Username))
}

// StageUpdate validates and parks an UPDATE mutation against an existing
// account.
func (s *GatewayService) StageUpdate(ctx context.Context, actor models.Principal, targetID string, req models.StageAccountRequest, ip string) (*models.StageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid account payload")
	}
	target, err := s.accounts.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if req.Password != "" && !validPassword(req.Password) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "password must be at least 8 characters with upper case, lower case, and a digit")
	}
	if err := s.accounts.ValidateNewIdentity(ctx, req.Username, req.Role, req.Details, targetID); err != nil {
		return nil, err
	}

	// A promotion to ADMIN must provision a PIN in the same mutation or the
	// promoted account can never pass the PIN gate.
	var pinHash string
	if req.Role == models.RoleAdmin && req.NewPin != "" {
		if !validPin(req.NewPin) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "admin PIN must be six digits")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPin), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash PIN")
		}
		pinHash = string(hash)
	}
	if req.Role == models.RoleAdmin && target.Role != models.RoleAdmin && pinHash == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "promoting an account to ADMIN requires a six digit PIN")
	}

	var passwordHash string
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		passwordHash = string(hash)
	}

	mutation := &models.StagedMutation{
		Kind:         models.MutationUpdate,
		ActorID:      actor.ID,
		TargetID:     targetID,
		Username:     req.Username,
		PasswordHash: passwordHash,
		Role:         req.Role,
		Active:       req.Active,
		Details:      req.Details,
		NewPinHash:   pinHash,
	}
	return s.stage(ctx, actor, mutation, ip, fmt.Sprintf("staged update of account %s", targetID))
}

// StageDelete validates and parks a DELETE mutation. Self-deletion is refused
// up front rather than at confirmation.
func (s *GatewayService) StageDelete(ctx context.Context, actor models.Principal, targetID, ip string) (*models.StageResponse, error) {
	if targetID == actor.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot delete your own account")
	}
	if _, err := s.accounts.Get(ctx, targetID); err != nil {
		return nil, err
	}

	mutation := &models.StagedMutation{
		Kind:     models.MutationDelete,
		ActorID:  actor.ID,
		TargetID: targetID,
	}
	return s.stage(ctx, actor, mutation, ip, fmt.Sprintf("staged delete of account %s", targetID))
}

// Execute redeems a transfer token: the staged record must exist, belong to the
// presenting actor, and the PIN gate must pass before the mutation is applied.
// The staged record survives a failed PIN so the actor can retry inside the
// window; it is removed once applied.
func (s *GatewayService) Execute(ctx context.Context, actor models.Principal, req models.ConfirmMutationRequest, ip string) (*models.Identity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid confirmation payload")
	}

	stagingID, err := s.parseTransferToken(req.TransferToken)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "confirmation window expired or token invalid")
	}

	mutation, err := s.staging.Get(ctx, stagingID)
	if err != nil {
		if errors.Is(err, repository.ErrStagingNotFound) {
			return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "confirmation window expired or token invalid")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staged mutation")
	}

	if mutation.ActorID != actor.ID {
		s.audit.Record(ctx, &models.AuditEvent{
			ActorID:   &actor.ID,
			Action:    models.AuditActionMutationDenied,
			TableName: strPtr("users"),
			RowID:     strPtr(mutation.TargetID),
			Detail:    "transfer token presented by a different actor",
			IPAddress: ip,
		})
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}

	if err := s.pins.Verify(ctx, actor, req.Pin, ip); err != nil {
		return nil, err
	}

	var result *models.Identity
	switch mutation.Kind {
	case models.MutationCreate:
		result, err = s.accounts.ApplyCreate(ctx, mutation, ip)
	case models.MutationUpdate:
		result, err = s.accounts.ApplyUpdate(ctx, mutation, ip)
	case models.MutationDelete:
		err = s.accounts.ApplyDelete(ctx, mutation, ip)
	default:
		err = appErrors.Clone(appErrors.ErrInternal, "unknown staged mutation kind")
	}
	if err != nil {
		s.audit.Record(ctx, &models.AuditEvent{
			ActorID:   &actor.ID,
			Action:    models.AuditActionMutationFailed,
			TableName: strPtr("users"),
			RowID:     strPtr(mutation.TargetID),
			Detail:    fmt.Sprintf("%s mutation failed: %v", mutation.Kind, err),
			IPAddress: ip,
		})
		return nil, err
	}

	if err := s.staging.Delete(ctx, mutation.ID); err != nil {
		s.logger.Warn("failed to remove staged mutation", zap.Error(err))
	}
	return result, nil
}

func (s *GatewayService) stage(ctx context.Context, actor models.Principal, mutation *models.StagedMutation, ip, detail string) (*models.StageResponse, error) {
	now := s.now().UTC()
	mutation.ID = uuid.NewString()
	mutation.StagedAt = now

	if err := s.staging.Put(ctx, mutation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to park staged mutation")
	}

	token, err := s.mintTransferToken(mutation.ID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign transfer token")
	}

	s.audit.Record(ctx, &models.AuditEvent{
		ActorID:   &actor.ID,
		Action:    models.AuditActionMutationStaged,
		TableName: strPtr("users"),
		RowID:     strPtr(mutation.TargetID),
		Detail:    detail,
		IPAddress: ip,
	})
	return &models.StageResponse{
		TransferToken: token,
		ExpiresIn:     int64(s.staging.TTL().Seconds()),
	}, nil
}

func (s *GatewayService) mintTransferToken(stagingID string, now time.Time) (string, error) {
	claims := models.TransferClaims{
		StagingID: stagingID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.staging.TTL())),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *GatewayService) parseTransferToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &models.TransferClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*models.TransferClaims)
	if !ok || claims.StagingID == "" {
		return "", errors.New("malformed transfer claims")
	}
	return claims.StagingID, nil
}
