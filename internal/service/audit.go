package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/campusdir/directory-api/internal/models"
)

type auditStore interface {
	Create(ctx context.Context, event *models.AuditEvent) error
}

// AuditRecorder writes security-relevant events to the append-only trail.
// Recording is best-effort: a failed write is logged at Warn and swallowed so
// auditing can never fail the operation it documents.
type AuditRecorder struct {
	repo   auditStore
	logger *zap.Logger
}

// NewAuditRecorder constructs an AuditRecorder.
func NewAuditRecorder(repo auditStore, logger *zap.Logger) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRecorder{repo: repo, logger: logger}
}

// Record appends one event, swallowing any storage failure.
func (r *AuditRecorder) Record(ctx context.Context, event *models.AuditEvent) {
	if r == nil || r.repo == nil || event == nil {
		return
	}
	if err := r.repo.Create(ctx, event); err != nil {
		r.logger.Warn("failed to record audit event",
			zap.String("action", event.Action),
			zap.Error(err))
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
