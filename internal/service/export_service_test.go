package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdir/directory-api/internal/models"
	appErrors "github.com/campusdir/directory-api/pkg/errors"
)

type auditListStub struct {
	events []models.AuditEvent
}

func (s *auditListStub) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error) {
	return s.events, nil
}

func TestExportAuditTrailCSV(t *testing.T) {
	actor := "admin-1"
	svc := NewExportService(&auditListStub{events: []models.AuditEvent{
		{ActorID: &actor, Action: models.AuditActionLogin, Detail: "login successful", IPAddress: "127.0.0.1", CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{Action: models.AuditActionLoginFailed, Detail: "unknown username", IPAddress: "127.0.0.1", CreatedAt: time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC)},
	}}, nil)

	file, err := svc.AuditTrail(context.Background(), models.AuditFilter{}, "csv")
	require.NoError(t, err)

	assert.Equal(t, "text/csv", file.ContentType)
	assert.True(t, strings.HasPrefix(file.FileName, "audit-trail-"))

	body := string(file.Data)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Time,Actor,Action,Table,Row,Detail,IP", lines[0])
	assert.Contains(t, lines[1], "LOGIN")
	assert.Contains(t, lines[2], "unknown username")
}

func TestExportAuditTrailPDF(t *testing.T) {
	svc := NewExportService(&auditListStub{events: []models.AuditEvent{
		{Action: models.AuditActionPinLocked, Detail: "PIN locked", IPAddress: "127.0.0.1", CreatedAt: time.Now().UTC()},
	}}, nil)

	file, err := svc.AuditTrail(context.Background(), models.AuditFilter{}, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Data), "%PDF"))
}

func TestExportAuditTrailUnknownFormat(t *testing.T) {
	svc := NewExportService(&auditListStub{}, nil)

	_, err := svc.AuditTrail(context.Background(), models.AuditFilter{}, "xlsx")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
