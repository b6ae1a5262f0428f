package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusdir/directory-api/internal/models"
	appErrors "github.com/campusdir/directory-api/pkg/errors"
	"github.com/campusdir/directory-api/pkg/export"
)

type auditListStore interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error)
}

// ExportFile is the rendered export returned to handlers.
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportService renders the audit trail as downloadable CSV or PDF files.
type ExportService struct {
	audits auditListStore
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService instance.
func NewExportService(audits auditListStore, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		audits: audits,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
		now:    time.Now,
	}
}

var auditExportHeaders = []string{"Time", "Actor", "Action", "Table", "Row", "Detail", "IP"}

// AuditTrail renders audit events matching the filter in the requested format.
// Supported formats are "csv" and "pdf".
func (s *ExportService) AuditTrail(ctx context.Context, filter models.AuditFilter, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "csv" && format != "pdf" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	events, err := s.audits.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit events")
	}

	dataset := export.Dataset{Headers: auditExportHeaders, Rows: make([]map[string]string, 0, len(events))}
	for _, event := range events {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Time":   event.CreatedAt.UTC().Format(time.RFC3339),
			"Actor":  derefStr(event.ActorID),
			"Action": event.Action,
			"Table":  derefStr(event.TableName),
			"Row":    derefStr(event.RowID),
			"Detail": event.Detail,
			"IP":     event.IPAddress,
		})
	}

	stamp := s.now().UTC().Format("20060102-150405")
	switch format {
	case "csv":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{
			FileName:    fmt.Sprintf("audit-trail-%s.csv", stamp),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	default:
		data, err := s.pdf.Render(dataset, "Audit Trail")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{
			FileName:    fmt.Sprintf("audit-trail-%s.pdf", stamp),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	}
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
