package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusdir/directory-api/internal/models"
	"github.com/campusdir/directory-api/internal/service"
	appErrors "github.com/campusdir/directory-api/pkg/errors"
	"github.com/campusdir/directory-api/pkg/response"
)

// AuditHandler serves audit trail exports.
type AuditHandler struct {
	exports *service.ExportService
	enabled bool
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(exports *service.ExportService, enabled bool) *AuditHandler {
	return &AuditHandler{exports: exports, enabled: enabled}
}

// Export godoc
// @Summary Export audit trail
// @Description Download the audit trail as CSV or PDF
// @Tags Audit
// @Produce octet-stream
// @Param format query string true "Export format (csv or pdf)"
// @Param actor query string false "Actor filter"
// @Param action query string false "Action filter"
// @Param from query string false "Start time (RFC3339)"
// @Param to query string false "End time (RFC3339)"
// @Param limit query int false "Row limit"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	if !h.enabled {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "audit export is disabled"))
		return
	}

	var filter models.AuditFilter
	filter.ActorID = c.Query("actor")
	filter.Action = c.Query("action")
	if raw := c.Query("from"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.From = &ts
		}
	}
	if raw := c.Query("to"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.To = &ts
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			filter.Limit = limit
		}
	}

	file, err := h.exports.AuditTrail(c.Request.Context(), filter, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+file.FileName)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
