package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusdir/directory-api/internal/models"
	"github.com/campusdir/directory-api/internal/service"
	appErrors "github.com/campusdir/directory-api/pkg/errors"
	"github.com/campusdir/directory-api/pkg/response"
)

// PinHandler handles PIN rotation for admin accounts.
type PinHandler struct {
	pins *service.PinService
}

// NewPinHandler creates a new PIN handler.
func NewPinHandler(pins *service.PinService) *PinHandler {
	return &PinHandler{pins: pins}
}

// Change godoc
// @Summary Change confirmation PIN
// @Description Rotate the admin PIN; the old PIN passes the same lockout gate as mutations
// @Tags PIN
// @Accept json
// @Produce json
// @Param payload body models.ChangePinRequest true "PIN change payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /pin [post]
func (h *PinHandler) Change(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.ChangePinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid PIN change payload"))
		return
	}

	if err := h.pins.ChangePin(c.Request.Context(), principal, req, c.ClientIP()); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": "PIN updated"}, nil)
}
