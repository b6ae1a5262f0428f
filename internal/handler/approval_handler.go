package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusdir/directory-api/internal/service"
	appErrors "github.com/campusdir/directory-api/pkg/errors"
	"github.com/campusdir/directory-api/pkg/response"
)

// ApprovalHandler serves the pending-account queue and activation decisions.
type ApprovalHandler struct {
	accounts *service.AccountService
}

// NewApprovalHandler creates a new approval handler.
func NewApprovalHandler(accounts *service.AccountService) *ApprovalHandler {
	return &ApprovalHandler{accounts: accounts}
}

// List godoc
// @Summary List pending accounts
// @Description List self-registered accounts awaiting approval
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /approvals [get]
func (h *ApprovalHandler) List(c *gin.Context) {
	pending, err := h.accounts.Pending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pending, nil)
}

// Decide godoc
// @Summary Approve or deactivate an account
// @Description Flip an account's active flag together with its profile row
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param payload body object true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /approvals/{id} [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var payload struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	if err := h.accounts.SetActive(c.Request.Context(), principal, c.Param("id"), payload.Active, c.ClientIP()); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"id": c.Param("id"), "active": payload.Active}, nil)
}
