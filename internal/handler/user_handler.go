package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campusdir/directory-api/internal/models"
	"github.com/campusdir/directory-api/internal/service"
	appErrors "github.com/campusdir/directory-api/pkg/errors"
	"github.com/campusdir/directory-api/pkg/response"
)

// UserHandler handles directory account endpoints, including the two-phase
// staging and confirmation of privileged mutations.
type UserHandler struct {
	accounts *service.AccountService
	gateway  *service.GatewayService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(accounts *service.AccountService, gateway *service.GatewayService) *UserHandler {
	return &UserHandler{accounts: accounts, gateway: gateway}
}

// List godoc
// @Summary List accounts
// @Description List directory accounts with pagination and filtering
// @Tags Users
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param role query string false "Role filter"
// @Param active query bool false "Active filter"
// @Param search query string false "Search term"
// @Param sort_by query string false "Sort by"
// @Param sort_order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	var filter models.IdentityFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}

	if role := c.Query("role"); role != "" {
		r := models.Role(role)
		filter.Role = &r
	}

	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
		}
	}

	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	identities, pagination, err := h.accounts.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, identities, pagination)
}

// Get godoc
// @Summary Get account
// @Description Get one directory account
// @Tags Users
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	identity, err := h.accounts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, identity, nil)
}

// StageCreate godoc
// @Summary Stage account creation
// @Description Validate and park an account creation; returns a transfer token for PIN confirmation
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body models.StageAccountRequest true "Account payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users/stage [post]
func (h *UserHandler) StageCreate(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.StageAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid account payload"))
		return
	}

	res, err := h.gateway.StageCreate(c.Request.Context(), principal, req, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// StageUpdate godoc
// @Summary Stage account update
// @Description Validate and park an account update; returns a transfer token for PIN confirmation
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param payload body models.StageAccountRequest true "Account payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id}/stage [put]
func (h *UserHandler) StageUpdate(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.StageAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid account payload"))
		return
	}

	res, err := h.gateway.StageUpdate(c.Request.Context(), principal, c.Param("id"), req, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// StageDelete godoc
// @Summary Stage account deletion
// @Description Park an account deletion; returns a transfer token for PIN confirmation
// @Tags Users
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id}/stage [delete]
func (h *UserHandler) StageDelete(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	res, err := h.gateway.StageDelete(c.Request.Context(), principal, c.Param("id"), c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Confirm godoc
// @Summary Confirm staged mutation
// @Description Redeem a transfer token with a PIN to apply the staged mutation
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body models.ConfirmMutationRequest true "Confirmation payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /users/confirm [post]
func (h *UserHandler) Confirm(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req models.ConfirmMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid confirmation payload"))
		return
	}

	identity, err := h.gateway.Execute(c.Request.Context(), principal, req, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	if identity == nil {
		response.NoContent(c)
		return
	}
	response.JSON(c, http.StatusOK, identity, nil)
}
