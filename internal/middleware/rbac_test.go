package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/campusdir/directory-api/internal/models"
)

func newRBACRouter(principal *models.Principal, guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	inject := func(c *gin.Context) {
		if principal != nil {
			c.Set(ContextPrincipalKey, *principal)
		}
		c.Next()
	}
	r.GET("/resource/:id", inject, guard, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func doGet(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRBACAllowsMatchingRole(t *testing.T) {
	principal := &models.Principal{ID: "admin-1", Role: models.RoleAdmin}
	r := newRBACRouter(principal, RequireRoles(models.RoleAdmin))

	assert.Equal(t, http.StatusOK, doGet(r, "/resource/x").Code)
}

func TestRBACForbidsOtherRole(t *testing.T) {
	principal := &models.Principal{ID: "user-1", Role: models.RoleStudent}
	r := newRBACRouter(principal, RequireRoles(models.RoleAdmin))

	assert.Equal(t, http.StatusForbidden, doGet(r, "/resource/x").Code)
}

func TestRBACSelfMatchOnPathParam(t *testing.T) {
	principal := &models.Principal{ID: "user-1", Role: models.RoleStudent}
	r := newRBACRouter(principal, RBAC(string(models.RoleAdmin), "SELF"))

	assert.Equal(t, http.StatusOK, doGet(r, "/resource/user-1").Code)
	assert.Equal(t, http.StatusForbidden, doGet(r, "/resource/user-2").Code)
}

func TestRBACRejectsMissingPrincipal(t *testing.T) {
	r := newRBACRouter(nil, RequireRoles(models.RoleAdmin))

	assert.Equal(t, http.StatusUnauthorized, doGet(r, "/resource/x").Code)
}
