package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campusdir/directory-api/internal/middleware"
	"github.com/campusdir/directory-api/internal/models"
)

func principalFromContext(c *gin.Context) (models.Principal, bool) {
	value, exists := c.Get(middleware.ContextPrincipalKey)
	if !exists {
		return models.Principal{}, false
	}
	principal, ok := value.(models.Principal)
	return principal, ok
}

func sessionIDFromContext(c *gin.Context) string {
	value, exists := c.Get(middleware.ContextSessionIDKey)
	if !exists {
		return ""
	}
	id, _ := value.(string)
	return id
}
