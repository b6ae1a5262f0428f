package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusdir/directory-api/internal/repository"
	appErrors "github.com/campusdir/directory-api/pkg/errors"
	"github.com/campusdir/directory-api/pkg/response"
)

// Context keys for the authenticated request.
const (
	ContextPrincipalKey = "currentPrincipal"
	ContextSessionIDKey = "currentSessionID"
)

// Session protects routes by requiring a live server-side session. Each
// accepted request slides the idle window forward; an overdue session is
// destroyed and the request rejected.
func Session(store *repository.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := sessionIDFrom(c)
		if id == "" {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}

		session, err := store.Touch(c.Request.Context(), id, time.Now().UTC())
		if err != nil {
			switch {
			case errors.Is(err, repository.ErrSessionExpired):
				response.Error(c, appErrors.ErrSessionExpired)
			case errors.Is(err, repository.ErrSessionNotFound):
				response.Error(c, appErrors.ErrUnauthenticated)
			default:
				response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "session lookup failed"))
			}
			c.Abort()
			return
		}

		c.Set(ContextPrincipalKey, session.Principal())
		c.Set(ContextSessionIDKey, id)
		c.Next()
	}
}

// sessionIDFrom extracts the session identifier from the Authorization bearer
// header, falling back to the X-Session-ID header.
func sessionIDFrom(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(c.GetHeader("X-Session-ID"))
}
