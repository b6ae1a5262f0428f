package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdir/directory-api/internal/models"
	"github.com/campusdir/directory-api/internal/repository"
)

func newGuardedRouter(t *testing.T, idle time.Duration) (*gin.Engine, *repository.SessionStore) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := repository.NewSessionStore(client, idle)

	r := gin.New()
	r.GET("/protected", Session(store), func(c *gin.Context) {
		principal := c.MustGet(ContextPrincipalKey).(models.Principal)
		c.JSON(http.StatusOK, gin.H{"user": principal.Username})
	})
	return r, store
}

func TestSessionMiddlewareAllowsLiveSession(t *testing.T) {
	r, store := newGuardedRouter(t, 15*time.Minute)
	now := time.Now().UTC()
	require.NoError(t, store.Create(context.Background(), "sess-1", &models.Session{
		UserID:       "user-1",
		Username:     "alice",
		Role:         models.RoleStaff,
		LastActivity: now,
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer sess-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice")
}

func TestSessionMiddlewareRejectsMissingCredential(t *testing.T) {
	r, _ := newGuardedRouter(t, 15*time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionMiddlewareRejectsUnknownSession(t *testing.T) {
	r, _ := newGuardedRouter(t, 15*time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer ghost")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionMiddlewareRejectsIdleSession(t *testing.T) {
	r, store := newGuardedRouter(t, 15*time.Minute)
	stale := time.Now().UTC().Add(-16 * time.Minute)
	require.NoError(t, store.Create(context.Background(), "sess-1", &models.Session{
		UserID:       "user-1",
		Username:     "alice",
		LastActivity: stale,
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer sess-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "SESSION_EXPIRED")
}

func TestSessionMiddlewareAcceptsHeaderFallback(t *testing.T) {
	r, store := newGuardedRouter(t, 15*time.Minute)
	require.NoError(t, store.Create(context.Background(), "sess-1", &models.Session{
		UserID:       "user-1",
		Username:     "alice",
		LastActivity: time.Now().UTC(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-Session-ID", "sess-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
