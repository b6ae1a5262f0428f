package repository

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campusdir/directory-api/internal/models"
)

// Sentinel errors for session lookups.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

const sessionKeyPrefix = "session:"

// SessionStore keeps server-side session records in Redis. Keys carry the idle
// window as TTL, and the record itself stores the last-activity timestamp so
// the window stays authoritative even if the TTL drifts.
type SessionStore struct {
	client      *redis.Client
	idleTimeout time.Duration
}

// NewSessionStore creates a session store with the canonical idle window.
func NewSessionStore(client *redis.Client, idleTimeout time.Duration) *SessionStore {
	return &SessionStore{client: client, idleTimeout: idleTimeout}
}

// NewSessionID returns a fresh unguessable session identifier. Sessions are
// always created under a new identifier, which is what defeats fixation.
func NewSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Create stores a session record under the given identifier.
func (s *SessionStore) Create(ctx context.Context, id string, session *models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+id, payload, s.idleTimeout).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Touch loads a session, enforces the idle window against its last-activity
// timestamp, and refreshes both the timestamp and the TTL. An overdue session
// is destroyed and reported as expired.
func (s *SessionStore) Touch(ctx context.Context, id string, now time.Time) (*models.Session, error) {
	payload, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	if now.Sub(session.LastActivity) > s.idleTimeout {
		_ = s.client.Del(ctx, sessionKeyPrefix+id).Err()
		return nil, ErrSessionExpired
	}

	session.LastActivity = now
	refreshed, err := json.Marshal(&session)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+id, refreshed, s.idleTimeout).Err(); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	return &session, nil
}

// Delete destroys a session record. Deleting an unknown identifier is not an
// error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
