package models

import "time"

// Session is the server-side record behind an opaque session identifier. The
// identifier itself is never stored; it is the Redis key. LastActivity backs
// the idle-timeout check and is refreshed on every authenticated request.
type Session struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Principal converts the session record to its handler-facing view.
func (s *Session) Principal() Principal {
	return Principal{ID: s.UserID, Username: s.Username, Role: s.Role}
}
