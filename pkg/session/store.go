package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown or expired sessions
var ErrNotFound = errors.New("session not found")

// Session is one modern login
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the session is still usable at now
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.ID != "" && now.Before(s.ExpiresAt)
}

// Store persists sessions
type Store interface {
	// Save stores s until s.ExpiresAt
	Save(ctx context.Context, s *Session) error
	// Get returns ErrNotFound for missing or expired sessions
	Get(ctx context.Context, id string) (*Session, error)
	// Delete is idempotent
	Delete(ctx context.Context, id string) error
}
