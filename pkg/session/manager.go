package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/partnerauth/pkg/contextkeys"
	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/platinummonkey/partnerauth/pkg/observability"
)

// Manager issues, looks up and revokes modern sessions
type Manager struct {
	store   Store
	cookies CookieConfig
	metrics *observability.Metrics
	now     func() time.Time
}

// NewManager creates a manager. metrics may be nil.
func NewManager(store Store, cookies CookieConfig, metrics *observability.Metrics) *Manager {
	return &Manager{
		store:   store,
		cookies: cookies.withDefaults(),
		metrics: metrics,
		now:     time.Now,
	}
}

// Cookies returns the effective cookie configuration
func (m *Manager) Cookies() CookieConfig {
	return m.cookies
}

// Issue creates a session for rec and sets the session cookie
func (m *Manager) Issue(ctx context.Context, w http.ResponseWriter, rec *identity.LocalUserRecord) (*Session, error) {
	now := m.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    rec.ID,
		Email:     rec.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cookies.TTL),
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	http.SetCookie(w, m.cookies.sessionCookie(sess.ID, sess.ExpiresAt))
	m.metrics.RecordSessionCreated()
	return sess, nil
}

// Lookup returns the session named by the request cookie. A missing cookie
// or an unknown id yields ErrNotFound.
func (m *Manager) Lookup(ctx context.Context, r *http.Request) (*Session, error) {
	id := cookieValue(r, m.cookies.SessionCookieName)
	if id == "" {
		return nil, ErrNotFound
	}
	return m.store.Get(ctx, id)
}

// Revoke deletes the request's session and expires its cookie. Revoking an
// absent session is not an error.
func (m *Manager) Revoke(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, m.cookies.expiredCookie(m.cookies.SessionCookieName))
	m.metrics.RecordLogout()

	id := cookieValue(r, m.cookies.SessionCookieName)
	if id == "" {
		return nil
	}
	if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Middleware attaches the session's user id to the request context when the
// request carries a valid session. It never rejects a request.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, err := m.Lookup(r.Context(), r); err == nil {
			r = r.WithContext(contextkeys.WithUserID(r.Context(), sess.UserID))
		}
		next.ServeHTTP(w, r)
	})
}
