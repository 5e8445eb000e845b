package session

import (
	"net/http"
	"time"
)

const (
	// DefaultLegacyCookieName is the cookie set by the legacy PHP system
	DefaultLegacyCookieName = "PHPSESSID"
	// DefaultSessionCookieName is the modern session cookie
	DefaultSessionCookieName = "partnerauth_session"
	// DefaultTTL is the lifetime of a modern session
	DefaultTTL = 24 * time.Hour
)

// CookieConfig describes the cookies on the shared domain
type CookieConfig struct {
	// Domain is the shared parent domain (e.g. ".example.com"); empty means host-only
	Domain            string
	LegacyCookieName  string
	SessionCookieName string
	Secure            bool
	TTL               time.Duration
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.LegacyCookieName == "" {
		c.LegacyCookieName = DefaultLegacyCookieName
	}
	if c.SessionCookieName == "" {
		c.SessionCookieName = DefaultSessionCookieName
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	return c
}

// sessionCookie builds the modern session cookie
func (c CookieConfig) sessionCookie(id string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     c.SessionCookieName,
		Value:    id,
		Path:     "/",
		Domain:   c.Domain,
		Expires:  expires,
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// expiredCookie clears name on the shared domain at the bare path
func (c CookieConfig) expiredCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// cookieValue returns a non-empty cookie value or ""
func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
