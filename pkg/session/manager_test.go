package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/platinummonkey/partnerauth/pkg/contextkeys"
	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/platinummonkey/partnerauth/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_IssueAndLookup(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	m := NewManager(NewMemoryStore(10, time.Hour), CookieConfig{Secure: true, TTL: time.Hour}, metrics)

	rec := httptest.NewRecorder()
	sess, err := m.Issue(context.Background(), rec, &identity.LocalUserRecord{ID: "u1", Email: "a@x.com"})
	require.NoError(t, err)

	cookie := rec.Result().Cookies()[0]
	assert.Equal(t, DefaultSessionCookieName, cookie.Name)
	assert.Equal(t, sess.ID, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsCreatedTotal))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	got, err := m.Lookup(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	_, err = m.Lookup(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_RevokeIsIdempotent(t *testing.T) {
	store := NewMemoryStore(10, time.Hour)
	m := NewManager(store, CookieConfig{}, nil)

	rec := httptest.NewRecorder()
	_, err := m.Issue(context.Background(), rec, &identity.LocalUserRecord{ID: "u1"})
	require.NoError(t, err)
	cookie := rec.Result().Cookies()[0]

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
		req.AddCookie(cookie)
		out := httptest.NewRecorder()
		require.NoError(t, m.Revoke(context.Background(), out, req))

		expired := out.Result().Cookies()[0]
		assert.Equal(t, DefaultSessionCookieName, expired.Name)
		assert.True(t, expired.MaxAge < 0)
	}
	assert.Equal(t, 0, store.Len())

	require.NoError(t, m.Revoke(context.Background(), httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil)))
}

func TestManager_Middleware(t *testing.T) {
	m := NewManager(NewMemoryStore(10, time.Hour), CookieConfig{}, nil)
	rec := httptest.NewRecorder()
	sess, err := m.Issue(context.Background(), rec, &identity.LocalUserRecord{ID: "u1"})
	require.NoError(t, err)

	require.NotEmpty(t, sess.ID)

	var gotUser string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = contextkeys.GetUserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "u1", gotUser)

	gotUser = "unset"
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "", gotUser)
}
