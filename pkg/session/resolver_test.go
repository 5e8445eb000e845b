package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenStore fails every lookup
type brokenStore struct{ Store }

func (brokenStore) Get(context.Context, string) (*Session, error) {
	return nil, errors.New("redis: connection refused")
}

func newTestManager(store Store) *Manager {
	return NewManager(store, CookieConfig{Domain: ".example.com", SessionCookieName: "pa_session"}, nil)
}

func requestWith(cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/auth/resolve-session-conflict", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func issue(t *testing.T, m *Manager) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	_, err := m.Issue(context.Background(), rec, &identity.LocalUserRecord{ID: "u1", Email: "a@x.com"})
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

var legacy = &http.Cookie{Name: "PHPSESSID", Value: "abc123"}

func TestResolver_DecisionTable(t *testing.T) {
	store := NewMemoryStore(10, time.Hour)
	m := newTestManager(store)
	resolver := NewResolver(m, nil)
	valid := issue(t, m)
	stale := &http.Cookie{Name: "pa_session", Value: "gone"}

	tests := []struct {
		name     string
		cookies  []*http.Cookie
		state    State
		conflict bool
		action   Action
	}{
		{"nothing", nil, StateNoConflict, false, ActionNone},
		{"modern only", []*http.Cookie{valid}, StateNoConflict, false, ActionNone},
		{"stale modern only", []*http.Cookie{stale}, StateNoConflict, false, ActionNone},
		{"legacy only", []*http.Cookie{legacy}, StateLegacyOnly, false, ActionNone},
		{"both, modern valid", []*http.Cookie{legacy, valid}, StateBothPresent, true, ActionClearPHPSession},
		{"both, modern invalid", []*http.Cookie{legacy, stale}, StateBothPresent, true, ActionRequireLogin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := resolver.Resolve(context.Background(), requestWith(tt.cookies...))
			require.NoError(t, err)
			assert.Equal(t, tt.state, res.State)
			assert.Equal(t, tt.conflict, res.Conflict)
			assert.Equal(t, tt.action, res.Action)
		})
	}
}

func TestResolver_ClearInstructions(t *testing.T) {
	m := newTestManager(NewMemoryStore(10, time.Hour))
	resolver := NewResolver(m, nil)
	valid := issue(t, m)

	res, err := resolver.Resolve(context.Background(), requestWith(legacy, valid))
	require.NoError(t, err)
	require.NotNil(t, res.Instructions)
	assert.Equal(t, Instructions{CookieToClear: "PHPSESSID", Domain: ".example.com", Path: "/"}, *res.Instructions)

	rec := httptest.NewRecorder()
	resolver.Apply(rec, res)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "PHPSESSID", cookies[0].Name)
	assert.Equal(t, "example.com", cookies[0].Domain)
	assert.Equal(t, "/", cookies[0].Path)
	assert.True(t, cookies[0].MaxAge < 0)
}

func TestResolver_Converges(t *testing.T) {
	m := newTestManager(NewMemoryStore(10, time.Hour))
	resolver := NewResolver(m, nil)
	valid := issue(t, m)

	// Play the client: apply the Set-Cookie headers and ask again.
	jar := map[string]*http.Cookie{"PHPSESSID": legacy, "pa_session": valid}
	var actions []Action
	for i := 0; i < 3; i++ {
		var cookies []*http.Cookie
		for _, c := range jar {
			cookies = append(cookies, c)
		}
		res, err := resolver.Resolve(context.Background(), requestWith(cookies...))
		require.NoError(t, err)
		actions = append(actions, res.Action)

		rec := httptest.NewRecorder()
		resolver.Apply(rec, res)
		for _, c := range rec.Result().Cookies() {
			if c.MaxAge < 0 {
				delete(jar, c.Name)
			}
		}
	}
	assert.Equal(t, []Action{ActionClearPHPSession, ActionNone, ActionNone}, actions)

	stale := &http.Cookie{Name: "pa_session", Value: "gone"}
	jar = map[string]*http.Cookie{"PHPSESSID": legacy, "pa_session": stale}
	actions = nil
	for i := 0; i < 3; i++ {
		var cookies []*http.Cookie
		for _, c := range jar {
			cookies = append(cookies, c)
		}
		res, err := resolver.Resolve(context.Background(), requestWith(cookies...))
		require.NoError(t, err)
		actions = append(actions, res.Action)

		rec := httptest.NewRecorder()
		resolver.Apply(rec, res)
		for _, c := range rec.Result().Cookies() {
			if c.MaxAge < 0 {
				delete(jar, c.Name)
			}
		}
	}
	assert.Equal(t, []Action{ActionRequireLogin, ActionNone, ActionNone}, actions)
}

func TestResolver_StoreFailureFailsOpen(t *testing.T) {
	m := newTestManager(brokenStore{Store: NewMemoryStore(10, time.Hour)})
	resolver := NewResolver(m, nil)

	res, err := resolver.Resolve(context.Background(), requestWith(legacy, &http.Cookie{Name: "pa_session", Value: "x"}))
	var conflictErr *identity.SessionConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.False(t, res.Conflict)
	assert.Equal(t, ActionNone, res.Action)
}

func TestResolver_Inspect(t *testing.T) {
	resolver := NewResolver(newTestManager(NewMemoryStore(10, time.Hour)), nil)
	state := resolver.Inspect(requestWith(legacy))
	assert.Equal(t, identity.SessionConflictState{LegacyCookiePresent: true, Domain: ".example.com"}, state)
}
