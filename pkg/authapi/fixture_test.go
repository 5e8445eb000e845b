package authapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/partnerauth/pkg/audit"
	"github.com/platinummonkey/partnerauth/pkg/bridge"
	"github.com/platinummonkey/partnerauth/pkg/federation"
	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/platinummonkey/partnerauth/pkg/middleware"
	"github.com/platinummonkey/partnerauth/pkg/observability"
	"github.com/platinummonkey/partnerauth/pkg/session"
	"github.com/platinummonkey/partnerauth/pkg/usersync"
)

const (
	testSecret      = "test-shared-secret-with-enough-bytes"
	testRedirectURL = "https://app.example.com/auth?lang=tr"
)

type stubProvider struct {
	name        identity.ProviderName
	ext         *identity.ExternalIdentity
	exchangeErr error
	fetchErr    error

	mu    sync.Mutex
	codes []string
}

func (p *stubProvider) Name() identity.ProviderName { return p.name }

func (p *stubProvider) AuthorizationURL(state string) (string, error) {
	return "https://provider.example.com/authorize?state=" + url.QueryEscape(state), nil
}

func (p *stubProvider) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	p.mu.Lock()
	p.codes = append(p.codes, code)
	p.mu.Unlock()
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &oauth2.Token{AccessToken: "provider-access-token"}, nil
}

func (p *stubProvider) FetchIdentity(context.Context, *oauth2.Token) (*identity.ExternalIdentity, error) {
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return p.ext, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.AuthEvent
}

func (a *recordingAudit) Log(_ context.Context, event *audit.AuthEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAudit) Close() error { return nil }

func (a *recordingAudit) types() []audit.EventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.EventType, len(a.events))
	for i, e := range a.events {
		out[i] = e.EventType
	}
	return out
}

func (a *recordingAudit) last() *audit.AuthEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.events) == 0 {
		return nil
	}
	return a.events[len(a.events)-1]
}

type failingUserStore struct{}

func (failingUserStore) Upsert(context.Context, identity.Profile, time.Time) (*identity.LocalUserRecord, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingUserStore) GetByEmail(context.Context, string) (*identity.LocalUserRecord, error) {
	return nil, errors.New("connection refused")
}

type failingSessionStore struct{}

func (failingSessionStore) Save(context.Context, *session.Session) error {
	return errors.New("redis unavailable")
}

func (failingSessionStore) Get(context.Context, string) (*session.Session, error) {
	return nil, errors.New("redis unavailable")
}

func (failingSessionStore) Delete(context.Context, string) error {
	return errors.New("redis unavailable")
}

type fixture struct {
	router   http.Handler
	google   *stubProvider
	users    *usersync.MemoryStore
	sessions *session.MemoryStore
	manager  *session.Manager
	audit    *recordingAudit
	metrics  *observability.Metrics
	logs     *bytes.Buffer
}

type fixtureOptions struct {
	options      Options
	userStore    usersync.Store
	sessionStore session.Store
	oauthLimiter middleware.Limiter
	cors         []string
}

func newFixture(t *testing.T, mutate func(*fixtureOptions)) *fixture {
	t.Helper()

	fo := fixtureOptions{options: Options{ClientRedirectURL: testRedirectURL}}
	if mutate != nil {
		mutate(&fo)
	}

	f := &fixture{
		google: &stubProvider{
			name: identity.ProviderGoogle,
			ext: &identity.ExternalIdentity{
				Provider:  identity.ProviderGoogle,
				SubjectID: "123",
				Email:     "Ada@Example.com",
				FirstName: "Ada",
				LastName:  "Lovelace",
			},
		},
		users:    usersync.NewMemoryStore(),
		sessions: session.NewMemoryStore(0, time.Hour),
		audit:    &recordingAudit{},
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
		logs:     &bytes.Buffer{},
	}
	linkedin := &stubProvider{name: identity.ProviderLinkedIn, ext: &identity.ExternalIdentity{
		Provider: identity.ProviderLinkedIn, SubjectID: "li-9", Email: "ada@example.com",
	}}

	userStore := fo.userStore
	if userStore == nil {
		userStore = f.users
	}
	sessionStore := fo.sessionStore
	if sessionStore == nil {
		sessionStore = f.sessions
	}

	minter, err := bridge.NewMinter(testSecret)
	require.NoError(t, err)
	verifier, err := bridge.NewVerifier(testSecret)
	require.NoError(t, err)

	logger := observability.NewLogger(observability.DebugLevel, f.logs)
	f.manager = session.NewManager(sessionStore, session.CookieConfig{Domain: ".example.com"}, f.metrics)

	h, err := NewHandlers(Deps{
		Gateway:  federation.NewGateway(federation.NewRegistry(f.google, linkedin), time.Second, f.metrics),
		Minter:   minter,
		Sync:     usersync.NewService(userStore, usersync.WithBackoff(time.Millisecond), usersync.WithLogger(logger)),
		Sessions: f.manager,
		Resolver: session.NewResolver(f.manager, f.metrics),
		Verifier: verifier,
		Metrics:  f.metrics,
	}, fo.options)
	require.NoError(t, err)

	f.router = NewRouter(h, RouterOptions{
		Logger:             logger,
		Metrics:            f.metrics,
		Audit:              f.audit,
		CORSAllowedOrigins: fo.cors,
		OAuthLimiter:       fo.oauthLimiter,
	})
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) postJSON(path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return f.do(req)
}

// sync posts body to the sync endpoint with a managed-auth token for subject;
// an empty subject sends no Authorization header
func (f *fixture) sync(t *testing.T, subject, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/sync-supabase-user", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+managedToken(t, subject))
	}
	return f.do(req)
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func managedToken(t *testing.T, subject string) string {
	t.Helper()
	now := time.Now()
	claims := bridge.Claims{
		Email: "ada@example.com",
		Role:  bridge.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{bridge.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}
