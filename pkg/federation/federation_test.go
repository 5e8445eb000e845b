package federation

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeProvider serves a token endpoint and JSON profile endpoints
type fakeProvider struct {
	t          *testing.T
	server     *httptest.Server
	tokenCalls int32
	tokenExtra map[string]interface{}
	tokenFail  string
	routes     map[string]http.HandlerFunc
	delay      time.Duration
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{t: t, routes: make(map[string]http.HandlerFunc)}
	fp.server = httptest.NewServer(http.HandlerFunc(fp.serve))
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	if fp.delay > 0 {
		select {
		case <-time.After(fp.delay):
		case <-r.Context().Done():
			return
		}
	}
	if r.URL.Path == "/token" {
		atomic.AddInt32(&fp.tokenCalls, 1)
		require.NoError(fp.t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if fp.tokenFail != "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": fp.tokenFail, "error_description": "raw upstream detail"})
			return
		}
		if r.Form.Get("code") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body := map[string]interface{}{
			"access_token": "at-" + r.Form.Get("code"),
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		for k, v := range fp.tokenExtra {
			body[k] = v
		}
		_ = json.NewEncoder(w).Encode(body)
		return
	}
	if h, ok := fp.routes[r.URL.Path]; ok {
		if got := r.Header.Get("Authorization"); !strings.HasPrefix(got, "Bearer at-") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h(w, r)
		return
	}
	http.NotFound(w, r)
}

func (fp *fakeProvider) json(path string, status int, body interface{}) {
	fp.routes[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (fp *fakeProvider) config(name identity.ProviderName) *ProviderConfig {
	return &ProviderConfig{
		Name:         name,
		ClientID:     "client-" + string(name),
		ClientSecret: "secret",
		AuthURL:      fp.server.URL + "/authorize",
		TokenURL:     fp.server.URL + "/token",
		UserInfoURL:  fp.server.URL + "/userinfo",
		EmailURL:     fp.server.URL + "/email",
		IssuerURL:    fp.server.URL,
		RedirectURL:  "https://app.example.com/auth/" + string(name) + "/callback",
		Scopes:       []string{"openid", "email"},
	}
}

func googleUserInfo(fp *fakeProvider, email string) {
	fp.json("/userinfo", http.StatusOK, map[string]interface{}{
		"sub":            "g-123",
		"email":          email,
		"email_verified": true,
		"given_name":     "Ada",
		"family_name":    "Lovelace",
		"picture":        "https://img.example.com/ada.png",
	})
}

func linkedInEndpoints(fp *fakeProvider, email string) {
	fp.json("/userinfo", http.StatusOK, map[string]interface{}{
		"id":                 "li-456",
		"localizedFirstName": "Ada",
		"localizedLastName":  "Lovelace",
		"profilePicture": map[string]interface{}{
			"displayImage~": map[string]interface{}{
				"elements": []interface{}{
					map[string]interface{}{"identifiers": []interface{}{map[string]string{"identifier": "small.png"}}},
					map[string]interface{}{"identifiers": []interface{}{map[string]string{"identifier": "large.png"}}},
				},
			},
		},
	})
	fp.json("/email", http.StatusOK, map[string]interface{}{
		"elements": []interface{}{
			map[string]interface{}{"handle~": map[string]string{"emailAddress": email}},
		},
	})
}

func TestProviderConfig_Validate(t *testing.T) {
	fp := newFakeProvider(t)
	cfg := fp.config(identity.ProviderGoogle)
	require.NoError(t, cfg.Validate())

	cfg.ClientSecret = ""
	err := cfg.Validate()
	var cfgErr *identity.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "client_secret", cfgErr.Field)
}

func TestGetPresetConfig(t *testing.T) {
	google, err := GetPresetConfig(identity.ProviderGoogle)
	require.NoError(t, err)
	assert.Contains(t, google.Scopes, "email")
	assert.Empty(t, google.ClientID)

	linkedin, err := GetPresetConfig(identity.ProviderLinkedIn)
	require.NoError(t, err)
	assert.NotEmpty(t, linkedin.EmailURL)

	_, err = GetPresetConfig("github")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	fp := newFakeProvider(t)
	g, err := NewGoogleProvider(fp.config(identity.ProviderGoogle), fp.server.Client(), nil)
	require.NoError(t, err)
	l, err := NewLinkedInProvider(fp.config(identity.ProviderLinkedIn), fp.server.Client())
	require.NoError(t, err)

	reg := NewRegistry(l, g)
	assert.Equal(t, []identity.ProviderName{identity.ProviderGoogle, identity.ProviderLinkedIn}, reg.Names())

	p, err := reg.Get(identity.ProviderLinkedIn)
	require.NoError(t, err)
	assert.Equal(t, identity.ProviderLinkedIn, p.Name())

	_, err = reg.Get("github")
	assert.ErrorIs(t, err, identity.ErrUnknownProvider)
}

func TestAuthorizationURL(t *testing.T) {
	fp := newFakeProvider(t)
	g, err := NewGoogleProvider(fp.config(identity.ProviderGoogle), nil, nil)
	require.NoError(t, err)

	raw, err := g.AuthorizationURL("st4te")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "client-google", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "https://app.example.com/auth/google/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid email", q.Get("scope"))
	assert.Equal(t, "st4te", q.Get("state"))
	assert.Equal(t, "select_account", q.Get("prompt"))

	l, err := NewLinkedInProvider(fp.config(identity.ProviderLinkedIn), nil)
	require.NoError(t, err)
	raw, err = l.AuthorizationURL("")
	require.NoError(t, err)
	u, err = url.Parse(raw)
	require.NoError(t, err)
	_, hasState := u.Query()["state"]
	assert.False(t, hasState, "empty state is omitted")
}

func TestGoogle_ExchangeAndFetch(t *testing.T) {
	fp := newFakeProvider(t)
	googleUserInfo(fp, "Ada@Example.com")

	g, err := NewGoogleProvider(fp.config(identity.ProviderGoogle), fp.server.Client(), nil)
	require.NoError(t, err)

	token, err := g.ExchangeCode(context.Background(), "c0de")
	require.NoError(t, err)
	assert.Equal(t, "at-c0de", token.AccessToken)

	ext, err := g.FetchIdentity(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, identity.ProviderGoogle, ext.Provider)
	assert.Equal(t, "g-123", ext.SubjectID)
	assert.Equal(t, "Ada@Example.com", ext.Email)
	assert.Equal(t, "Ada Lovelace", ext.FullName())
}

func TestGoogle_UnverifiedEmail(t *testing.T) {
	fp := newFakeProvider(t)
	fp.json("/userinfo", http.StatusOK, map[string]interface{}{
		"sub": "g-1", "email": "a@x.com", "email_verified": "false",
	})
	g, err := NewGoogleProvider(fp.config(identity.ProviderGoogle), fp.server.Client(), nil)
	require.NoError(t, err)

	_, err = g.FetchIdentity(context.Background(), &oauth2.Token{AccessToken: "at-x"})
	assert.ErrorIs(t, err, identity.ErrMissingEmail)
	assert.Equal(t, CodeUserNotFound, CallbackErrorCode(err))
}

func TestGoogle_VerifiedIDToken(t *testing.T) {
	fp := newFakeProvider(t)
	cfg := fp.config(identity.ProviderGoogle)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":            cfg.IssuerURL,
		"aud":            cfg.ClientID,
		"sub":            "g-789",
		"email":          "id@x.com",
		"email_verified": true,
		"given_name":     "Grace",
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
	}).SignedString(key)
	require.NoError(t, err)
	fp.tokenExtra = map[string]interface{}{"id_token": idToken}

	userinfoHit := int32(0)
	fp.routes["/userinfo"] = func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&userinfoHit, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}

	verifier := oidc.NewVerifier(cfg.IssuerURL, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{ClientID: cfg.ClientID})
	g, err := NewGoogleProvider(cfg, fp.server.Client(), verifier)
	require.NoError(t, err)

	token, err := g.ExchangeCode(context.Background(), "abc")
	require.NoError(t, err)
	ext, err := g.FetchIdentity(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, "g-789", ext.SubjectID)
	assert.Equal(t, "id@x.com", ext.Email)
	assert.Equal(t, int32(0), atomic.LoadInt32(&userinfoHit), "userinfo skipped when id_token carries the email")
}

func TestExchange_Errors(t *testing.T) {
	t.Run("invalid_grant", func(t *testing.T) {
		fp := newFakeProvider(t)
		fp.tokenFail = "invalid_grant"
		g, err := NewGoogleProvider(fp.config(identity.ProviderGoogle), fp.server.Client(), nil)
		require.NoError(t, err)

		_, err = g.ExchangeCode(context.Background(), "used")
		require.Error(t, err)
		assert.ErrorIs(t, err, identity.ErrInvalidGrant)

		var exErr *identity.TokenExchangeError
		require.ErrorAs(t, err, &exErr)
		assert.Equal(t, http.StatusBadRequest, exErr.StatusCode)
		assert.Contains(t, exErr.Body, "raw upstream detail")
		assert.Equal(t, CodeLoginFailed, CallbackErrorCode(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&fp.tokenCalls), "codes are never retried")
	})

	t.Run("other rejection", func(t *testing.T) {
		fp := newFakeProvider(t)
		fp.tokenFail = "invalid_client"
		g, err := NewGoogleProvider(fp.config(identity.ProviderGoogle), fp.server.Client(), nil)
		require.NoError(t, err)

		_, err = g.ExchangeCode(context.Background(), "x")
		assert.NotErrorIs(t, err, identity.ErrInvalidGrant)
		assert.Equal(t, CodeOAuthFailed, CallbackErrorCode(err))
	})

	t.Run("missing code", func(t *testing.T) {
		fp := newFakeProvider(t)
		g, err := NewGoogleProvider(fp.config(identity.ProviderGoogle), fp.server.Client(), nil)
		require.NoError(t, err)

		_, err = g.ExchangeCode(context.Background(), "")
		var exErr *identity.TokenExchangeError
		assert.ErrorAs(t, err, &exErr)
		assert.Equal(t, int32(0), atomic.LoadInt32(&fp.tokenCalls))
	})
}

func TestLinkedIn_FetchIdentity(t *testing.T) {
	fp := newFakeProvider(t)
	linkedInEndpoints(fp, "ada@x.com")

	l, err := NewLinkedInProvider(fp.config(identity.ProviderLinkedIn), fp.server.Client())
	require.NoError(t, err)

	ext, err := l.FetchIdentity(context.Background(), &oauth2.Token{AccessToken: "at-1"})
	require.NoError(t, err)
	assert.Equal(t, "li-456", ext.SubjectID)
	assert.Equal(t, "ada@x.com", ext.Email)
	assert.Equal(t, "large.png", ext.AvatarURL)
}

func TestLinkedIn_PartialFailure(t *testing.T) {
	t.Run("email call fails", func(t *testing.T) {
		fp := newFakeProvider(t)
		linkedInEndpoints(fp, "ada@x.com")
		fp.json("/email", http.StatusForbidden, map[string]string{"message": "scope missing"})

		l, err := NewLinkedInProvider(fp.config(identity.ProviderLinkedIn), fp.server.Client())
		require.NoError(t, err)

		_, err = l.FetchIdentity(context.Background(), &oauth2.Token{AccessToken: "at-1"})
		var fetchErr *identity.IdentityFetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, CodeOAuthFailed, CallbackErrorCode(err))
	})

	t.Run("no email elements", func(t *testing.T) {
		fp := newFakeProvider(t)
		linkedInEndpoints(fp, "")

		l, err := NewLinkedInProvider(fp.config(identity.ProviderLinkedIn), fp.server.Client())
		require.NoError(t, err)

		_, err = l.FetchIdentity(context.Background(), &oauth2.Token{AccessToken: "at-1"})
		assert.ErrorIs(t, err, identity.ErrMissingEmail)
	})

	t.Run("profile call fails", func(t *testing.T) {
		fp := newFakeProvider(t)
		linkedInEndpoints(fp, "ada@x.com")
		fp.json("/userinfo", http.StatusInternalServerError, map[string]string{})

		l, err := NewLinkedInProvider(fp.config(identity.ProviderLinkedIn), fp.server.Client())
		require.NoError(t, err)

		_, err = l.FetchIdentity(context.Background(), &oauth2.Token{AccessToken: "at-1"})
		assert.Error(t, err)
	})
}

func TestNewLinkedInProvider_RequiresEmailURL(t *testing.T) {
	fp := newFakeProvider(t)
	cfg := fp.config(identity.ProviderLinkedIn)
	cfg.EmailURL = ""
	_, err := NewLinkedInProvider(cfg, nil)
	var cfgErr *identity.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestGateway_Authenticate(t *testing.T) {
	fp := newFakeProvider(t)
	googleUserInfo(fp, "a@x.com")
	g, err := NewGoogleProvider(fp.config(identity.ProviderGoogle), fp.server.Client(), nil)
	require.NoError(t, err)

	gw := NewGateway(NewRegistry(g), 0, nil)
	ext, err := gw.Authenticate(context.Background(), identity.ProviderGoogle, "xyz")
	require.NoError(t, err)
	assert.Equal(t, "g-123", ext.SubjectID)

	_, err = gw.Authenticate(context.Background(), "github", "xyz")
	assert.ErrorIs(t, err, identity.ErrUnknownProvider)

	authURL, err := gw.BuildAuthorizationURL(identity.ProviderGoogle, "s")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(authURL, fp.server.URL+"/authorize?"))
}

func TestGateway_Timeout(t *testing.T) {
	fp := newFakeProvider(t)
	fp.delay = 500 * time.Millisecond
	googleUserInfo(fp, "a@x.com")
	g, err := NewGoogleProvider(fp.config(identity.ProviderGoogle), fp.server.Client(), nil)
	require.NoError(t, err)

	gw := NewGateway(NewRegistry(g), 50*time.Millisecond, nil)
	_, err = gw.Authenticate(context.Background(), identity.ProviderGoogle, "slow")

	var timeout *identity.UpstreamTimeout
	require.ErrorAs(t, err, &timeout)
	assert.True(t, timeout.Retryable())
	assert.Equal(t, CodeLoginFailed, CallbackErrorCode(err))
}

func TestCallbackErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "success"},
		{"invalid grant", &identity.TokenExchangeError{ErrorCode: "invalid_grant"}, CodeLoginFailed},
		{"signing", &identity.SigningError{Err: errors.New("no key")}, CodeLoginFailed},
		{"timeout", &identity.UpstreamTimeout{Err: context.DeadlineExceeded}, CodeLoginFailed},
		{"missing email", &identity.IdentityFetchError{Err: identity.ErrMissingEmail}, CodeUserNotFound},
		{"fetch", &identity.IdentityFetchError{Err: errors.New("500")}, CodeOAuthFailed},
		{"unknown provider", identity.ErrUnknownProvider, CodeOAuthFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CallbackErrorCode(tt.err))
		})
	}
}

func TestProviderErrorCode(t *testing.T) {
	assert.Equal(t, "", ProviderErrorCode(""))
	assert.Equal(t, CodeOAuthCanceled, ProviderErrorCode("access_denied"))
	assert.Equal(t, CodeOAuthCanceled, ProviderErrorCode("user_cancelled_login"))
	assert.Equal(t, CodeOAuthFailed, ProviderErrorCode("server_error"))
}
