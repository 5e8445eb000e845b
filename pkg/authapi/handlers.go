package authapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/partnerauth/pkg/audit"
	"github.com/platinummonkey/partnerauth/pkg/bridge"
	"github.com/platinummonkey/partnerauth/pkg/federation"
	"github.com/platinummonkey/partnerauth/pkg/httputil"
	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/platinummonkey/partnerauth/pkg/observability"
	"github.com/platinummonkey/partnerauth/pkg/session"
	"github.com/platinummonkey/partnerauth/pkg/usersync"
)

const (
	// StateCookieName holds the OAuth state between start and callback
	StateCookieName = "oauth_state"
	stateTTL        = 10 * time.Minute
	stateBytes      = 32
)

// API error codes of the JSON endpoints
const (
	ErrorInvalidRequest = "invalid_request"
	ErrorInvalidEmail   = "invalid_email"
	ErrorUnauthorized   = "unauthorized"
	ErrorSyncFailed     = "sync_failed"
)

// Deps are the collaborators of Handlers
type Deps struct {
	Gateway  *federation.Gateway
	Minter   *bridge.Minter
	Sync     *usersync.Service
	Sessions *session.Manager
	Resolver *session.Resolver
	// Verifier checks the managed-auth bearer token on sync; required unless
	// Options.AllowUnverifiedSync is set
	Verifier *bridge.Verifier
	Metrics  *observability.Metrics
}

// Options tune handler behaviour
type Options struct {
	// ClientRedirectURL receives the callback outcome
	ClientRedirectURL string
	// SecureCookies marks the state cookie Secure
	SecureCookies bool
	// AllowUnverifiedSync lets development setups sync without a bearer
	// token. Such calls upsert the record but never issue a session.
	AllowUnverifiedSync bool
}

// Handlers serves the auth endpoints
type Handlers struct {
	deps Deps
	opts Options
}

// NewHandlers creates the handlers
func NewHandlers(deps Deps, opts Options) (*Handlers, error) {
	if !opts.AllowUnverifiedSync && deps.Verifier == nil {
		return nil, &identity.ConfigurationError{Component: "authapi", Field: "bearer verifier"}
	}
	if _, err := url.Parse(opts.ClientRedirectURL); err != nil || opts.ClientRedirectURL == "" {
		return nil, &identity.ConfigurationError{Component: "authapi", Field: "client redirect url"}
	}
	return &Handlers{deps: deps, opts: opts}, nil
}

// RegisterRoutes registers the OAuth redirect routes on auth and the JSON
// routes on api
func (h *Handlers) RegisterRoutes(auth, api *mux.Router) {
	auth.HandleFunc("/{provider}", h.startOAuth).Methods(http.MethodGet)
	auth.HandleFunc("/{provider}/callback", h.handleCallback).Methods(http.MethodGet)

	api.HandleFunc("/sync-supabase-user", h.syncUser).Methods(http.MethodPost)
	api.HandleFunc("/resolve-session-conflict", h.resolveConflict).Methods(http.MethodPost)
	api.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
}

// startOAuth handles GET /auth/{provider}
func (h *Handlers) startOAuth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider, ok := providerParam(w, r)
	if !ok {
		return
	}
	logger := observability.FromContext(ctx).WithField("provider", string(provider))

	state, err := newState()
	if err != nil {
		logger.WithError(err).Error("Failed to generate OAuth state")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to start authentication")
		return
	}

	authURL, err := h.deps.Gateway.BuildAuthorizationURL(provider, state)
	if errors.Is(err, identity.ErrUnknownProvider) {
		httputil.WriteNotFoundError(w, fmt.Sprintf("unknown provider: %s", provider))
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to build authorization URL")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to start authentication")
		return
	}

	http.SetCookie(w, h.stateCookie(state, int(stateTTL.Seconds())))

	event := audit.NewEvent(ctx, r, audit.EventTypeOAuthStart, audit.EventStatusSuccess)
	event.Provider = string(provider)
	h.audit(r, event)

	logger.Debug("Redirecting to provider")
	httputil.Redirect(w, r, authURL)
}

// handleCallback handles GET /auth/{provider}/callback
func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider, ok := providerParam(w, r)
	if !ok {
		return
	}
	logger := observability.FromContext(ctx).WithField("provider", string(provider))

	if _, err := h.deps.Gateway.Registry().Get(provider); err != nil {
		httputil.WriteNotFoundError(w, fmt.Sprintf("unknown provider: %s", provider))
		return
	}

	// the state is single use whatever the outcome
	http.SetCookie(w, h.stateCookie("", -1))

	event := audit.NewEvent(ctx, r, audit.EventTypeOAuthCallback, audit.EventStatusFailure)
	event.Provider = string(provider)

	fail := func(code string, err error) {
		event.ErrorCode = code
		h.audit(r, event)
		entry := logger.WithField("error_code", code)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("OAuth callback failed")
		h.redirectClient(w, r, url.Values{"error": {code}})
	}

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		fail(federation.ProviderErrorCode(providerErr), nil)
		return
	}

	if !h.validState(r, query.Get("state")) {
		fail(federation.CodeOAuthFailed, errors.New("state mismatch"))
		return
	}

	code := query.Get("code")
	if code == "" {
		fail(federation.CodeOAuthFailed, errors.New("missing authorization code"))
		return
	}

	ext, err := h.deps.Gateway.Authenticate(ctx, provider, code)
	if err != nil {
		fail(federation.CallbackErrorCode(err), err)
		return
	}

	token, err := h.deps.Minter.Mint(ext)
	if err != nil {
		fail(federation.CallbackErrorCode(err), err)
		return
	}
	h.deps.Metrics.RecordTokenMinted(string(provider))

	event.Status = audit.EventStatusSuccess
	event.Metadata["subject"] = token.Subject
	h.audit(r, event)

	minted := audit.NewEvent(ctx, r, audit.EventTypeTokenMinted, audit.EventStatusSuccess)
	minted.Provider = string(provider)
	minted.Metadata["expires_at"] = token.ExpiresAt.Format(time.RFC3339)
	h.audit(r, minted)

	logger.Info("OAuth callback succeeded")
	h.redirectClient(w, r, url.Values{"jwt": {token.Raw}})
}

// syncUser handles POST /api/auth/sync-supabase-user
func (h *Handlers) syncUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	var req usersync.SyncRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeSyncFailure(w, http.StatusBadRequest, ErrorInvalidRequest, req.RetryBudget)
		return
	}
	if req.SupabaseUser == nil || req.SupabaseUser.ID == "" {
		writeSyncFailure(w, http.StatusBadRequest, ErrorInvalidRequest, req.RetryBudget)
		return
	}
	user := req.SupabaseUser

	event := audit.NewEvent(ctx, r, audit.EventTypeUserSynced, audit.EventStatusFailure)
	event.Provider = string(identity.ProviderManaged)

	// a session is only issued for a caller proven to be user.ID
	verified := false
	if raw := httputil.BearerToken(r); raw != "" || !h.opts.AllowUnverifiedSync {
		if err := h.checkBearer(raw, user.ID); err != nil {
			event.Status = audit.EventStatusDenied
			event.ErrorCode = ErrorUnauthorized
			h.audit(r, event)
			logger.WithError(err).Warn("Sync bearer check failed")
			writeSyncFailure(w, http.StatusUnauthorized, ErrorUnauthorized, req.RetryBudget)
			return
		}
		verified = true
	}

	result, err := h.deps.Sync.SyncUser(ctx, user, req.RetryBudget)
	if errors.Is(err, identity.ErrInvalidEmail) {
		event.ErrorCode = ErrorInvalidEmail
		h.audit(r, event)
		writeSyncFailure(w, http.StatusBadRequest, ErrorInvalidEmail, result.Budget)
		return
	}
	if err != nil {
		event.ErrorCode = ErrorSyncFailed
		event.Metadata["failures"] = result.Budget.Failures
		h.audit(r, event)
		logger.WithError(err).WithField("failures", result.Budget.Failures).Error("User sync failed")
		writeSyncFailure(w, http.StatusServiceUnavailable, ErrorSyncFailed, result.Budget)
		return
	}

	rec := result.Record
	if !verified {
		logger.WithField("user_id", rec.ID).Warn("Unverified sync, no session issued")
	} else if _, err := h.deps.Sessions.Issue(ctx, w, rec); err != nil {
		// the record is in place; the client still gets its user and will
		// fall back to legacy_only on the next conflict check
		logger.WithError(err).WithField("user_id", rec.ID).Error("Failed to issue session after sync")
	}

	event.Status = audit.EventStatusSuccess
	event.UserID = rec.ID
	event.Metadata["created"] = result.Created
	h.audit(r, event)

	budget := result.Budget
	_ = httputil.WriteJSON(w, http.StatusOK, usersync.SyncResponse{
		Success:     true,
		User:        rec,
		Created:     result.Created,
		RetryBudget: &budget,
	})
}

// resolveConflict handles POST /api/auth/resolve-session-conflict
func (h *Handlers) resolveConflict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.deps.Resolver.Resolve(ctx, r)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Warn("Session conflict resolution failed, continuing without conflict")
	}
	h.deps.Resolver.Apply(w, res)

	if res.Conflict {
		event := audit.NewEvent(ctx, r, audit.EventTypeSessionConflict, audit.EventStatusSuccess)
		event.Metadata["action"] = string(res.Action)
		h.audit(r, event)
		observability.FromContext(ctx).WithField("conflict_state", string(res.State)).
			WithField("action", string(res.Action)).Info("Session conflict resolved")
	}

	_ = httputil.WriteJSON(w, http.StatusOK, res)
}

// logout handles POST /api/auth/logout
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	event := audit.NewEvent(ctx, r, audit.EventTypeLogout, audit.EventStatusSuccess)
	if err := h.deps.Sessions.Revoke(ctx, w, r); err != nil {
		event.Status = audit.EventStatusFailure
		observability.FromContext(ctx).WithError(err).Error("Failed to delete session on logout")
	}
	h.audit(r, event)

	httputil.WriteNoContent(w)
}

// providerParam reads {provider}, answering 404 when it is absent
func providerParam(w http.ResponseWriter, r *http.Request) (identity.ProviderName, bool) {
	name, err := httputil.ParsePathString(r, "provider")
	if err != nil {
		httputil.WriteNotFoundError(w, err.Error())
		return "", false
	}
	return identity.ProviderName(name), true
}

func (h *Handlers) checkBearer(raw, userID string) error {
	if raw == "" {
		return errors.New("missing bearer token")
	}
	if h.deps.Verifier == nil {
		return errors.New("no bearer verifier configured")
	}
	claims, err := h.deps.Verifier.Verify(raw)
	if err != nil {
		return err
	}
	if claims.Subject != userID {
		return errors.New("token subject does not match user")
	}
	return nil
}

func (h *Handlers) validState(r *http.Request, state string) bool {
	cookie, err := r.Cookie(StateCookieName)
	if err != nil || cookie.Value == "" || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) == 1
}

func (h *Handlers) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     StateCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}

func (h *Handlers) redirectClient(w http.ResponseWriter, r *http.Request, params url.Values) {
	target, _ := url.Parse(h.opts.ClientRedirectURL)
	query := target.Query()
	for key, values := range params {
		query[key] = values
	}
	target.RawQuery = query.Encode()
	httputil.Redirect(w, r, target.String())
}

func (h *Handlers) audit(r *http.Request, event *audit.AuthEvent) {
	if err := audit.FromContext(r.Context()).Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Failed to record auth event")
	}
}

func writeSyncFailure(w http.ResponseWriter, status int, code string, budget usersync.RetryBudget) {
	_ = httputil.WriteJSON(w, status, usersync.SyncResponse{
		Success:     false,
		Error:       code,
		RetryBudget: &budget,
		Surface:     budget.ShouldSurface(),
	})
}

func newState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
