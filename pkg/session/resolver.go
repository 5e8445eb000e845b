package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/platinummonkey/partnerauth/pkg/observability"
)

// State classifies the cookies of one request
type State string

const (
	StateNoConflict  State = "no_conflict"
	StateLegacyOnly  State = "legacy_only"
	StateBothPresent State = "both_present"
)

// Action is what the client must do about a conflict
type Action string

const (
	ActionNone            Action = ""
	ActionClearPHPSession Action = "clear_php_session"
	ActionRequireLogin    Action = "require_login"
)

const (
	messageLegacyCleared = "Legacy session cleared, continuing with the current session"
	messageLoginRequired = "Session expired, please sign in again"
)

// Instructions name the exact cookie the client has to expire
type Instructions struct {
	CookieToClear string `json:"cookie_to_clear"`
	Domain        string `json:"domain"`
	Path          string `json:"path"`
}

// Resolution is the resolver's decision for one request
type Resolution struct {
	Conflict     bool          `json:"conflict"`
	Action       Action        `json:"action,omitempty"`
	Message      string        `json:"message,omitempty"`
	Instructions *Instructions `json:"instructions,omitempty"`

	State State `json:"-"`
}

// NoConflict is the fail-open answer
func NoConflict() *Resolution {
	return &Resolution{State: StateNoConflict}
}

// Resolver decides between the legacy and the modern session
type Resolver struct {
	manager *Manager
	metrics *observability.Metrics
}

// NewResolver creates a resolver on the session manager. metrics may be nil.
func NewResolver(manager *Manager, metrics *observability.Metrics) *Resolver {
	return &Resolver{manager: manager, metrics: metrics}
}

// Inspect derives the conflict state from the request cookies
func (r *Resolver) Inspect(req *http.Request) identity.SessionConflictState {
	cfg := r.manager.Cookies()
	return identity.SessionConflictState{
		LegacyCookiePresent: cookieValue(req, cfg.LegacyCookieName) != "",
		ModernCookiePresent: cookieValue(req, cfg.SessionCookieName) != "",
		Domain:              cfg.Domain,
	}
}

// Resolve decides what to do about the request's cookies. It has no side
// effects; Apply writes the cookie expiry. A session store failure is
// returned as a SessionConflictError together with a NoConflict resolution.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Resolution, error) {
	state := r.Inspect(req)

	if !state.LegacyCookiePresent {
		r.metrics.RecordConflict(string(StateNoConflict), "")
		return NoConflict(), nil
	}
	if !state.ModernCookiePresent {
		r.metrics.RecordConflict(string(StateLegacyOnly), "")
		return &Resolution{State: StateLegacyOnly}, nil
	}

	cfg := r.manager.Cookies()
	res := &Resolution{
		Conflict: true,
		State:    StateBothPresent,
	}

	_, err := r.manager.Lookup(ctx, req)
	switch {
	case err == nil:
		res.Action = ActionClearPHPSession
		res.Message = messageLegacyCleared
		res.Instructions = &Instructions{
			CookieToClear: cfg.LegacyCookieName,
			Domain:        cfg.Domain,
			Path:          "/",
		}
	case errors.Is(err, ErrNotFound):
		res.Action = ActionRequireLogin
		res.Message = messageLoginRequired
	default:
		return NoConflict(), &identity.SessionConflictError{Err: err}
	}

	r.metrics.RecordConflict(string(res.State), string(res.Action))
	return res, nil
}

// Apply writes the cookie expiry matching the resolution. clear_php_session
// expires the legacy cookie; require_login expires the stale modern cookie,
// which leaves the next request in legacy_only.
func (r *Resolver) Apply(w http.ResponseWriter, res *Resolution) {
	cfg := r.manager.Cookies()
	switch res.Action {
	case ActionClearPHPSession:
		http.SetCookie(w, cfg.expiredCookie(cfg.LegacyCookieName))
	case ActionRequireLogin:
		http.SetCookie(w, cfg.expiredCookie(cfg.SessionCookieName))
	}
}
