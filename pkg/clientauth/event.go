package clientauth

import (
	"net/url"
	"strings"

	"github.com/platinummonkey/partnerauth/pkg/identity"
)

// Kind is the classification of an auth redirect
type Kind string

const (
	KindNone              Kind = "none"
	KindMagicLink         Kind = "magic_link"
	KindPasswordRecovery  Kind = "password_recovery"
	KindEmailConfirmation Kind = "email_confirmation"
	KindOAuthError        Kind = "oauth_error"
	KindOAuthBridge       Kind = "oauth_bridge"
	KindPlainSignIn       Kind = "plain_sign_in"
)

// Event is a classified redirect. ErrorCode is set for KindOAuthError and
// Token for KindOAuthBridge.
type Event struct {
	Kind      Kind
	ErrorCode string
	Token     string
}

// SessionView is what the page knows about the managed-auth session at mount
type SessionView struct {
	Session *AuthSession
	User    *identity.ManagedSessionUser
}

// HasSession reports whether a managed-auth session exists
func (v SessionView) HasSession() bool {
	return v.Session != nil && v.User != nil
}

// EmailConfirmed reports whether the session user confirmed their email
func (v SessionView) EmailConfirmed() bool {
	return v.User != nil && v.User.EmailConfirmedAt != nil
}

// fragment values of the managed-auth "type" parameter
const (
	fragmentMagicLink = "magiclink"
	fragmentRecovery  = "recovery"
	fragmentSignup    = "signup"
)

// fragmentAuthParams are written into the fragment by the managed-auth backend
var fragmentAuthParams = []string{
	"access_token", "refresh_token", "expires_in", "expires_at", "token_type",
	"provider_token", "provider_refresh_token", "type",
	"error", "error_code", "error_description",
}

// queryAuthParams are auth artifacts carried in the query string
var queryAuthParams = []string{"error", "error_description", "magic", "jwt"}

// Classify parses the URL once into an Event. Earlier rules win.
func Classify(u *url.URL, view SessionView) Event {
	fragment := parseFragment(u)
	query := u.Query()

	switch fragment.Get("type") {
	case fragmentMagicLink:
		return Event{Kind: KindMagicLink}
	case fragmentRecovery:
		return Event{Kind: KindPasswordRecovery}
	case fragmentSignup:
		if view.EmailConfirmed() {
			return Event{Kind: KindEmailConfirmation}
		}
	}

	if code := strings.TrimSpace(query.Get("error")); code != "" {
		return Event{Kind: KindOAuthError, ErrorCode: code}
	}
	if query.Get("magic") == "true" {
		return Event{Kind: KindMagicLink}
	}
	if token := query.Get("jwt"); token != "" {
		return Event{Kind: KindOAuthBridge, Token: token}
	}
	if view.HasSession() {
		return Event{Kind: KindPlainSignIn}
	}
	return Event{Kind: KindNone}
}

// Strip returns a copy of u without auth artifacts. Unrelated query and
// fragment parameters are kept.
func Strip(u *url.URL) *url.URL {
	out := *u

	query := u.Query()
	for _, key := range queryAuthParams {
		query.Del(key)
	}
	out.RawQuery = query.Encode()

	fragment := parseFragment(u)
	if len(fragment) > 0 {
		for _, key := range fragmentAuthParams {
			fragment.Del(key)
		}
		out.Fragment = ""
		out.RawFragment = ""
		if len(fragment) > 0 {
			// Encode writes spaces as '+', which a fragment does not decode
			encoded := strings.ReplaceAll(fragment.Encode(), "+", "%20")
			out.Fragment, _ = url.PathUnescape(encoded)
			out.RawFragment = encoded
		}
	}
	return &out
}

// parseFragment reads "#a=b&c=d" fragments. Route-style fragments such as
// "#/dashboard" yield no values.
func parseFragment(u *url.URL) url.Values {
	raw := u.EscapedFragment()
	if raw == "" || !strings.Contains(raw, "=") {
		return url.Values{}
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return url.Values{}
	}
	return values
}
