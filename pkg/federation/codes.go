package federation

import (
	"errors"

	"github.com/platinummonkey/partnerauth/pkg/identity"
)

// Error codes sent to the client on the callback redirect. The set is closed.
const (
	CodeOAuthCanceled = "oauth_canceled"
	CodeOAuthFailed   = "oauth_failed"
	CodeLoginFailed   = "login_failed"
	CodeUserNotFound  = "user_not_found"
)

// outcomeSuccess labels successful federations in metrics
const outcomeSuccess = "success"

// CallbackErrorCode maps a gateway or minter error to a redirect error code.
// A nil error maps to "success".
func CallbackErrorCode(err error) string {
	if err == nil {
		return outcomeSuccess
	}

	var (
		timeout *identity.UpstreamTimeout
		signing *identity.SigningError
	)

	switch {
	case errors.Is(err, identity.ErrInvalidGrant):
		return CodeLoginFailed
	case errors.As(err, &timeout), errors.As(err, &signing):
		return CodeLoginFailed
	case errors.Is(err, identity.ErrMissingEmail):
		return CodeUserNotFound
	}
	// token exchange rejections, identity fetch failures, unknown providers
	return CodeOAuthFailed
}

// ProviderErrorCode maps an error parameter sent back by the provider
// (RFC 6749 section 4.1.2.1) to a redirect error code
func ProviderErrorCode(providerError string) string {
	switch providerError {
	case "":
		return ""
	case "access_denied", "user_cancelled_login", "user_cancelled_authorize":
		return CodeOAuthCanceled
	}
	return CodeOAuthFailed
}
