package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider is returned when no provider is registered under a name
	ErrUnknownProvider = errors.New("unknown oauth provider")

	// ErrInvalidGrant marks an authorization code the provider already consumed or expired
	ErrInvalidGrant = errors.New("invalid_grant")

	// ErrMissingEmail is returned when a provider profile has no usable email
	ErrMissingEmail = errors.New("provider returned no email")

	// ErrInvalidEmail is returned when an email fails normalization checks
	ErrInvalidEmail = errors.New("invalid email")
)

// ConfigurationError reports missing credentials or secrets. It is fatal at startup.
type ConfigurationError struct {
	Component string
	Field     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s is required", e.Component, e.Field)
}

// TokenExchangeError is returned when a provider token endpoint rejects a code.
// Body keeps the raw provider response for logs only.
type TokenExchangeError struct {
	Provider   ProviderName
	StatusCode int
	ErrorCode  string
	Body       string
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("token exchange with %s failed with status %d: %s", e.Provider, e.StatusCode, e.ErrorCode)
	}
	return fmt.Sprintf("token exchange with %s failed: %v", e.Provider, e.Err)
}

func (e *TokenExchangeError) Unwrap() error {
	if e.ErrorCode == ErrInvalidGrant.Error() {
		return ErrInvalidGrant
	}
	return e.Err
}

// IdentityFetchError is returned when userinfo calls fail or return no email
type IdentityFetchError struct {
	Provider ProviderName
	Endpoint string
	Err      error
}

func (e *IdentityFetchError) Error() string {
	return fmt.Sprintf("identity fetch from %s (%s) failed: %v", e.Provider, e.Endpoint, e.Err)
}

func (e *IdentityFetchError) Unwrap() error { return e.Err }

// UpstreamTimeout is returned when a provider call exceeds the request deadline.
// The user may retry by starting the login again.
type UpstreamTimeout struct {
	Provider  ProviderName
	Operation string
	Err       error
}

func (e *UpstreamTimeout) Error() string {
	return fmt.Sprintf("%s %s timed out: %v", e.Provider, e.Operation, e.Err)
}

func (e *UpstreamTimeout) Unwrap() error { return e.Err }

// Retryable is always true for upstream timeouts
func (e *UpstreamTimeout) Retryable() bool { return true }

// SigningError is returned when a bridging token cannot be signed
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("failed to sign bridging token: %v", e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// SyncError is returned when the local upsert failed after every attempt
type SyncError struct {
	Email    string
	Attempts int
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("failed to sync user %s after %d attempts: %v", e.Email, e.Attempts, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// SessionConflictError is returned when conflict resolution itself failed.
// Callers treat it as no conflict.
type SessionConflictError struct {
	Err error
}

func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("session conflict resolution failed: %v", e.Err)
}

func (e *SessionConflictError) Unwrap() error { return e.Err }
