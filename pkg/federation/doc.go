// Package federation drives the OAuth 2.0 authorization-code flow against
// the supported identity providers.
//
// Each provider implements Provider and is selected through a Registry, so
// callers never branch on provider names. Gateway applies the upstream
// deadline, tracing and metrics around one exchange + identity fetch chain,
// and CallbackErrorCode folds any failure into the closed set of redirect
// error codes sent to the browser.
package federation
