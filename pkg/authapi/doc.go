// Package authapi exposes the HTTP surface of the identity service.
//
//	GET  /auth/{provider}                     start the OAuth flow
//	GET  /auth/{provider}/callback            finish it and redirect with ?jwt= or ?error=
//	POST /api/auth/sync-supabase-user         reconcile the session user with the local store
//	POST /api/auth/resolve-session-conflict   settle legacy vs modern session cookies
//	POST /api/auth/logout                     revoke the modern session
//
// Callback redirects carry one of the codes in federation (oauth_canceled,
// oauth_failed, login_failed, user_not_found). Tokens and codes are never
// logged.
package authapi
