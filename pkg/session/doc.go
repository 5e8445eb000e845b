// Package session owns the modern session and reconciles it with the legacy
// PHPSESSID cookie that an older system still sets on the shared domain.
//
// Sessions live in a Store (Redis, or an expiring in-memory LRU for single
// instance deployments) and are referenced by an opaque id in the session
// cookie. Resolver decides, per request, whether the legacy cookie should be
// cleared or the user must sign in again. It only ever expires cookies.
package session
