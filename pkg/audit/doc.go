// Package audit records the auth trail: OAuth starts and callbacks, minted
// bridging tokens, user syncs, session conflicts and logouts.
//
// # Usage Example
//
//	event := audit.NewEvent(r.Context(), r, audit.EventTypeOAuthCallback, audit.EventStatusFailure)
//	event.Provider = "linkedin"
//	event.ErrorCode = "oauth_failed"
//	_ = auditLogger.Log(r.Context(), event)
//
// # Destinations
//
// DBLogger inserts into the auth_events table, LogLogger writes structured
// log lines and MultiLogger fans out to several loggers. FromContext returns
// a no-op logger when none is installed.
//
// Events never carry tokens, authorization codes or cookie values.
package audit
