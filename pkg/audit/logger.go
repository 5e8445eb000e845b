package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/partnerauth/pkg/contextkeys"
	"github.com/platinummonkey/partnerauth/pkg/httputil"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an event
	Log(ctx context.Context, event *AuthEvent) error

	// Close releases the destination
	Close() error
}

type contextKey string

const auditLoggerKey contextKey = "audit_logger"

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, auditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(auditLoggerKey).(Logger); ok {
		return logger
	}
	return NopLogger{}
}

// NopLogger discards events
type NopLogger struct{}

func (NopLogger) Log(context.Context, *AuthEvent) error { return nil }

func (NopLogger) Close() error { return nil }

// NewEvent creates an event with request context populated. r may be nil.
func NewEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *AuthEvent {
	event := &AuthEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		UserID:    contextkeys.GetUserID(ctx),
		RequestID: contextkeys.GetRequestID(ctx),
		IPAddress: contextkeys.GetClientIP(ctx),
		Metadata:  make(map[string]interface{}),
	}

	if r != nil {
		event.UserAgent = r.UserAgent()
		if event.IPAddress == "" {
			event.IPAddress = httputil.ClientIP(r)
		}
	}

	return event
}
