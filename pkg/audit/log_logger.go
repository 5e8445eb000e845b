package audit

import (
	"context"

	"github.com/platinummonkey/partnerauth/pkg/observability"
)

// LogLogger writes events as structured log lines
type LogLogger struct {
	logger *observability.Logger
}

// NewLogLogger creates a logger writing through logger
func NewLogLogger(logger *observability.Logger) *LogLogger {
	return &LogLogger{logger: logger.WithField("component", "audit")}
}

// Log writes the event at info level, failures at warn
func (l *LogLogger) Log(_ context.Context, event *AuthEvent) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	for key, value := range map[string]string{
		"provider":   event.Provider,
		"user_id":    event.UserID,
		"request_id": event.RequestID,
		"client_ip":  event.IPAddress,
		"error_code": event.ErrorCode,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	if len(event.Metadata) > 0 {
		fields["metadata"] = event.Metadata
	}

	entry := l.logger.WithFields(fields)
	if event.Status == EventStatusSuccess {
		entry.Info("auth event")
	} else {
		entry.Warn("auth event")
	}
	return nil
}

// Close is a no-op
func (l *LogLogger) Close() error {
	return nil
}
