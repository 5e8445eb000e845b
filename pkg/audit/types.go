package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	EventTypeOAuthStart      EventType = "auth.oauth_start"
	EventTypeOAuthCallback   EventType = "auth.oauth_callback"
	EventTypeTokenMinted     EventType = "auth.token_minted"
	EventTypeUserSynced      EventType = "auth.user_synced"
	EventTypeSessionConflict EventType = "auth.session_conflict"
	EventTypeLogout          EventType = "auth.logout"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// AuthEvent represents a single audit log entry
type AuthEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	Provider string `json:"provider,omitempty"`
	UserID   string `json:"user_id,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// ErrorCode is the redirect or API error code, never a raw upstream body
	ErrorCode string                 `json:"error_code,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
