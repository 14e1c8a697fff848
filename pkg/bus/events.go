package bus

import "time"

type EventType string

const (
	EventReplyRequested EventType = "reply_requested"
	EventReplyRendered  EventType = "reply_rendered"
	EventReplyFailed    EventType = "reply_failed"
)

// Event describes one step of a webhook round trip.
type Event struct {
	Type       EventType         `json:"type"`
	At         time.Time         `json:"at"`
	SessionKey string            `json:"session_key,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Payload keys set on reply_rendered events.
const (
	PayloadStrategy      = "strategy"
	PayloadStatusCode    = "status_code"
	PayloadDurationMS    = "duration_ms"
	PayloadDepthExceeded = "depth_exceeded"
	PayloadCycleDetected = "cycle_detected"
	PayloadFallback      = "fallback"
)
