// Package events carries the dispatch pipeline's notifications: an in-memory
// bus with per-subscriber queues and a bounded history.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event.
type EventType string

const (
	// Channel boundaries
	EventIncomingMessage EventType = "incoming.message"
	EventOutgoingMessage EventType = "outgoing.message"

	// Dispatch pipeline
	EventIntentClassified EventType = "intent.classified"

	// Internal (analytics/tracing)
	EventLLMCall EventType = "internal.llm.call"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceDispatch EventSource = "dispatch"
	SourceRouter   EventSource = "router"
	SourceModels   EventSource = "models"
	SourceWS       EventSource = "ws"
	SourceTelegram EventSource = "telegram"
)

// Event is one notification. SessionID is "<platform>_<chat_id>" when the event
// belongs to a conversation.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, source EventSource, payload map[string]any) Event {
	return NewEventWithSession(eventType, source, payload, "")
}

// NewEventWithSession creates an event bound to a conversation.
func NewEventWithSession(eventType EventType, source EventSource, payload map[string]any, sessionID string) Event {
	return Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Payload:   payload,
	}
}
