package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// IncomingMessagePayload is an inbound chat message accepted by the dispatcher.
type IncomingMessagePayload struct {
	DispatchID string `json:"dispatch_id"`
	Platform   string `json:"platform"`
	ChatID     int64  `json:"chat_id"`
	UserID     int64  `json:"user_id,omitempty"`
	Username   string `json:"username,omitempty"`
	Text       string `json:"text"`
	Tier       string `json:"tier"`
}

func (IncomingMessagePayload) EventType() EventType { return EventIncomingMessage }

// OutgoingMessagePayload is a reply produced by the dispatcher.
type OutgoingMessagePayload struct {
	DispatchID string `json:"dispatch_id"`
	Platform   string `json:"platform"`
	ChatID     int64  `json:"chat_id"`
	Text       string `json:"text"`
	HTML       bool   `json:"html,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (OutgoingMessagePayload) EventType() EventType { return EventOutgoingMessage }

// IntentClassifiedPayload reports the classification outcome of a free-form message.
type IntentClassifiedPayload struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities,omitempty"`
	Acted      bool           `json:"acted"`
	Fallback   bool           `json:"fallback,omitempty"`
}

func (IntentClassifiedPayload) EventType() EventType { return EventIntentClassified }

// LLMCallPayload describes one capability call, after retries.
type LLMCallPayload struct {
	Capability   string        `json:"capability"`
	Provider     string        `json:"provider"`
	Attempts     int           `json:"attempts"`
	MessageCount int           `json:"message_count,omitempty"`
	TokensInput  int           `json:"tokens_input,omitempty"`
	TokensOutput int           `json:"tokens_output,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func (LLMCallPayload) EventType() EventType { return EventLLMCall }

// NewTypedEvent builds an event from a typed payload.
func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return NewEvent(payload.EventType(), source, toMap(payload))
}

// NewTypedEventWithSession builds a session-scoped event from a typed payload.
func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	return NewEventWithSession(payload.EventType(), source, toMap(payload), sessionID)
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// ExtractPayload decodes the payload of e into T.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	if e.Type != result.EventType() {
		return result, false
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
