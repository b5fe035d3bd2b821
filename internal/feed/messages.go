package feed

import (
	"encoding/json"
	"time"
)

// ClientMessage is sent by a feed subscriber.
type ClientMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is sent to a feed subscriber.
type ServerMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// SessionData is the first message on every connection.
type SessionData struct {
	SubscriberID string `json:"subscriberId"`
}

// SubscribeData narrows the events a subscriber receives. Empty fields
// match everything.
type SubscribeData struct {
	EventTypes []string `json:"eventTypes,omitempty"`
	Disease    string   `json:"disease,omitempty"`
	MinWeight  string   `json:"minWeight,omitempty"`
}

// EventData is one lifecycle event pushed to subscribers.
type EventData struct {
	ID         string          `json:"id"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Summary    string          `json:"summary"`
	Category   string          `json:"category"`
	Weight     string          `json:"weight"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// ErrorData reports a rejected client message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
