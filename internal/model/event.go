package model

import (
	"encoding/json"
	"time"
)

// EventType identifies a relay event on the websocket surface.
type EventType string

const (
	// EventJoin subscribes the session to its identity channel.
	EventJoin EventType = "join"
	// EventChatSend submits a message over the socket. It is persisted
	// before fan-out, same as the HTTP path.
	EventChatSend EventType = "chat:send"
	// EventChatReceive delivers a freshly stored message to the receiver's
	// joined sessions.
	EventChatReceive EventType = "chat:receive"
	// EventError reports a session-level failure back to the client.
	EventError EventType = "error"
)

// Event is the websocket envelope for both directions.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload asks to receive relayed messages for UserID. The session
// must be authenticated as that user.
type JoinPayload struct {
	UserID string `json:"userId"`
}

// ChatSendPayload is a message submitted over the socket. Sender comes
// from the session identity, never from the payload.
type ChatSendPayload struct {
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
	Gig      string `json:"gig,omitempty"`
}

// ChatReceivePayload is what the receiver's sessions get.
type ChatReceivePayload struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Gig       *GigRef   `json:"gig,omitempty"`
}

// ErrorPayload carries a session error message.
type ErrorPayload struct {
	Message string `json:"message"`
}
