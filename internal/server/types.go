// Package server defines the wire envelope, inbound payloads, and the chat
// message type shared by the registry, hub, and client code.
package server

import (
	"encoding/json"
	"strings"
	"time"
)

// Inbound event names.
const (
	EventJoinRoom    = "join_room"
	EventSendMessage = "send_message"
)

// Outbound event names.
const (
	EventMessageHistory = "message_history"
	EventReceiveMessage = "receive_message"
)

// SystemUsername authors the join and leave notices.
const SystemUsername = "System"

// Envelope is the JSON frame exchanged over the WebSocket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomPayload is the data of a join_room event.
type JoinRoomPayload struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// SendMessagePayload is the data of a send_message event.
type SendMessagePayload struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Content  string `json:"content"`
}

// Message is a single chat line kept in a room's history and pushed to
// clients. Messages are never modified after creation.
type Message struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// inboundEvent is a decoded envelope together with the connection it came from.
type inboundEvent struct {
	client *Client
	event  string
	data   json.RawMessage
}

// encodeEnvelope marshals an outbound event with its payload.
func encodeEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
