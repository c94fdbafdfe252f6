// Package testhelpers provides common utilities for testing the RoomChat server.
//
// It wraps the gorilla dialer and the JSON envelope format so tests can join
// rooms, send messages, and read outbound events without repeating the
// plumbing in every file.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:5173"

// Frame is an outbound envelope as seen by a client.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ChatMessage mirrors the server's message JSON.
type ChatMessage struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateTestServer creates a test HTTP server with the given handler.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// WebSocketURL turns an httptest server URL into its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket dials url with the TestOrigin header.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials url with the given Origin header, or none
// when origin is empty.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect dials url and registers the connection for cleanup.
func MustConnect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url)
	require.NoError(t, err, "dial %s", url)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Emit sends an inbound event envelope.
func Emit(conn *websocket.Conn, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(Frame{Event: event, Data: payload})
}

// JoinRoom emits join_room.
func JoinRoom(t *testing.T, conn *websocket.Conn, room, username string) {
	t.Helper()
	require.NoError(t, Emit(conn, "join_room", map[string]string{"room": room, "username": username}))
}

// SendMessage emits send_message.
func SendMessage(t *testing.T, conn *websocket.Conn, room, username, content string) {
	t.Helper()
	require.NoError(t, Emit(conn, "send_message", map[string]string{
		"room":     room,
		"username": username,
		"content":  content,
	}))
}

// ReadFrame reads the next envelope, failing the test after timeout.
func ReadFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// ExpectHistory reads the next frame and decodes it as message_history.
func ExpectHistory(t *testing.T, conn *websocket.Conn) []ChatMessage {
	t.Helper()
	frame := ReadFrame(t, conn, 2*time.Second)
	require.Equal(t, "message_history", frame.Event)
	var history []ChatMessage
	require.NoError(t, json.Unmarshal(frame.Data, &history))
	return history
}

// ExpectMessage reads the next frame and decodes it as receive_message.
func ExpectMessage(t *testing.T, conn *websocket.Conn) ChatMessage {
	t.Helper()
	frame := ReadFrame(t, conn, 2*time.Second)
	require.Equal(t, "receive_message", frame.Event)
	var msg ChatMessage
	require.NoError(t, json.Unmarshal(frame.Data, &msg))
	return msg
}

// ExpectNoFrame fails the test if anything arrives on conn within timeout.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame, got %s", data)
}

// CloseWebSocket sends a normal close frame and closes the connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
