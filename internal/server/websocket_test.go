package server_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/testhelpers"
)

// startTestServer runs a hub behind an httptest server with the default
// config, adjusted by customize if given, and returns the WebSocket URL.
func startTestServer(t *testing.T, customize func(cfg *server.Config)) (*server.Hub, string, string) {
	t.Helper()

	cfg := server.NewConfig()
	if customize != nil {
		customize(cfg)
	}
	server.SetConfig(cfg)

	hub := server.NewHub()
	server.StartHub(hub)
	ts := testhelpers.CreateTestServer(server.SetupRoutes(hub))

	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
		ts.Close()
		server.SetConfig(nil)
	})

	return hub, ts.URL, testhelpers.WebSocketURL(ts.URL)
}

func TestJoinAndChat(t *testing.T) {
	_, _, wsURL := startTestServer(t, nil)

	alice := testhelpers.MustConnect(t, wsURL)
	testhelpers.JoinRoom(t, alice, "general", "alice")

	assert.Empty(t, testhelpers.ExpectHistory(t, alice))
	notice := testhelpers.ExpectMessage(t, alice)
	assert.Equal(t, "System", notice.Username)
	assert.Equal(t, "alice joined the room", notice.Content)
	assert.Equal(t, "general", notice.Room)
	assert.NotEmpty(t, notice.ID)
	assert.False(t, notice.Timestamp.IsZero())

	bob := testhelpers.MustConnect(t, wsURL)
	testhelpers.JoinRoom(t, bob, "general", "bob")

	history := testhelpers.ExpectHistory(t, bob)
	require.Len(t, history, 1)
	assert.Equal(t, "alice joined the room", history[0].Content)
	assert.Equal(t, "bob joined the room", testhelpers.ExpectMessage(t, bob).Content)
	assert.Equal(t, "bob joined the room", testhelpers.ExpectMessage(t, alice).Content)

	testhelpers.SendMessage(t, alice, "general", "alice", "hi")

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := testhelpers.ExpectMessage(t, conn)
		assert.Equal(t, "alice", msg.Username)
		assert.Equal(t, "hi", msg.Content)
	}
}

func TestDisconnectBroadcastsLeave(t *testing.T) {
	_, _, wsURL := startTestServer(t, nil)

	alice := testhelpers.MustConnect(t, wsURL)
	testhelpers.JoinRoom(t, alice, "general", "alice")
	testhelpers.ExpectHistory(t, alice)
	testhelpers.ExpectMessage(t, alice)

	bob := testhelpers.MustConnect(t, wsURL)
	testhelpers.JoinRoom(t, bob, "general", "bob")
	testhelpers.ExpectHistory(t, bob)
	testhelpers.ExpectMessage(t, bob)
	testhelpers.ExpectMessage(t, alice)

	require.NoError(t, testhelpers.CloseWebSocket(alice))

	left := testhelpers.ExpectMessage(t, bob)
	assert.Equal(t, "System", left.Username)
	assert.Equal(t, "alice left the room", left.Content)

	carol := testhelpers.MustConnect(t, wsURL)
	testhelpers.JoinRoom(t, carol, "general", "carol")
	history := testhelpers.ExpectHistory(t, carol)
	require.Len(t, history, 3)
	assert.Equal(t, "alice left the room", history[2].Content)
}

func TestHistoryCapOverWebSocket(t *testing.T) {
	_, _, wsURL := startTestServer(t, nil)

	alice := testhelpers.MustConnect(t, wsURL)
	testhelpers.JoinRoom(t, alice, "general", "alice")
	testhelpers.ExpectHistory(t, alice)
	testhelpers.ExpectMessage(t, alice)

	var first testhelpers.ChatMessage
	for i := 0; i < 51; i++ {
		testhelpers.SendMessage(t, alice, "general", "alice", "m"+strings.Repeat("x", i))
		msg := testhelpers.ExpectMessage(t, alice)
		if i == 0 {
			first = msg
		}
	}
	assert.Equal(t, "m", first.Content)

	bob := testhelpers.MustConnect(t, wsURL)
	testhelpers.JoinRoom(t, bob, "general", "bob")
	history := testhelpers.ExpectHistory(t, bob)

	require.Len(t, history, server.DefaultHistoryLimit)
	for _, msg := range history {
		assert.NotEqual(t, "m", msg.Content, "oldest send was evicted")
		assert.NotEqual(t, "alice joined the room", msg.Content)
	}
}

func TestDefaultConfigDeliversBackToBackSends(t *testing.T) {
	_, _, wsURL := startTestServer(t, nil)

	alice := testhelpers.MustConnect(t, wsURL)
	testhelpers.JoinRoom(t, alice, "general", "alice")
	for i := 0; i < 51; i++ {
		testhelpers.SendMessage(t, alice, "general", "alice", fmt.Sprintf("m%d", i))
	}

	assert.Empty(t, testhelpers.ExpectHistory(t, alice))
	assert.Equal(t, "alice joined the room", testhelpers.ExpectMessage(t, alice).Content)
	for i := 0; i < 51; i++ {
		assert.Equal(t, fmt.Sprintf("m%d", i), testhelpers.ExpectMessage(t, alice).Content)
	}

	bob := testhelpers.MustConnect(t, wsURL)
	testhelpers.JoinRoom(t, bob, "general", "bob")
	history := testhelpers.ExpectHistory(t, bob)
	require.Len(t, history, server.DefaultHistoryLimit)
	assert.Equal(t, "m1", history[0].Content)
	assert.Equal(t, "m50", history[len(history)-1].Content)
}

func TestDefaultConfigAcceptsLongMessages(t *testing.T) {
	_, _, wsURL := startTestServer(t, nil)

	alice := testhelpers.MustConnect(t, wsURL)
	testhelpers.JoinRoom(t, alice, "general", "alice")
	testhelpers.ExpectHistory(t, alice)
	testhelpers.ExpectMessage(t, alice)

	content := strings.Repeat("a", 64*1024)
	testhelpers.SendMessage(t, alice, "general", "alice", content)
	assert.Equal(t, content, testhelpers.ExpectMessage(t, alice).Content)

	testhelpers.SendMessage(t, alice, "general", "alice", "still here")
	assert.Equal(t, "still here", testhelpers.ExpectMessage(t, alice).Content)
}

func TestMalformedFramesKeepConnectionOpen(t *testing.T) {
	_, _, wsURL := startTestServer(t, nil)

	conn := testhelpers.MustConnect(t, wsURL)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"event": ""}))
	require.NoError(t, testhelpers.Emit(conn, "join_room", map[string]string{"room": "general"}))
	require.NoError(t, testhelpers.Emit(conn, "send_message", map[string]string{"room": "general", "username": "alice"}))

	testhelpers.JoinRoom(t, conn, "general", "alice")
	assert.Empty(t, testhelpers.ExpectHistory(t, conn))
	assert.Equal(t, "alice joined the room", testhelpers.ExpectMessage(t, conn).Content)
}

func TestRateLimitDropsExcessFrames(t *testing.T) {
	_, _, wsURL := startTestServer(t, func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 2, RefillInterval: time.Hour}
	})

	conn := testhelpers.MustConnect(t, wsURL)
	testhelpers.JoinRoom(t, conn, "general", "alice")
	testhelpers.SendMessage(t, conn, "general", "alice", "one")
	testhelpers.SendMessage(t, conn, "general", "alice", "two")

	testhelpers.ExpectHistory(t, conn)
	testhelpers.ExpectMessage(t, conn)
	assert.Equal(t, "one", testhelpers.ExpectMessage(t, conn).Content)
	testhelpers.ExpectNoFrame(t, conn, 200*time.Millisecond)
}

func TestOriginPolicy(t *testing.T) {
	_, _, wsURL := startTestServer(t, nil)

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"configured origin", testhelpers.TestOrigin, true},
		{"configured origin upper case", strings.ToUpper(testhelpers.TestOrigin), true},
		{"other origin", "http://evil.example", false},
		{"missing origin", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := testhelpers.ConnectWebSocketWithOrigin(wsURL, tt.origin)
			if tt.allowed {
				require.NoError(t, err)
				_ = conn.Close()
				return
			}
			assert.Error(t, err)
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, baseURL, wsURL := startTestServer(t, nil)

	conn := testhelpers.MustConnect(t, wsURL)
	testhelpers.JoinRoom(t, conn, "general", "alice")
	testhelpers.ExpectHistory(t, conn)

	resp, err := http.Get(baseURL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var status server.HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, 1, status.Clients)
}

func TestWebSocketEndpointRejectsPost(t *testing.T) {
	_, baseURL, _ := startTestServer(t, nil)

	resp, err := http.Post(baseURL+"/ws", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	var body server.APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "method not allowed", body.StatusText)
}

func TestTestPageIsServed(t *testing.T) {
	_, baseURL, _ := startTestServer(t, nil)

	resp, err := http.Get(baseURL + "/test")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestShutdownClosesClients(t *testing.T) {
	hub, _, wsURL := startTestServer(t, nil)

	conn := testhelpers.MustConnect(t, wsURL)
	testhelpers.JoinRoom(t, conn, "general", "alice")
	testhelpers.ExpectHistory(t, conn)
	testhelpers.ExpectMessage(t, conn)

	require.NoError(t, hub.Shutdown(2*time.Second))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
