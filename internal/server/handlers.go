// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in room test page.
package server

import (
	"log"
	"net/http"

	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// APIError is a JSON error body rendered with go-chi/render.
type APIError struct {
	StatusCode int    `json:"-"`
	StatusText string `json:"statusText"`
	Message    string `json:"message"`
}

// ErrAPIMethodNotAllowed is returned for non-GET requests to the WebSocket endpoint.
var ErrAPIMethodNotAllowed = &APIError{
	StatusCode: http.StatusMethodNotAllowed,
	StatusText: "method not allowed",
	Message:    "WebSocket endpoint only accepts GET requests",
}

// Render sets the response status before the body is written.
func (e *APIError) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// NewWebSocketHandler upgrades GET requests to WebSocket connections and
// hands each one to hub.
func NewWebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			if err := render.Render(w, r, ErrAPIMethodNotAllowed); err != nil {
				log.Printf("Error rendering error response: %v", err)
			}
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		if err := hub.Register(client); err != nil {
			log.Printf("Rejecting connection from %s: %v", r.RemoteAddr, err)
			_ = conn.Close()
		}
	}
}

// NewHealthHandler reports that the server is up and how many connections
// the hub holds.
func NewHealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, HealthStatus{Status: "ok", Clients: hub.ClientCount()})
	}
}

// TestPageHandler serves a small HTML page for joining rooms and chatting
// against the /ws endpoint from a browser.
func TestPageHandler(w http.ResponseWriter, r *http.Request) {
	render.HTML(w, r, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>RoomChat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 180px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .system { color: gray; font-style: italic; }
    </style>
</head>
<body>
    <h1>RoomChat Test</h1>

    <div>
        <input type="text" id="room" placeholder="Room" value="general">
        <input type="text" id="username" placeholder="Username">
        <button onclick="joinRoom()">Join</button>
    </div>
    <div style="margin-top: 10px">
        <input type="text" id="content" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>

    <div id="messages"></div>

    <script>
        const messagesDiv = document.getElementById('messages');
        const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
        const ws = new WebSocket(scheme + location.host + '/ws');

        function show(msg) {
            const el = document.createElement('div');
            if (msg.username === 'System') {
                el.className = 'system';
            }
            el.textContent = '[' + new Date(msg.timestamp).toLocaleTimeString() + '] ' +
                msg.username + ': ' + msg.content;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        ws.onmessage = function(event) {
            const frame = JSON.parse(event.data);
            if (frame.event === 'message_history') {
                messagesDiv.innerHTML = '';
                (frame.data || []).forEach(show);
            } else if (frame.event === 'receive_message') {
                show(frame.data);
            }
        };

        function emit(event, data) {
            ws.send(JSON.stringify({ event: event, data: data }));
        }

        function joinRoom() {
            emit('join_room', {
                room: document.getElementById('room').value.trim(),
                username: document.getElementById('username').value.trim()
            });
        }

        function sendMessage() {
            const input = document.getElementById('content');
            emit('send_message', {
                room: document.getElementById('room').value.trim(),
                username: document.getElementById('username').value.trim(),
                content: input.value
            });
            input.value = '';
        }
    </script>
</body>
</html>`
