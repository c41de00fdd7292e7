// Package server exposes HTTP handlers, including WebSocket upgrades, the
// persisted message listing, health checks, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler returns a handler that upgrades the HTTP connection,
// allocates an identity for the session, and registers it with the relay.
// The hub launches the session's read/write pumps.
func WebSocketHandler(relay *Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		relay.Connect(conn, r.RemoteAddr)
	}
}

// MessagesHandler returns a handler that serves every persisted message
// across all rooms as a flat JSON array. This is the durable record; live
// delivery happens over the WebSocket independently.
func MessagesHandler(store MessageStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messages, err := store.FindAll(r.Context())
		if err != nil {
			log.Printf("Failed to list persisted messages: %v", err)
			http.Error(w, "Message store unavailable", http.StatusServiceUnavailable)
			return
		}
		if messages == nil {
			messages = []Message{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(messages); err != nil {
			log.Printf("Error writing message listing: %v", err)
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "RoomRelay server is running!")
}

// TestPageHandler serves an HTML test page for exercising the relay from a
// browser: connect, join a room, watch the history replay, and exchange
// messages with other sessions in the room.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>RoomRelay Test</title>
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
        input[type="text"] {
            padding: 5px;
            margin-right: 10px;
        }
        #roomInput { width: 120px; }
        #messageInput { width: 300px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status {
            margin: 10px 0;
            padding: 5px;
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>RoomRelay Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="roomInput" placeholder="Room" value="lobby" disabled>
        <button id="joinButton" onclick="joinRoom()" disabled>Join</button>
        <button id="leaveButton" onclick="leaveRoom()" disabled>Leave</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px;">
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const roomInput = document.getElementById('roomInput');
        const messageInput = document.getElementById('messageInput');
        const statusDiv = document.getElementById('status');
        const controls = ['roomInput', 'joinButton', 'leaveButton', 'messageInput', 'sendButton'];

        function addLine(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = color || 'black';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            controls.forEach(id => document.getElementById(id).disabled = !connected);
            document.getElementById('connectButton').textContent = connected ? 'Disconnect' : 'Connect';
        }

        function handleFrame(data) {
            // The relay batches queued deliveries into one frame separated by newlines.
            data.split('\n').forEach(line => {
                if (!line) return;
                try {
                    const evt = JSON.parse(line);
                    const m = evt.message;
                    const color = m.sender === 'bot' ? 'gray' : 'green';
                    addLine('[' + (m.room || '*') + '] ' + m.sender + ': ' + m.content, color);
                } catch (e) {
                    addLine(line, 'gray');
                }
            });
        }

        function connect() {
            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = () => { addLine('Connected to RoomRelay'); updateStatus(true); };
            ws.onmessage = (event) => handleFrame(event.data);
            ws.onclose = () => { addLine('Connection closed'); updateStatus(false); ws = null; };
            ws.onerror = (error) => { addLine('Connection error: ' + error); updateStatus(false); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) { ws.close(); } else { connect(); }
        }

        function joinRoom() {
            const room = roomInput.value.trim();
            if (room && ws) ws.send(JSON.stringify({event: 'JOIN_ROOM', room: room}));
        }

        function leaveRoom() {
            const room = roomInput.value.trim();
            if (room && ws) ws.send(JSON.stringify({event: 'LEAVE_ROOM', room: room}));
        }

        function sendMessage() {
            const room = roomInput.value.trim();
            const content = messageInput.value.trim();
            if (room && content && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: 'SEND_MESSAGE', payload: {room: room, content: content}}));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') sendMessage();
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
