// Package testhelpers provides common utilities and helper functions for testing the RoomRelay server.
//
// This package contains reusable test utilities that are shared across integration tests.
// It provides functions for creating test servers, making HTTP requests, driving the
// room event protocol over WebSocket, and asserting response properties to reduce
// code duplication in test files.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomrelay/internal/server"
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, "http://localhost:8080")
}

// ConnectWebSocketWithOrigin creates a WebSocket connection carrying the given
// Origin header, for exercising the origin allow-list.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", origin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// JoinRoom sends a JOIN_ROOM envelope for the given room.
func JoinRoom(conn *websocket.Conn, room string) error {
	return conn.WriteJSON(server.Envelope{Event: server.EventJoinRoom, Room: room})
}

// LeaveRoom sends a LEAVE_ROOM envelope for the given room.
func LeaveRoom(conn *websocket.Conn, room string) error {
	return conn.WriteJSON(server.Envelope{Event: server.EventLeaveRoom, Room: room})
}

// SendChatMessage sends a SEND_MESSAGE envelope with a structured payload
// targeting the given room.
func SendChatMessage(conn *websocket.Conn, room, content string) error {
	payload, err := json.Marshal(server.SendPayload{Room: room, Content: content})
	if err != nil {
		return err
	}
	return conn.WriteJSON(server.Envelope{Event: server.EventSendMessage, Payload: payload})
}

// SendRawMessage sends a raw byte message over the WebSocket connection.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// EventReader decodes server events from a WebSocket connection. The server
// batches queued events into a single frame separated by newlines, so the
// reader splits frames and hands events back one at a time.
type EventReader struct {
	conn    *websocket.Conn
	pending [][]byte
}

// NewEventReader wraps a connection for event-at-a-time reading.
func NewEventReader(conn *websocket.Conn) *EventReader {
	return &EventReader{conn: conn}
}

// Next returns the next server event, waiting up to the given timeout for a
// frame to arrive.
func (r *EventReader) Next(timeout time.Duration) (server.ServerEvent, error) {
	var event server.ServerEvent

	if len(r.pending) == 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return event, err
		}
		_, frame, err := r.conn.ReadMessage()
		if err != nil {
			return event, err
		}
		for _, part := range bytes.Split(frame, []byte{'\n'}) {
			if len(bytes.TrimSpace(part)) > 0 {
				r.pending = append(r.pending, part)
			}
		}
	}

	raw := r.pending[0]
	r.pending = r.pending[1:]
	err := json.Unmarshal(raw, &event)
	return event, err
}

// ExpectMessage reads events until one carries the expected content, failing
// the test if it does not arrive within the timeout. Events with other content
// are discarded, which lets callers skip over join notices.
func (r *EventReader) ExpectMessage(t *testing.T, content string, timeout time.Duration) server.Message {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for message %q", content)
		}
		event, err := r.Next(remaining)
		if err != nil {
			t.Fatalf("Failed reading event while waiting for %q: %v", content, err)
		}
		if event.Message.Content == content {
			return event.Message
		}
	}
}

// ExpectNoMessage asserts that no event arrives within the given window.
func (r *EventReader) ExpectNoMessage(t *testing.T, window time.Duration) {
	t.Helper()

	event, err := r.Next(window)
	if err == nil {
		t.Fatalf("Expected silence, got event: %+v", event)
	}
}
