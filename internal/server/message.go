// Package server defines the wire-level event and message types exchanged
// between clients and the relay.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event names carried in the envelope's "event" field. The names match the
// protocol the relay has always spoken, so existing clients keep working.
const (
	EventJoinRoom    = "JOIN_ROOM"
	EventLeaveRoom   = "LEAVE_ROOM"
	EventSendMessage = "SEND_MESSAGE"
)

// BotSender is the reserved sender name for system notices (join/leave and
// connection announcements) authored by the relay itself.
const BotSender = "bot"

// Message is a single chat message. ID carries the originating session's
// identifier; system notices use BotSender as the sender. Messages are
// immutable once created.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Room      string    `json:"room"`
}

// Envelope is the framing for every client-to-server event. Room is set for
// JOIN_ROOM and LEAVE_ROOM; Payload is set for SEND_MESSAGE and is decoded
// separately because clients may send it structured or pre-encoded.
type Envelope struct {
	Event   string          `json:"event"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerEvent is the framing for every server-to-client delivery, both live
// broadcasts and history replay.
type ServerEvent struct {
	Event   string  `json:"event"`
	Message Message `json:"message"`
}

// SendPayload is the decoded body of a SEND_MESSAGE event.
type SendPayload struct {
	Room    string `json:"room"`
	Content string `json:"content"`
}

// ErrMalformedPayload reports a SEND_MESSAGE payload that could not be decoded
// into a room and content. The offending message is discarded; the session is
// otherwise unaffected.
var ErrMalformedPayload = errors.New("malformed message payload")

// DecodeSendPayload decodes a SEND_MESSAGE payload. Clients send either a
// structured {room, content} object or a JSON string containing that object,
// so a string payload gets a second decode pass rather than silent coercion.
func DecodeSendPayload(raw json.RawMessage) (SendPayload, error) {
	if len(raw) == 0 {
		return SendPayload{}, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}

	data := []byte(raw)
	if data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return SendPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		data = []byte(encoded)
	}

	var payload SendPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return SendPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload.Room == "" {
		return SendPayload{}, fmt.Errorf("%w: missing room", ErrMalformedPayload)
	}
	return payload, nil
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
