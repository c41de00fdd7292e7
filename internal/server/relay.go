// Package server implements the relay state machine that ties identity
// allocation, room membership, persistence, and broadcasting together for
// each session.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Relay orchestrates the lifecycle of every session: connect, JOIN_ROOM,
// SEND_MESSAGE, LEAVE_ROOM, and disconnect. Room membership lives in the
// registry, fan-out goes through the hub, and durability goes through the
// store.
//
// Each room has a serialization lock held across the operations that touch
// its log and its members. Persistence calls block, and other sessions'
// events interleave while they do, so the join sequence (replay history, then
// persist and broadcast the join notice) must be made atomic per room rather
// than assumed from call order. The lock guarantees a joining session has its
// replay enqueued before any later message for that room reaches it.
type Relay struct {
	registry *RoomRegistry
	hub      *Hub
	store    MessageStore
	identity *IdentityAllocator

	mu        sync.Mutex
	roomLocks map[string]*sync.Mutex
}

// NewRelay creates a Relay with its own registry and hub, persisting messages
// to the given store. Start the hub with StartHub before serving connections.
func NewRelay(store MessageStore) *Relay {
	registry := NewRoomRegistry()
	return &Relay{
		registry:  registry,
		hub:       NewHub(registry),
		store:     store,
		identity:  NewIdentityAllocator(),
		roomLocks: make(map[string]*sync.Mutex),
	}
}

// Hub returns the relay's hub for lifecycle coordination (startup, shutdown).
func (r *Relay) Hub() *Hub {
	return r.hub
}

// StartHub launches the hub's event loop in its own goroutine. This must be
// called before the HTTP server starts accepting WebSocket upgrades.
func (r *Relay) StartHub() {
	go r.hub.Run()
	log.Println("Hub started and ready to manage WebSocket sessions")
}

// Connect allocates an identity for the new connection, registers it with the
// hub, and announces it to every other connected session. The announcement is
// a legacy global notice, not room-scoped, and is not persisted.
func (r *Relay) Connect(conn *websocket.Conn, addr string) *Client {
	sessionID, nickname := r.identity.Allocate()
	client := NewClient(conn, r, sessionID, nickname, addr)

	r.hub.register <- client

	notice := Message{
		ID:        sessionID,
		Sender:    BotSender,
		Content:   fmt.Sprintf("%s connected", nickname),
		Timestamp: time.Now(),
	}
	r.hub.EmitToAll(ServerEvent{Event: EventSendMessage, Message: notice}, sessionID)

	return client
}

// JoinRoom registers the session in the room, replays the room's persisted
// history to it in ascending timestamp order, and then persists and
// broadcasts a join notice to all current members including the joiner.
//
// The replay is enqueued on the session's delivery channel before the notice
// is even built, and the room lock is held throughout, so the joining session
// observes its history strictly before the join notice or any later live
// message. Rejoining a room re-sends the full history and posts a fresh
// notice; each call is one join event.
func (r *Relay) JoinRoom(ctx context.Context, c *Client, room string) {
	if room == "" {
		log.Printf("Discarding JOIN_ROOM from session %s: missing room", c.id)
		return
	}

	lock := r.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	r.registry.Join(room, c.id)

	history, err := r.store.FindByRoom(ctx, room)
	if err != nil {
		log.Printf("History replay for room %q unavailable: %v", room, err)
	}
	for _, msg := range history {
		r.hub.EmitToOne(c.id, ServerEvent{Event: EventSendMessage, Message: msg})
	}

	notice := Message{
		ID:        c.id,
		Sender:    BotSender,
		Content:   fmt.Sprintf("%s joined %s", c.nickname, room),
		Timestamp: time.Now(),
		Room:      room,
	}
	r.persist(ctx, notice)
	r.hub.EmitToRoom(room, ServerEvent{Event: EventSendMessage, Message: notice})
}

// SendMessage decodes the payload, persists the message, and broadcasts it to
// the room's current members. A payload that fails to decode is logged and
// discarded without affecting the session. Sending to a room the session has
// not joined is allowed; the append initializes that room's log and the
// broadcast reaches whoever is a member, possibly nobody.
func (r *Relay) SendMessage(ctx context.Context, c *Client, raw json.RawMessage) {
	payload, err := DecodeSendPayload(raw)
	if err != nil {
		log.Printf("Discarding message from session %s: %v", c.id, err)
		return
	}

	lock := r.roomLock(payload.Room)
	lock.Lock()
	defer lock.Unlock()

	msg := Message{
		ID:        c.id,
		Sender:    c.nickname,
		Content:   payload.Content,
		Timestamp: time.Now(),
		Room:      payload.Room,
	}
	r.persist(ctx, msg)
	r.hub.EmitToRoom(payload.Room, ServerEvent{Event: EventSendMessage, Message: msg})
}

// LeaveRoom persists and broadcasts a leave notice to the room, the departing
// session included, then removes the session from the member set. Leaving a
// room the session was never in is a deterministic no-op: no notice, no error.
func (r *Relay) LeaveRoom(ctx context.Context, c *Client, room string) {
	if room == "" {
		log.Printf("Discarding LEAVE_ROOM from session %s: missing room", c.id)
		return
	}

	lock := r.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	if !r.registry.IsMember(room, c.id) {
		return
	}

	notice := Message{
		ID:        c.id,
		Sender:    BotSender,
		Content:   fmt.Sprintf("%s left %s", c.nickname, room),
		Timestamp: time.Now(),
		Room:      room,
	}
	r.persist(ctx, notice)
	r.hub.EmitToRoom(room, ServerEvent{Event: EventSendMessage, Message: notice})

	r.registry.Leave(room, c.id)
}

// Disconnect removes the session from every room and unregisters it from the
// hub. No further events are processed for the session identifier afterwards;
// in-flight persistence writes still complete.
func (r *Relay) Disconnect(c *Client) {
	r.registry.LeaveAll(c.id)
	r.hub.unregister <- c
}

// persist appends the message to the store. A persistence fault never crashes
// the session or suppresses the live broadcast; the failure is logged and the
// relay moves on.
func (r *Relay) persist(ctx context.Context, msg Message) {
	if _, err := r.store.Append(ctx, msg); err != nil {
		log.Printf("Failed to persist message for room %q: %v; live broadcast continues", msg.Room, err)
	}
}

// roomLock returns the serialization lock for the room, creating it on first
// use. Locks are retained for the process lifetime; room names are few.
func (r *Relay) roomLock(room string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.roomLocks[room]
	if !ok {
		lock = &sync.Mutex{}
		r.roomLocks[room] = lock
	}
	return lock
}
