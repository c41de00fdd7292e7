// Package server coordinates session registration, room-scoped fan-out, and
// connection cleanup for the RoomRelay WebSocket system via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Hub manages all WebSocket sessions and routes events to them. It keys
// sessions by their allocated session identifier so the relay can address a
// single session for history replay, a room's current members for broadcasts,
// or every connected session for global notices. Registration and
// unregistration flow through channels handled by Run; deliveries are
// mutex-guarded direct sends onto each session's buffered channel.
type Hub struct {
	sessions   map[string]*Client
	registry   *RoomRegistry
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub that resolves room membership through the given
// registry. The returned Hub is ready to manage connections once Run is
// started.
func NewHub(registry *RoomRegistry) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[string]*Client),
		registry:   registry,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new sessions.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering sessions.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Run starts the hub's main event loop, handling session registration and
// unregistration and launching the per-connection pumps. This method should be
// called in a separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil session registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.sessions[client.id] = client
			sessionCount := len(h.sessions)
			h.mutex.Unlock()
			log.Printf("Session %s (%s) registered from %s. Total sessions: %d",
				client.id, client.nickname, client.addr, sessionCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.sessions[client.id]; ok {
				delete(h.sessions, client.id)
				client.closed = true
				sessionCount := len(h.sessions)
				h.mutex.Unlock()
				// Close the channel after releasing the lock
				close(client.send)
				log.Printf("Session %s unregistered. Total sessions: %d", client.id, sessionCount)
			} else {
				h.mutex.Unlock()
			}
		}
	}
}

// EmitToRoom delivers the event to every session that is a member of the room
// at the moment of the call. Sessions joining concurrently are not guaranteed
// delivery; the relay's per-room serialization resolves that race.
func (h *Hub) EmitToRoom(room string, event ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error encoding event for room %q: %v", room, err)
		return
	}

	members := h.registry.MembersOf(room)

	h.mutex.RLock()
	targets := make([]*Client, 0, len(members))
	for _, sessionID := range members {
		if client, ok := h.sessions[sessionID]; ok {
			targets = append(targets, client)
		}
	}
	h.mutex.RUnlock()

	h.deliver(targets, payload)
}

// EmitToAll delivers the event to every connected session except the one
// identified by exceptID. Used for the legacy "session connected" notice; pass
// an empty exceptID to reach everyone.
func (h *Hub) EmitToAll(event ServerEvent, exceptID string) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error encoding global event: %v", err)
		return
	}

	h.mutex.RLock()
	targets := make([]*Client, 0, len(h.sessions))
	for sessionID, client := range h.sessions {
		if sessionID == exceptID {
			continue
		}
		targets = append(targets, client)
	}
	h.mutex.RUnlock()

	h.deliver(targets, payload)
}

// EmitToOne delivers the event to a single session, used for history replay.
// Delivery to a session that has already gone away is silently dropped.
func (h *Hub) EmitToOne(sessionID string, event ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error encoding event for session %s: %v", sessionID, err)
		return
	}

	h.mutex.RLock()
	client, ok := h.sessions[sessionID]
	h.mutex.RUnlock()
	if !ok {
		return
	}

	h.deliver([]*Client{client}, payload)
}

// deliver sends the payload to each target and sweeps out the ones whose send
// buffers are full or whose connections are already gone.
func (h *Hub) deliver(targets []*Client, payload []byte) {
	var failed []*Client
	for _, client := range targets {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	// Check if the session is still registered and not closed
	_, exists := h.sessions[client.id]
	if !exists || client.closed {
		return false
	}

	// Try to send the message (channel might be closed, so we need to recover from panic)
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// removeFailedClients removes sessions that failed to receive messages and
// closes their channels. Their room memberships are cleared so no phantom
// members survive the eviction.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.sessions[client.id]; exists {
			delete(h.sessions, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Session %s removed due to full send buffer", client.id)
		}
	}
	h.mutex.Unlock()

	for _, client := range clientsToRemove {
		h.registry.LeaveAll(client.id)
	}

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients gracefully closes all active session connections
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all session connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.sessions))
	for _, client := range h.sessions {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing session connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d session connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines
// to complete. It returns after all session connections are closed and
// goroutines have finished, or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	// Signal shutdown
	h.cancel()

	// Wait for Run() to complete
	<-h.done

	// Wait for all client goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
