// Package server tracks which sessions are currently joined to which rooms.
package server

import "sync"

// RoomRegistry owns the transient room membership state. Membership is exact:
// a session appears only in rooms it has explicitly joined, and disappears
// from all of them on leave or disconnect. All state is in memory and rebuilds
// from zero on restart; persisted messages are the store's concern.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

// NewRoomRegistry creates an empty RoomRegistry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]map[string]struct{}),
	}
}

// Join adds sessionID to the room's member set. Joining a room the session is
// already in is idempotent. Notice emission and history replay are the
// caller's responsibility.
func (r *RoomRegistry) Join(room, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[sessionID] = struct{}{}
}

// Leave removes sessionID from the room's member set. Leaving a room the
// session never joined is a no-op.
func (r *RoomRegistry) Leave(room, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// LeaveAll removes sessionID from every room it belongs to. Called on
// disconnect so no phantom members survive the session.
func (r *RoomRegistry) LeaveAll(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room, members := range r.rooms {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// IsMember reports whether sessionID currently belongs to the room.
func (r *RoomRegistry) IsMember(room, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[room][sessionID]
	return ok
}

// MembersOf returns a snapshot of the room's current member set. The snapshot
// is a copy, so callers can iterate it without holding up membership changes.
func (r *RoomRegistry) MembersOf(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	snapshot := make([]string, 0, len(members))
	for sessionID := range members {
		snapshot = append(snapshot, sessionID)
	}
	return snapshot
}
