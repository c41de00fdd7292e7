// Package server defines the persistence contract for the durable message log
// and provides the in-memory fallback implementation.
package server

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrStoreUnavailable reports that the durable backend could not be reached.
// The relay logs the failure and still performs the live broadcast; real-time
// delivery is independent of durability.
var ErrStoreUnavailable = errors.New("message store unavailable")

// MessageStore is the durable append-only log of messages keyed by room.
// Append and the find methods are the relay's only blocking operations, so
// they take a context even though the core imposes no timeout itself.
type MessageStore interface {
	// Append persists the message and returns it as stored.
	Append(ctx context.Context, msg Message) (Message, error)
	// FindByRoom returns the room's messages in ascending timestamp order.
	FindByRoom(ctx context.Context, room string) ([]Message, error)
	// FindAll returns every persisted message across all rooms in ascending
	// timestamp order.
	FindAll(ctx context.Context) ([]Message, error)
}

// MemoryStore is a MessageStore backed by per-room slices. It is the fallback
// when no database path is configured and the workhorse of the test suites.
// A room's log is created lazily on its first append.
type MemoryStore struct {
	mu     sync.RWMutex
	byRoom map[string][]Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byRoom: make(map[string][]Message),
	}
}

// Append stores the message in its room's log.
func (s *MemoryStore) Append(_ context.Context, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byRoom[msg.Room] = append(s.byRoom[msg.Room], msg)
	return msg, nil
}

// FindByRoom returns a copy of the room's log sorted by ascending timestamp.
// The sort is stable so messages stored with identical timestamps keep their
// append order.
func (s *MemoryStore) FindByRoom(_ context.Context, room string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.byRoom[room]
	messages := make([]Message, len(stored))
	copy(messages, stored)
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

// FindAll returns every persisted message across all rooms sorted by
// ascending timestamp.
func (s *MemoryStore) FindAll(_ context.Context) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []Message
	for _, stored := range s.byRoom {
		messages = append(messages, stored...)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}
