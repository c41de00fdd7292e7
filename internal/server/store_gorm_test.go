package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err, "failed to open test store")
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sent := Message{
		ID:        "session-1",
		Sender:    "CleverFox",
		Content:   "hello world",
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Room:      "lobby",
	}

	stored, err := store.Append(ctx, sent)
	require.NoError(t, err)
	require.Equal(t, sent.Content, stored.Content)

	messages, err := store.FindByRoom(ctx, "lobby")
	require.NoError(t, err)
	require.Len(t, messages, 1)

	got := messages[0]
	require.Equal(t, sent.ID, got.ID)
	require.Equal(t, sent.Sender, got.Sender)
	require.Equal(t, sent.Content, got.Content)
	require.Equal(t, sent.Room, got.Room)
	require.True(t, got.Timestamp.Equal(sent.Timestamp),
		"expected timestamp %v, got %v", sent.Timestamp, got.Timestamp)
}

func TestSQLiteStoreFindByRoomOrdering(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	appendMsg := func(content string, at time.Time) {
		t.Helper()
		_, err := store.Append(ctx, Message{
			ID: "s1", Sender: "a", Content: content, Timestamp: at, Room: "lobby",
		})
		require.NoError(t, err)
	}

	// Appended out of order; ties resolved by insertion sequence.
	appendMsg("third", base.Add(5*time.Millisecond))
	appendMsg("first", base)
	appendMsg("second", base.Add(time.Millisecond))
	appendMsg("fourth", base.Add(5*time.Millisecond))

	messages, err := store.FindByRoom(ctx, "lobby")
	require.NoError(t, err)

	var contents []string
	for _, msg := range messages {
		contents = append(contents, msg.Content)
	}
	require.Equal(t, []string{"first", "second", "third", "fourth"}, contents)
}

func TestSQLiteStoreFindByRoomScopesToRoom(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, room := range []string{"lobby", "games", "lobby"} {
		_, err := store.Append(ctx, Message{
			ID: "s1", Sender: "a", Content: "m", Timestamp: time.Now(), Room: room,
		})
		require.NoError(t, err)
	}

	lobby, err := store.FindByRoom(ctx, "lobby")
	require.NoError(t, err)
	require.Len(t, lobby, 2)

	all, err := store.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestSQLiteStoreEmptyRoom(t *testing.T) {
	store := setupTestStore(t)

	messages, err := store.FindByRoom(context.Background(), "empty")
	require.NoError(t, err)
	require.Empty(t, messages)
}
