// Package server provides the SQLite-backed MessageStore used when a database
// path is configured.
package server

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// StoredMessage is the GORM model for a persisted message. Seq gives a stable
// tiebreaker for messages sharing a timestamp.
type StoredMessage struct {
	Seq       uint64    `gorm:"primarykey;autoIncrement"`
	SessionID string    `gorm:"size:64;not null"`
	Sender    string    `gorm:"size:100;not null"`
	Content   string    `gorm:"size:2000;not null"`
	Timestamp time.Time `gorm:"index;not null"`
	Room      string    `gorm:"size:100;index;not null"`
}

// TableName returns the table name for the StoredMessage model.
func (StoredMessage) TableName() string {
	return "messages"
}

// SQLiteStore is a MessageStore backed by SQLite through GORM.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at path and migrates
// the message schema. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open message database: %w", err)
	}
	if err := db.AutoMigrate(&StoredMessage{}); err != nil {
		return nil, fmt.Errorf("migrate message schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append persists the message.
func (s *SQLiteStore) Append(ctx context.Context, msg Message) (Message, error) {
	record := StoredMessage{
		SessionID: msg.ID,
		Sender:    msg.Sender,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		Room:      msg.Room,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return Message{}, fmt.Errorf("%w: append: %v", ErrStoreUnavailable, err)
	}
	return msg, nil
}

// FindByRoom returns the room's messages in ascending timestamp order, with
// insertion order breaking timestamp ties.
func (s *SQLiteStore) FindByRoom(ctx context.Context, room string) ([]Message, error) {
	var records []StoredMessage
	err := s.db.WithContext(ctx).
		Where("room = ?", room).
		Order("timestamp ASC").
		Order("seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: find by room: %v", ErrStoreUnavailable, err)
	}
	return toMessages(records), nil
}

// FindAll returns every persisted message across all rooms.
func (s *SQLiteStore) FindAll(ctx context.Context) ([]Message, error) {
	var records []StoredMessage
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("%w: find all: %v", ErrStoreUnavailable, err)
	}
	return toMessages(records), nil
}

func toMessages(records []StoredMessage) []Message {
	messages := make([]Message, 0, len(records))
	for _, record := range records {
		messages = append(messages, Message{
			ID:        record.SessionID,
			Sender:    record.Sender,
			Content:   record.Content,
			Timestamp: record.Timestamp,
			Room:      record.Room,
		})
	}
	return messages
}
