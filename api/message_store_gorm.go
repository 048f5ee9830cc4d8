package api

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// GormMessageStore implements MessageStore over GORM/Postgres
type GormMessageStore struct {
	db *gorm.DB
}

// NewGormMessageStore creates a message store backed by the given GORM handle
func NewGormMessageStore(db *gorm.DB) *GormMessageStore {
	return &GormMessageStore{db: db}
}

// Save persists a chat message
func (s *GormMessageStore) Save(ctx context.Context, msg *Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ListByRoom returns the room's chat history ordered by timestamp. Messages
// whose author row is gone are dropped rather than returned half-formed.
func (s *GormMessageStore) ListByRoom(ctx context.Context, roomID uint64) ([]ChatHistoryEntry, error) {
	var entries []ChatHistoryEntry
	err := s.db.WithContext(ctx).
		Table("messages").
		Select("users.display_name AS username, messages.content, messages.timestamp").
		Joins("JOIN users ON users.id = messages.user_id").
		Where("messages.room_id = ?", roomID).
		Order("messages.timestamp ASC").
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return entries, nil
}
