package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openboard/openboard/internal/slogging"
)

// GormRoomStore implements RoomStore over GORM/Postgres
type GormRoomStore struct {
	db *gorm.DB
}

// NewGormRoomStore creates a room store backed by the given GORM handle
func NewGormRoomStore(db *gorm.DB) *GormRoomStore {
	return &GormRoomStore{db: db}
}

// Create inserts a new room row
func (s *GormRoomStore) Create(ctx context.Context, room *Room) error {
	logger := slogging.Get()
	logger.Debug("Creating room %s", room.RoomID)

	if err := s.db.WithContext(ctx).Create(room).Error; err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// GetByRoomID finds a room by its public identifier, preloading the owner
func (s *GormRoomStore) GetByRoomID(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	err := s.db.WithContext(ctx).Preload("Owner").Where("room_id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query room: %w", err)
	}
	return &room, nil
}

// List returns all rooms with owners preloaded
func (s *GormRoomStore) List(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := s.db.WithContext(ctx).Preload("Owner").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// TouchLastUpdated records draw activity on a room for the snapshot sweeper
func (s *GormRoomStore) TouchLastUpdated(ctx context.Context, roomID string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&Room{}).
		Where("room_id = ?", roomID).
		Update("last_updated", at)
	if result.Error != nil {
		return fmt.Errorf("failed to touch room: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
