package api

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// GormSnapshotStore implements SnapshotStore over GORM/Postgres
type GormSnapshotStore struct {
	db *gorm.DB
}

// NewGormSnapshotStore creates a snapshot store backed by the given GORM handle
func NewGormSnapshotStore(db *gorm.DB) *GormSnapshotStore {
	return &GormSnapshotStore{db: db}
}

// Save persists a snapshot of the room's canvas
func (s *GormSnapshotStore) Save(ctx context.Context, snapshot *Snapshot) error {
	if err := s.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for the room, ErrNotFound if none
func (s *GormSnapshotStore) Latest(ctx context.Context, roomID uint64) (*Snapshot, error) {
	var snapshot Snapshot
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return &snapshot, nil
}
