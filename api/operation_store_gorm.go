package api

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// GormOperationStore implements OperationStore over GORM/Postgres
type GormOperationStore struct {
	db *gorm.DB
}

// NewGormOperationStore creates an operation store backed by the given GORM handle
func NewGormOperationStore(db *gorm.DB) *GormOperationStore {
	return &GormOperationStore{db: db}
}

// Append persists an operation with its pre-assigned sequence number inside a
// transaction. The unique (room_id, sequence_number) index is the backstop
// for the sequencer's per-room serialization.
func (s *GormOperationStore) Append(ctx context.Context, op *Operation) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(op).Error
	})
	if err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}
	return nil
}

// LastSequence returns the highest sequence number in the room, 0 if none
func (s *GormOperationStore) LastSequence(ctx context.Context, roomID uint64) (int64, error) {
	var op Operation
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("sequence_number DESC").
		First(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query last operation: %w", err)
	}
	return op.SequenceNumber, nil
}

// ListSince returns operations with sequence number strictly greater than
// afterSequence, ascending. afterSequence <= 0 returns the full history.
func (s *GormOperationStore) ListSince(ctx context.Context, roomID uint64, afterSequence int64) ([]Operation, error) {
	query := s.db.WithContext(ctx).Where("room_id = ?", roomID)
	if afterSequence > 0 {
		query = query.Where("sequence_number > ?", afterSequence)
	}

	var ops []Operation
	if err := query.Order("sequence_number ASC").Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return ops, nil
}
