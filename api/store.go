package api

import (
	"context"
	"errors"
	"time"
)

// Store-level sentinel errors
var (
	// ErrNotFound is returned when a referenced entity does not exist
	ErrNotFound = errors.New("not found")
)

// RoomStore is the persistence collaborator for rooms
type RoomStore interface {
	Create(ctx context.Context, room *Room) error
	GetByRoomID(ctx context.Context, roomID string) (*Room, error)
	List(ctx context.Context) ([]Room, error)
	TouchLastUpdated(ctx context.Context, roomID string, at time.Time) error
}

// OperationStore is the persistence collaborator for the operation log.
// Append is only ever called while the sequencer holds the room's lock, so
// implementations persist the already-assigned sequence number.
type OperationStore interface {
	Append(ctx context.Context, op *Operation) error
	LastSequence(ctx context.Context, roomID uint64) (int64, error)
	ListSince(ctx context.Context, roomID uint64, afterSequence int64) ([]Operation, error)
}

// MessageStore is the persistence collaborator for chat messages
type MessageStore interface {
	Save(ctx context.Context, msg *Message) error
	ListByRoom(ctx context.Context, roomID uint64) ([]ChatHistoryEntry, error)
}

// SnapshotStore is the persistence collaborator for canvas snapshots
type SnapshotStore interface {
	Save(ctx context.Context, snapshot *Snapshot) error
	Latest(ctx context.Context, roomID uint64) (*Snapshot, error)
}

// Stores bundles the persistence collaborators the core depends on
type Stores struct {
	Rooms      RoomStore
	Operations OperationStore
	Messages   MessageStore
	Snapshots  SnapshotStore
}
