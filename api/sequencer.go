package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openboard/openboard/internal/slogging"
)

// ErrNilRoom is returned when an append has no valid room to attach to
var ErrNilRoom = errors.New("operation has no room")

// OperationSequencer assigns each accepted drawing operation the next
// sequence number for its room and persists it. The read-max/assign/persist
// step runs under a per-room mutex, so concurrent appends to one room can
// neither duplicate nor skip a number, while appends to different rooms do
// not block each other.
type OperationSequencer struct {
	store OperationStore

	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

// NewOperationSequencer creates a sequencer over the given operation store
func NewOperationSequencer(store OperationStore) *OperationSequencer {
	return &OperationSequencer{
		store: store,
		locks: make(map[uint64]*sync.Mutex),
	}
}

func (s *OperationSequencer) roomLock(roomID uint64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[roomID] = lock
	}
	return lock
}

// Append assigns the room's next sequence number to a new operation and
// persists it. The number is assigned before the row is written; a failed
// write consumes no sequence because the room lock is still held.
func (s *OperationSequencer) Append(ctx context.Context, room *Room, authorID uint64, opType, data string) (*Operation, error) {
	if room == nil || room.ID == 0 {
		return nil, ErrNilRoom
	}

	lock := s.roomLock(room.ID)
	lock.Lock()
	defer lock.Unlock()

	last, err := s.store.LastSequence(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read last sequence: %w", err)
	}

	op := &Operation{
		RoomID:         room.ID,
		UserID:         authorID,
		OperationType:  opType,
		OperationData:  data,
		SequenceNumber: last + 1,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.Append(ctx, op); err != nil {
		return nil, err
	}

	slogging.Get().Debug("Appended operation room=%s sequence=%d type=%s", room.RoomID, op.SequenceNumber, op.OperationType)
	return op, nil
}

// ListSince returns the room's operations with sequence number strictly
// greater than afterSequence, ascending. This is the catch-up primitive a
// reconnecting client uses instead of replaying from zero.
func (s *OperationSequencer) ListSince(ctx context.Context, room *Room, afterSequence int64) ([]Operation, error) {
	if room == nil || room.ID == 0 {
		return nil, ErrNilRoom
	}
	return s.store.ListSince(ctx, room.ID, afterSequence)
}
