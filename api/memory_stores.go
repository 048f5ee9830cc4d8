package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openboard/openboard/auth"
)

func ownerStub(id uint64, name string) *auth.User {
	return &auth.User{ID: id, DisplayName: name}
}

// In-memory store implementations. They back unit tests and the
// database-free development mode; semantics mirror the GORM stores.

// MemoryRoomStore is an in-memory RoomStore
type MemoryRoomStore struct {
	mu     sync.RWMutex
	nextID uint64
	rooms  map[string]*Room
	owners map[uint64]string // owner display names for List/Get responses
}

// NewMemoryRoomStore creates an empty in-memory room store
func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{
		rooms:  make(map[string]*Room),
		owners: make(map[uint64]string),
	}
}

// SetOwnerName registers a display name for an owner id
func (s *MemoryRoomStore) SetOwnerName(ownerID uint64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[ownerID] = name
}

// Create inserts a room
func (s *MemoryRoomStore) Create(_ context.Context, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	room.ID = s.nextID
	room.CreatedAt = time.Now().UTC()
	stored := *room
	s.rooms[room.RoomID] = &stored
	return nil
}

// GetByRoomID finds a room by its public identifier
func (s *MemoryRoomStore) GetByRoomID(_ context.Context, roomID string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *room
	s.attachOwner(&out)
	return &out, nil
}

// List returns all rooms
func (s *MemoryRoomStore) List(_ context.Context) ([]Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out := *room
		s.attachOwner(&out)
		rooms = append(rooms, out)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

// TouchLastUpdated records draw activity on a room
func (s *MemoryRoomStore) TouchLastUpdated(_ context.Context, roomID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	t := at
	room.LastUpdated = &t
	return nil
}

func (s *MemoryRoomStore) attachOwner(room *Room) {
	if name, ok := s.owners[room.OwnerID]; ok {
		room.Owner = ownerStub(room.OwnerID, name)
	}
}

// MemoryOperationStore is an in-memory OperationStore
type MemoryOperationStore struct {
	mu     sync.RWMutex
	nextID uint64
	ops    map[uint64][]Operation // keyed by room primary key
}

// NewMemoryOperationStore creates an empty in-memory operation store
func NewMemoryOperationStore() *MemoryOperationStore {
	return &MemoryOperationStore{ops: make(map[uint64][]Operation)}
}

// Append persists an operation with its pre-assigned sequence number
func (s *MemoryOperationStore) Append(_ context.Context, op *Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	op.ID = s.nextID
	op.CreatedAt = time.Now().UTC()
	s.ops[op.RoomID] = append(s.ops[op.RoomID], *op)
	return nil
}

// LastSequence returns the highest sequence number in the room, 0 if none
func (s *MemoryOperationStore) LastSequence(_ context.Context, roomID uint64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := s.ops[roomID]
	if len(ops) == 0 {
		return 0, nil
	}
	var max int64
	for _, op := range ops {
		if op.SequenceNumber > max {
			max = op.SequenceNumber
		}
	}
	return max, nil
}

// ListSince returns operations with sequence number > afterSequence, ascending
func (s *MemoryOperationStore) ListSince(_ context.Context, roomID uint64, afterSequence int64) ([]Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Operation
	for _, op := range s.ops[roomID] {
		if op.SequenceNumber > afterSequence {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

// MemoryMessageStore is an in-memory MessageStore
type MemoryMessageStore struct {
	mu       sync.RWMutex
	nextID   uint64
	messages map[uint64][]Message
	authors  map[uint64]string // user id -> display name
}

// NewMemoryMessageStore creates an empty in-memory message store
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		messages: make(map[uint64][]Message),
		authors:  make(map[uint64]string),
	}
}

// SetAuthorName registers a display name for a user id
func (s *MemoryMessageStore) SetAuthorName(userID uint64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authors[userID] = name
}

// Save persists a chat message
func (s *MemoryMessageStore) Save(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg.ID = s.nextID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], *msg)
	return nil
}

// ListByRoom returns the chat history ordered by timestamp, dropping
// messages without a known author
func (s *MemoryMessageStore) ListByRoom(_ context.Context, roomID uint64) ([]ChatHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := append([]Message(nil), s.messages[roomID]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })

	var entries []ChatHistoryEntry
	for _, msg := range msgs {
		name, ok := s.authors[msg.UserID]
		if !ok {
			continue
		}
		entries = append(entries, ChatHistoryEntry{
			Username:  name,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}
	return entries, nil
}

// MemorySnapshotStore is an in-memory SnapshotStore
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	nextID    uint64
	snapshots map[uint64][]Snapshot
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[uint64][]Snapshot)}
}

// Save persists a snapshot
func (s *MemorySnapshotStore) Save(_ context.Context, snapshot *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	snapshot.ID = s.nextID
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	s.snapshots[snapshot.RoomID] = append(s.snapshots[snapshot.RoomID], *snapshot)
	return nil
}

// Latest returns the most recent snapshot for the room
func (s *MemorySnapshotStore) Latest(_ context.Context, roomID uint64) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := s.snapshots[roomID]
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	latest := snaps[0]
	for _, snap := range snaps[1:] {
		if snap.CreatedAt.After(latest.CreatedAt) || (snap.CreatedAt.Equal(latest.CreatedAt) && snap.ID > latest.ID) {
			latest = snap
		}
	}
	out := latest
	return &out, nil
}
