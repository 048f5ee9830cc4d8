package api

import (
	"sort"
	"sync"
)

// PresenceRegistry tracks which members are currently in each room. Each
// room has its own lock so joins and leaves in one room serialize against
// each other while other rooms proceed in parallel. Member lists returned
// from Join/Leave are snapshots taken under the same lock as the mutation,
// so a broadcast always reflects the state it announces.
type PresenceRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*roomPresence
}

type roomPresence struct {
	mu      sync.Mutex
	members map[string]PresenceEntry
}

// NewPresenceRegistry creates an empty registry
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{rooms: make(map[string]*roomPresence)}
}

func (r *PresenceRegistry) room(roomID string, create bool) *roomPresence {
	r.mu.RLock()
	rp := r.rooms[roomID]
	r.mu.RUnlock()
	if rp != nil || !create {
		return rp
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rp = r.rooms[roomID]; rp == nil {
		rp = &roomPresence{members: make(map[string]PresenceEntry)}
		r.rooms[roomID] = rp
	}
	return rp
}

// Join inserts or overwrites the member's presence entry and returns the
// room's full member list.
func (r *PresenceRegistry) Join(roomID string, entry PresenceEntry) []PresenceEntry {
	rp := r.room(roomID, true)
	rp.mu.Lock()
	defer rp.mu.Unlock()

	rp.members[entry.Username] = entry
	return rp.snapshot()
}

// Leave removes the member's entry and returns the resulting member list.
// The second return is false when the room has no registry entry at all, in
// which case the leave is a no-op and nothing should be broadcast.
func (r *PresenceRegistry) Leave(roomID, username string) ([]PresenceEntry, bool) {
	rp := r.room(roomID, false)
	if rp == nil {
		return nil, false
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()

	delete(rp.members, username)
	return rp.snapshot(), true
}

// Members returns the current member list for the room
func (r *PresenceRegistry) Members(roomID string) []PresenceEntry {
	rp := r.room(roomID, false)
	if rp == nil {
		return nil
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.snapshot()
}

// snapshot must be called with the room lock held
func (rp *roomPresence) snapshot() []PresenceEntry {
	members := make([]PresenceEntry, 0, len(rp.members))
	for _, entry := range rp.members {
		members = append(members, entry)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Username < members[j].Username })
	return members
}
