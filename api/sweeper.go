package api

import (
	"context"
	"sync"
	"time"

	"github.com/openboard/openboard/internal/slogging"
)

const (
	defaultSweepInterval = 5 * time.Minute
	defaultIdleThreshold = 5 * time.Minute
)

// SnapshotSweeper periodically records an empty snapshot for rooms that have
// gone quiet, so the snapshot table marks where activity stopped. A room with
// no recorded activity (nil last_updated) is never swept.
type SnapshotSweeper struct {
	rooms     RoomStore
	snapshots SnapshotStore

	interval      time.Duration
	idleThreshold time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSnapshotSweeper creates a sweeper with the default five minute cadence
func NewSnapshotSweeper(rooms RoomStore, snapshots SnapshotStore) *SnapshotSweeper {
	return &SnapshotSweeper{
		rooms:         rooms,
		snapshots:     snapshots,
		interval:      defaultSweepInterval,
		idleThreshold: defaultIdleThreshold,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine
func (s *SnapshotSweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slogging.Get().Info("Snapshot sweeper started (interval: %v)", s.interval)
		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stop:
				slogging.Get().Info("Snapshot sweeper stopped")
				return
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit
func (s *SnapshotSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Sweep runs one pass over all rooms
func (s *SnapshotSweeper) Sweep(ctx context.Context) {
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		slogging.Get().Error("Snapshot sweep failed to list rooms: %v", err)
		return
	}

	now := time.Now()
	for i := range rooms {
		room := &rooms[i]
		if room.LastUpdated == nil {
			continue
		}
		if now.Sub(*room.LastUpdated) <= s.idleThreshold {
			continue
		}
		snapshot := &Snapshot{RoomID: room.ID, ImageData: ""}
		if err := s.snapshots.Save(ctx, snapshot); err != nil {
			slogging.Get().Error("Snapshot sweep failed for room %s: %v", room.RoomID, err)
			continue
		}
		slogging.Get().Debug("Recorded idle snapshot for room %s", room.RoomID)
	}
}
