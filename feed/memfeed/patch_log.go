// Package memfeed provides an in-process implementation of feed.PatchLog and feed.SnapshotStore.
// It is used by tests and demos that run without a database.
package memfeed

import (
	"context"
	"slices"
	"sync"

	"github.com/AntonStoeckl/live-selectors-go/feed"
)

// PatchLog keeps all patches and snapshots in memory. It is safe for concurrent use.
type PatchLog struct {
	mu        sync.Mutex
	rooms     map[string]feed.StorablePatches
	snapshots map[string]feed.Snapshot
	appends   int
}

// NewPatchLog creates an empty PatchLog.
func NewPatchLog() *PatchLog {
	return &PatchLog{
		rooms:     make(map[string]feed.StorablePatches),
		snapshots: make(map[string]feed.Snapshot),
	}
}

// Query implements feed.PatchLog.
func (l *PatchLog) Query(
	ctx context.Context,
	roomID string,
	afterSequence feed.MaxSequenceNumberUint,
) (feed.StorablePatches, feed.MaxSequenceNumberUint, error) {

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	if roomID == "" {
		return nil, 0, feed.ErrEmptyRoomID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	patches := l.rooms[roomID]
	maxSequence := afterSequence

	if n := len(patches); n > 0 && patches[n-1].SequenceNumber > maxSequence {
		maxSequence = patches[n-1].SequenceNumber
	}

	start, _ := slices.BinarySearchFunc(patches, afterSequence+1, func(p feed.StorablePatch, seq feed.MaxSequenceNumberUint) int {
		switch {
		case p.SequenceNumber < seq:
			return -1
		case p.SequenceNumber > seq:
			return 1
		default:
			return 0
		}
	})

	return slices.Clone(patches[start:]), maxSequence, nil
}

// Append implements feed.PatchLog.
func (l *PatchLog) Append(
	ctx context.Context,
	roomID string,
	expectedMaxSequence feed.MaxSequenceNumberUint,
	patch feed.StorablePatch,
	additional ...feed.StorablePatch,
) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	all, err := feed.ValidateAppend(roomID, patch, additional...)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	patches := l.rooms[roomID]

	var current feed.MaxSequenceNumberUint
	if n := len(patches); n > 0 {
		current = patches[n-1].SequenceNumber
	}

	if current != expectedMaxSequence {
		return feed.ErrConcurrencyConflict
	}

	for _, p := range all {
		current++
		p.SequenceNumber = current
		patches = append(patches, p)
	}

	l.rooms[roomID] = patches
	l.appends++

	return nil
}

// SaveSnapshot implements feed.SnapshotStore. An existing snapshot of the room is replaced.
func (l *PatchLog) SaveSnapshot(ctx context.Context, snapshot feed.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := snapshot.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot.Data = slices.Clone(snapshot.Data)
	l.snapshots[snapshot.RoomID] = snapshot

	return nil
}

// LoadSnapshot implements feed.SnapshotStore.
func (l *PatchLog) LoadSnapshot(ctx context.Context, roomID string) (*feed.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot, ok := l.snapshots[roomID]
	if !ok {
		return nil, nil //nolint:nilnil
	}

	snapshot.Data = slices.Clone(snapshot.Data)

	return &snapshot, nil
}

// DeleteSnapshot implements feed.SnapshotStore. Deleting a missing snapshot is not an error.
func (l *PatchLog) DeleteSnapshot(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.snapshots, roomID)

	return nil
}

// AppendCount returns the number of successful Append calls.
func (l *PatchLog) AppendCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.appends
}

var (
	_ feed.PatchLog      = (*PatchLog)(nil)
	_ feed.SnapshotStore = (*PatchLog)(nil)
)
