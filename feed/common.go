package feed

import (
	"context"
	"errors"
)

var (
	// ErrEmptyTableNameSupplied is returned when a table name option is empty.
	ErrEmptyTableNameSupplied = errors.New("empty table name supplied")

	// ErrNilDatabaseConnection is returned when a patch log is constructed without a connection.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrConcurrencyConflict is returned when the room advanced past the expected sequence number.
	ErrConcurrencyConflict = errors.New("concurrency error, no rows were affected")

	// ErrEmptyRoomID is returned when a room id is empty.
	ErrEmptyRoomID = errors.New("room id must not be empty")

	// ErrRoomMismatch is returned when an appended patch belongs to a different room.
	ErrRoomMismatch = errors.New("patch belongs to a different room")

	// ErrBuildingQueryFailed is returned when a SQL statement cannot be built.
	ErrBuildingQueryFailed = errors.New("building the query failed")

	// ErrQueryingPatchesFailed is returned when reading patches fails.
	ErrQueryingPatchesFailed = errors.New("querying patches failed")

	// ErrScanningDBRowFailed is returned when a result row cannot be scanned.
	ErrScanningDBRowFailed = errors.New("scanning the database row failed")

	// ErrRowsIterationFailed is returned when iterating a result set fails.
	ErrRowsIterationFailed = errors.New("database rows iteration failed")

	// ErrAppendingPatchFailed is returned when writing patches fails.
	ErrAppendingPatchFailed = errors.New("appending the patch failed")

	// ErrGettingRowsAffectedFailed is returned when the affected row count is unavailable.
	ErrGettingRowsAffectedFailed = errors.New("getting rows affected failed")

	// ErrBuildingStorablePatchFailed is returned when a stored row does not form a valid patch.
	ErrBuildingStorablePatchFailed = errors.New("building storable patch from database row failed")

	// ErrCreatingSchemaFailed is returned when the tables of a patch log cannot be created.
	ErrCreatingSchemaFailed = errors.New("creating the schema failed")
)

// MaxSequenceNumberUint is the highest sequence number seen for a room. Zero means empty.
type MaxSequenceNumberUint = uint

// PatchLog is the append-only patch log of rooms.
type PatchLog interface {
	// Query returns the patches of roomID with a sequence number greater than afterSequence,
	// ascending, plus the room's max sequence number. When nothing new exists, the returned
	// max sequence number is afterSequence.
	Query(ctx context.Context, roomID string, afterSequence MaxSequenceNumberUint) (StorablePatches, MaxSequenceNumberUint, error)

	// Append atomically appends the patches if the room's max sequence number still equals
	// expectedMaxSequence, otherwise it returns ErrConcurrencyConflict.
	Append(
		ctx context.Context,
		roomID string,
		expectedMaxSequence MaxSequenceNumberUint,
		patch StorablePatch,
		additional ...StorablePatch,
	) error
}

// SnapshotStore persists materialized room state.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error

	// LoadSnapshot returns nil and no error when no snapshot exists.
	LoadSnapshot(ctx context.Context, roomID string) (*Snapshot, error)

	DeleteSnapshot(ctx context.Context, roomID string) error
}

// ValidateAppend checks the arguments of an Append call and returns all patches in order.
func ValidateAppend(roomID string, patch StorablePatch, additional ...StorablePatch) (StorablePatches, error) {
	if roomID == "" {
		return nil, ErrEmptyRoomID
	}

	all := append(StorablePatches{patch}, additional...)

	for _, p := range all {
		if p.RoomID != roomID {
			return nil, ErrRoomMismatch
		}
	}

	return all, nil
}
