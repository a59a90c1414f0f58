package feed

import (
	"encoding/json"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrInvalidSnapshotJSON is returned when snapshot JSON data is malformed.
	ErrInvalidSnapshotJSON = errors.New("snapshot json is not valid")

	// ErrSavingSnapshotFailed is returned when the snapshot save operation fails.
	ErrSavingSnapshotFailed = errors.New("saving snapshot failed")

	// ErrLoadingSnapshotFailed is returned when the snapshot load operation fails.
	ErrLoadingSnapshotFailed = errors.New("loading snapshot failed")

	// ErrDeletingSnapshotFailed is returned when the snapshot delete operation fails.
	ErrDeletingSnapshotFailed = errors.New("deleting snapshot failed")
)

// Snapshot is the materialized tree of a room as of SequenceNumber.
type Snapshot struct {
	RoomID         string
	SequenceNumber MaxSequenceNumberUint // Last patch folded into Data
	Data           json.RawMessage       // Tree as a JSON object
	CreatedAt      time.Time
}

// Validate ensures the snapshot has valid data for storage operations.
func (s Snapshot) Validate() error {
	if s.RoomID == "" {
		return ErrEmptyRoomID
	}

	if !jsoniter.ConfigFastest.Valid(s.Data) {
		return ErrInvalidSnapshotJSON
	}

	return nil
}

// BuildSnapshot creates a new Snapshot with validation.
func BuildSnapshot(roomID string, sequenceNumber MaxSequenceNumberUint, data json.RawMessage) (Snapshot, error) {
	snapshot := Snapshot{
		RoomID:         roomID,
		SequenceNumber: sequenceNumber,
		Data:           data,
		CreatedAt:      time.Now(),
	}

	if err := snapshot.Validate(); err != nil {
		return Snapshot{}, err
	}

	return snapshot, nil
}
