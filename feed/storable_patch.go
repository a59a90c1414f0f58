package feed

import (
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/live-selectors-go/statetree"
)

var ErrInvalidValueJSON = errors.New("patch value json is not valid")
var ErrInvalidPatchOp = errors.New("patch op is not valid")
var ErrGeneratingPatchIDFailed = errors.New("generating the patch id failed")

// StorablePatches is an alias type for a slice of StorablePatch.
type StorablePatches = []StorablePatch

// StorablePatch is a DTO used by patch logs to append operations and query them back.
//
// It is built on scalars to be agnostic of how a tree is represented in memory.
// SequenceNumber is assigned by the log and only set on queried patches.
//
// While its properties are exported, it should only be constructed with BuildStorablePatch.
type StorablePatch struct {
	RoomID         string
	PatchID        uuid.UUID
	Op             statetree.OpKind
	Path           string
	ValueJSON      []byte
	OccurredAt     time.Time
	SequenceNumber MaxSequenceNumberUint
}

// BuildStorablePatch is a factory method for StorablePatch.
//
// It assigns a time-ordered (UUIDv7) patch id. valueJSON may be empty for delete operations,
// otherwise it must be valid JSON.
func BuildStorablePatch(
	roomID string,
	op statetree.OpKind,
	path string,
	valueJSON []byte,
	occurredAt time.Time,
) (StorablePatch, error) {

	patchID, err := uuid.NewV7()
	if err != nil {
		return StorablePatch{}, errors.Join(ErrGeneratingPatchIDFailed, err)
	}

	return RestoreStorablePatch(roomID, patchID, op, path, valueJSON, occurredAt, 0)
}

// RestoreStorablePatch rebuilds a StorablePatch read back from storage, with the same validation
// as BuildStorablePatch.
func RestoreStorablePatch(
	roomID string,
	patchID uuid.UUID,
	op statetree.OpKind,
	path string,
	valueJSON []byte,
	occurredAt time.Time,
	sequenceNumber MaxSequenceNumberUint,
) (StorablePatch, error) {

	if roomID == "" {
		return StorablePatch{}, ErrEmptyRoomID
	}

	if !op.Valid() {
		return StorablePatch{}, ErrInvalidPatchOp
	}

	if op == statetree.OpDelete && len(valueJSON) == 0 {
		valueJSON = []byte("null")
	}

	if !jsoniter.ConfigFastest.Valid(valueJSON) {
		return StorablePatch{}, ErrInvalidValueJSON
	}

	return StorablePatch{
		RoomID:         roomID,
		PatchID:        patchID,
		Op:             op,
		Path:           path,
		ValueJSON:      valueJSON,
		OccurredAt:     occurredAt,
		SequenceNumber: sequenceNumber,
	}, nil
}
