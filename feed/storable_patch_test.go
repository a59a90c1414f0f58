package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/live-selectors-go/statetree"
)

func Test_BuildStorablePatch_ErrorCases(t *testing.T) {
	validTime := time.Now()

	tests := []struct {
		name        string
		roomID      string
		op          statetree.OpKind
		valueJSON   []byte
		expectedErr error
	}{
		{name: "empty room id", roomID: "", op: statetree.OpSet, valueJSON: []byte(`1`), expectedErr: ErrEmptyRoomID},
		{name: "unknown op", roomID: "room", op: "move", valueJSON: []byte(`1`), expectedErr: ErrInvalidPatchOp},
		{name: "invalid value json", roomID: "room", op: statetree.OpSet, valueJSON: []byte(`{"a":`), expectedErr: ErrInvalidValueJSON},
		{name: "empty value json for set", roomID: "room", op: statetree.OpSet, valueJSON: nil, expectedErr: ErrInvalidValueJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildStorablePatch(tt.roomID, tt.op, "todos.0", tt.valueJSON, validTime)

			assert.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func Test_BuildStorablePatch_Success(t *testing.T) {
	occurredAt := time.Unix(1000, 0).UTC()

	setPatch, err := BuildStorablePatch("room", statetree.OpSet, "todos.0.done", []byte(`true`), occurredAt)
	require.NoError(t, err)

	deletePatch, err := BuildStorablePatch("room", statetree.OpDelete, "todos.0", nil, occurredAt)
	require.NoError(t, err)

	assert.Equal(t, "room", setPatch.RoomID)
	assert.Equal(t, statetree.OpSet, setPatch.Op)
	assert.Equal(t, "todos.0.done", setPatch.Path)
	assert.Equal(t, []byte(`true`), setPatch.ValueJSON)
	assert.Equal(t, occurredAt, setPatch.OccurredAt)
	assert.Equal(t, uint(0), setPatch.SequenceNumber)
	assert.Equal(t, []byte(`null`), deletePatch.ValueJSON)
	assert.NotEqual(t, setPatch.PatchID, deletePatch.PatchID)
	assert.Equal(t, 7, int(setPatch.PatchID.Version()))
}

func Test_ValidateAppend(t *testing.T) {
	patch, err := BuildStorablePatch("room", statetree.OpSet, "title", []byte(`"x"`), time.Now())
	require.NoError(t, err)
	foreign, err := BuildStorablePatch("other", statetree.OpSet, "title", []byte(`"y"`), time.Now())
	require.NoError(t, err)

	all, err := ValidateAppend("room", patch, patch)
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = ValidateAppend("", patch)
	assert.ErrorIs(t, err, ErrEmptyRoomID)

	_, err = ValidateAppend("room", patch, foreign)
	assert.ErrorIs(t, err, ErrRoomMismatch)
}

func Test_BuildSnapshot(t *testing.T) {
	snapshot, err := BuildSnapshot("room", 3, []byte(`{"title":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, uint(3), snapshot.SequenceNumber)
	assert.False(t, snapshot.CreatedAt.IsZero())

	_, err = BuildSnapshot("", 3, []byte(`{}`))
	assert.ErrorIs(t, err, ErrEmptyRoomID)

	_, err = BuildSnapshot("room", 3, []byte(`{`))
	assert.ErrorIs(t, err, ErrInvalidSnapshotJSON)
}

func Test_GetConsistencyLevel(t *testing.T) {
	ctx := t.Context()

	assert.Equal(t, StrongConsistency, GetConsistencyLevel(ctx))
	assert.Equal(t, EventualConsistency, GetConsistencyLevel(WithEventualConsistency(ctx)))
	assert.Equal(t, StrongConsistency, GetConsistencyLevel(WithStrongConsistency(WithEventualConsistency(ctx))))
	assert.Equal(t, "eventual", EventualConsistency.String())
}
