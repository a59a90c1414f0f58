package postgresfeed

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/live-selectors-go/feed"
	"github.com/AntonStoeckl/live-selectors-go/feed/postgresfeed/internal/adapters"
	"github.com/AntonStoeckl/live-selectors-go/statetree"
	"github.com/AntonStoeckl/live-selectors-go/testutil/observability/testdoubles"
)

// fakeDB is a scripted adapters.DBAdapter.
type fakeDB struct {
	rows         []queryResultRow
	rowsErr      error
	queryErr     error
	execErr      error
	rowsAffected int64
	queries      []string
	execs        []string
}

func (f *fakeDB) Query(_ context.Context, query string) (adapters.DBRows, error) {
	f.queries = append(f.queries, query)

	if f.queryErr != nil {
		return nil, f.queryErr
	}

	return &fakeRows{rows: f.rows, err: f.rowsErr, pos: -1}, nil
}

func (f *fakeDB) Exec(_ context.Context, query string) (adapters.DBResult, error) {
	f.execs = append(f.execs, query)

	if f.execErr != nil {
		return nil, f.execErr
	}

	return fakeResult(f.rowsAffected), nil
}

type fakeRows struct {
	rows []queryResultRow
	err  error
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos]

	*dest[0].(*feed.MaxSequenceNumberUint) = row.sequenceNumber
	*dest[1].(*string) = row.patchID
	*dest[2].(*string) = row.op
	*dest[3].(*string) = row.path
	*dest[4].(*string) = row.value
	*dest[5].(*time.Time) = row.occurredAt

	return nil
}

func (r *fakeRows) Err() error {
	return r.err
}

func (r *fakeRows) Close() error {
	return nil
}

type fakeResult int64

func (f fakeResult) RowsAffected() (int64, error) {
	return int64(f), nil
}

func givenPatchLog(t *testing.T, db adapters.DBAdapter, options ...Option) *PatchLog {
	pl, err := newPatchLog(db, options...)
	require.NoError(t, err, "error in arranging the patch log")

	return pl
}

func givenPatch(t *testing.T, roomID, path, valueJSON string) feed.StorablePatch {
	patch, err := feed.BuildStorablePatch(roomID, statetree.OpSet, path, []byte(valueJSON), time.Now())
	require.NoError(t, err, "error in arranging test patch")

	return patch
}

func Test_Constructors_RejectNilConnections(t *testing.T) {
	_, pgxErr := NewPatchLogFromPGXPool(nil)
	_, replicaErr := NewPatchLogFromPGXPoolWithReplica(nil, nil)
	_, sqlErr := NewPatchLogFromSQLDB(nil)
	_, sqlxErr := NewPatchLogFromSQLX(nil)

	assert.ErrorIs(t, pgxErr, feed.ErrNilDatabaseConnection)
	assert.ErrorIs(t, replicaErr, feed.ErrNilDatabaseConnection)
	assert.ErrorIs(t, sqlErr, feed.ErrNilDatabaseConnection)
	assert.ErrorIs(t, sqlxErr, feed.ErrNilDatabaseConnection)
}

func Test_Options(t *testing.T) {
	_, emptyPatchTableErr := newPatchLog(&fakeDB{}, WithTableName(""))
	_, emptySnapshotTableErr := newPatchLog(&fakeDB{}, WithSnapshotTableName(""))

	assert.ErrorIs(t, emptyPatchTableErr, feed.ErrEmptyTableNameSupplied)
	assert.ErrorIs(t, emptySnapshotTableErr, feed.ErrEmptyTableNameSupplied)

	pl := givenPatchLog(t, &fakeDB{}, WithTableName("custom_patches"), WithSnapshotTableName("custom_snapshots"))
	assert.Equal(t, "custom_patches", pl.patchTableName)
	assert.Equal(t, "custom_snapshots", pl.snapshotTableName)

	defaults := givenPatchLog(t, &fakeDB{})
	assert.Equal(t, defaultPatchTableName, defaults.patchTableName)
	assert.Equal(t, defaultSnapshotTableName, defaults.snapshotTableName)
}

func Test_BuildSelectQuery(t *testing.T) {
	// setup
	pl := givenPatchLog(t, &fakeDB{})

	// act
	sqlQuery, err := pl.buildSelectQuery("room-1", 5)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `FROM "room_patches"`)
	assert.Contains(t, sqlQuery, `'room-1'`)
	assert.Contains(t, sqlQuery, `"sequence_number" > 5`)
	assert.Contains(t, sqlQuery, `ORDER BY "sequence_number" ASC`)
}

func Test_BuildAppendQuery_GuardsOnExpectedSequence(t *testing.T) {
	// setup
	pl := givenPatchLog(t, &fakeDB{})
	patches := feed.StorablePatches{
		givenPatch(t, "room-1", "todos.0", `{"done":false}`),
		givenPatch(t, "room-1", "todos.1", `{"done":true}`),
	}

	// act
	sqlQuery, err := pl.buildAppendQuery("room-1", patches, 3)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `INSERT INTO "room_patches"`)
	assert.Contains(t, sqlQuery, "WITH")
	assert.Contains(t, sqlQuery, "UNION ALL")
	assert.Contains(t, sqlQuery, "COALESCE")
	assert.Contains(t, sqlQuery, patches[0].PatchID.String())
	assert.Contains(t, sqlQuery, patches[1].PatchID.String())
}

func Test_SchemaStatements_QuoteIdentifiers(t *testing.T) {
	// setup
	pl := givenPatchLog(t, &fakeDB{}, WithTableName("live.patches"), WithSnapshotTableName("live.snapshots"))

	// act
	statements := pl.schemaStatements()

	// assert
	require.Len(t, statements, 4)
	assert.Contains(t, statements[0], `CREATE TABLE IF NOT EXISTS "live"."patches"`)
	assert.Contains(t, statements[1], `"live_patches_append_guard"`)
	assert.Contains(t, statements[1], "(room_id, expected_sequence, batch_position)")
	assert.Contains(t, statements[3], `CREATE TABLE IF NOT EXISTS "live"."snapshots"`)
}

func Test_EnsureSchema_ExecutesAllStatements(t *testing.T) {
	// setup
	db := &fakeDB{}
	pl := givenPatchLog(t, db)

	// act
	err := pl.EnsureSchema(context.Background())

	// assert
	require.NoError(t, err)
	assert.Len(t, db.execs, 4)
}

func Test_EnsureSchema_WrapsFailure(t *testing.T) {
	// setup
	pl := givenPatchLog(t, &fakeDB{execErr: errors.New("permission denied")})

	// act
	err := pl.EnsureSchema(context.Background())

	// assert
	assert.ErrorIs(t, err, feed.ErrCreatingSchemaFailed)
}

func Test_Query_ConvertsRows(t *testing.T) {
	// setup
	patchID := uuid.New()
	occurredAt := time.Unix(1700000000, 0).UTC()
	db := &fakeDB{rows: []queryResultRow{
		{sequenceNumber: 7, patchID: patchID.String(), op: "set", path: "todos.0.done", value: "true", occurredAt: occurredAt},
		{sequenceNumber: 9, patchID: uuid.NewString(), op: "delete", path: "todos.1", value: "null", occurredAt: occurredAt},
	}}
	pl := givenPatchLog(t, db)

	// act
	patches, maxSequence, err := pl.Query(context.Background(), "room-1", 6)

	// assert
	require.NoError(t, err)
	require.Len(t, patches, 2)
	assert.Equal(t, feed.MaxSequenceNumberUint(9), maxSequence)
	assert.Equal(t, patchID, patches[0].PatchID)
	assert.Equal(t, statetree.OpSet, patches[0].Op)
	assert.Equal(t, "todos.0.done", patches[0].Path)
	assert.JSONEq(t, "true", string(patches[0].ValueJSON))
	assert.Equal(t, "room-1", patches[1].RoomID)
	assert.Equal(t, statetree.OpDelete, patches[1].Op)
}

func Test_Query_WithoutNewerPatches_ReturnsAfterSequence(t *testing.T) {
	// setup
	pl := givenPatchLog(t, &fakeDB{})

	// act
	patches, maxSequence, err := pl.Query(context.Background(), "room-1", 42)

	// assert
	require.NoError(t, err)
	assert.Empty(t, patches)
	assert.Equal(t, feed.MaxSequenceNumberUint(42), maxSequence)
}

func Test_Query_ErrorCases(t *testing.T) {
	testCases := []struct {
		name        string
		db          *fakeDB
		roomID      string
		expectedErr error
	}{
		{
			name:        "empty room id",
			db:          &fakeDB{},
			roomID:      "",
			expectedErr: feed.ErrEmptyRoomID,
		},
		{
			name:        "query fails",
			db:          &fakeDB{queryErr: errors.New("connection reset")},
			roomID:      "room-1",
			expectedErr: feed.ErrQueryingPatchesFailed,
		},
		{
			name:        "iteration fails",
			db:          &fakeDB{rowsErr: errors.New("broken pipe")},
			roomID:      "room-1",
			expectedErr: feed.ErrRowsIterationFailed,
		},
		{
			name: "corrupt row",
			db: &fakeDB{rows: []queryResultRow{
				{sequenceNumber: 1, patchID: "not-a-uuid", op: "set", path: "a", value: "1"},
			}},
			roomID:      "room-1",
			expectedErr: feed.ErrBuildingStorablePatchFailed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			pl := givenPatchLog(t, tc.db)

			// act
			_, _, err := pl.Query(context.Background(), tc.roomID, 0)

			// assert
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func Test_Append_ErrorCases(t *testing.T) {
	testCases := []struct {
		name        string
		db          *fakeDB
		expectedErr error
	}{
		{
			name:        "guard produced fewer rows",
			db:          &fakeDB{rowsAffected: 0},
			expectedErr: feed.ErrConcurrencyConflict,
		},
		{
			name:        "lost race on the guard index",
			db:          &fakeDB{execErr: &pgconn.PgError{Code: "23505"}},
			expectedErr: feed.ErrConcurrencyConflict,
		},
		{
			name:        "exec fails",
			db:          &fakeDB{execErr: errors.New("disk full")},
			expectedErr: feed.ErrAppendingPatchFailed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			pl := givenPatchLog(t, tc.db)

			// act
			err := pl.Append(context.Background(), "room-1", 0, givenPatch(t, "room-1", "a", "1"))

			// assert
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func Test_Append_RejectsForeignRoom(t *testing.T) {
	// setup
	db := &fakeDB{rowsAffected: 1}
	pl := givenPatchLog(t, db)

	// act
	err := pl.Append(context.Background(), "room-1", 0, givenPatch(t, "room-2", "a", "1"))

	// assert
	assert.ErrorIs(t, err, feed.ErrRoomMismatch)
	assert.Empty(t, db.execs, "nothing should reach the database")
}

func Test_Append_Conflict_IsObserved(t *testing.T) {
	// setup
	logHandler := testdoubles.NewLogHandlerSpy(false)
	metrics := testdoubles.NewMetricsCollectorSpy(true)
	tracing := testdoubles.NewTracingCollectorSpy(true)
	pl := givenPatchLog(t, &fakeDB{rowsAffected: 0},
		WithLogger(slog.New(logHandler)),
		WithMetrics(metrics),
		WithTracing(tracing),
	)

	// act
	err := pl.Append(context.Background(), "room-1", 4, givenPatch(t, "room-1", "a", "1"))

	// assert
	require.ErrorIs(t, err, feed.ErrConcurrencyConflict)
	assert.True(t, logHandler.HasInfoLog(logMsgOperation+logMsgConcurrencyConflict))
	assert.Equal(t, 1, metrics.CounterCount(metricConcurrencyConflicts))

	spans := tracing.GetSpansByName(spanNameAppend)
	require.Len(t, spans, 1)
	assert.Equal(t, statusError, spans[0].Status)
	assert.Equal(t, errorTypeConcurrencyConflict, spans[0].EndAttributes[spanAttrErrorType])
}

func Test_LoadSnapshot_WithoutRow_ReturnsNil(t *testing.T) {
	// setup
	pl := givenPatchLog(t, &fakeDB{})

	// act
	snapshot, err := pl.LoadSnapshot(context.Background(), "room-1")

	// assert
	assert.NoError(t, err)
	assert.Nil(t, snapshot)
}

func Test_SaveSnapshot_RendersUpsert(t *testing.T) {
	// setup
	db := &fakeDB{rowsAffected: 1}
	metrics := testdoubles.NewMetricsCollectorSpy(true)
	pl := givenPatchLog(t, db, WithMetrics(metrics))
	snapshot, err := feed.BuildSnapshot("room-1", 12, []byte(`{"todos":[]}`))
	require.NoError(t, err)

	// act
	err = pl.SaveSnapshot(context.Background(), snapshot)

	// assert
	require.NoError(t, err)
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0], `INSERT INTO "room_snapshots"`)
	assert.Contains(t, db.execs[0], "ON CONFLICT")
	assert.Contains(t, db.execs[0], "EXCLUDED.data")
	assert.True(t, metrics.HasDurationRecord(metricSnapshotDuration))
	assert.Equal(t, 1, metrics.CounterCount(metricSnapshotOperations))
}
