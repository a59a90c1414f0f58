package postgresfeed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/live-selectors-go/feed"
	"github.com/AntonStoeckl/live-selectors-go/feed/postgresfeed/internal/adapters"
	"github.com/AntonStoeckl/live-selectors-go/statetree"
)

const (
	defaultPatchTableName    = "room_patches"
	defaultSnapshotTableName = "room_snapshots"
	colRoomID                = "room_id"
	colPatchID               = "patch_id"
	colOp                    = "op"
	colPath                  = "path"
	colValue                 = "value"
	colOccurredAt            = "occurred_at"
	colExpectedSequence      = "expected_sequence"
	colBatchPosition         = "batch_position"
	colSequenceNumber        = "sequence_number"
	colData                  = "data"
	colCreatedAt             = "created_at"
	cteContext               = "context"
	cteVals                  = "vals"
	dialectPostgres          = "postgres"
	aliasMaxSeq              = "max_seq"
	castText                 = "?::text"
	castUUID                 = "?::uuid"
	castTimestamp            = "?::timestamp with time zone"
	castJsonb                = "?::jsonb"
	castBigint               = "?::bigint"
	castInteger              = "?::integer"
	typeText                 = "TEXT"
)

type (
	sqlQueryString    = string
	rowsAffectedInt64 = int64
)

// PatchLog is the PostgreSQL-backed patch log. It is safe for concurrent use.
type PatchLog struct {
	db                adapters.DBAdapter
	patchTableName    string
	snapshotTableName string
	logger            feed.Logger
	contextualLogger  feed.ContextualLogger
	metricsCollector  feed.MetricsCollector
	tracingCollector  feed.TracingCollector
}

type queryResultRow struct {
	sequenceNumber feed.MaxSequenceNumberUint
	patchID        string
	op             string
	path           string
	value          string
	occurredAt     time.Time
}

// NewPatchLogFromPGXPool creates a new PatchLog using a pgx Pool with optional configuration.
func NewPatchLogFromPGXPool(db *pgxpool.Pool, options ...Option) (*PatchLog, error) {
	if db == nil {
		return nil, feed.ErrNilDatabaseConnection
	}

	return newPatchLog(adapters.NewPGXAdapter(db), options...)
}

// NewPatchLogFromPGXPoolWithReplica creates a new PatchLog that serves reads carrying
// feed.EventualConsistency from replica and everything else from primary.
func NewPatchLogFromPGXPoolWithReplica(primary *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*PatchLog, error) {
	if primary == nil {
		return nil, feed.ErrNilDatabaseConnection
	}

	if replica == nil {
		return newPatchLog(adapters.NewPGXAdapter(primary), options...)
	}

	return newPatchLog(adapters.NewPGXAdapterWithReplica(primary, replica), options...)
}

// NewPatchLogFromSQLDB creates a new PatchLog using a sql.DB with optional configuration.
func NewPatchLogFromSQLDB(db *sql.DB, options ...Option) (*PatchLog, error) {
	if db == nil {
		return nil, feed.ErrNilDatabaseConnection
	}

	return newPatchLog(adapters.NewSQLAdapter(db), options...)
}

// NewPatchLogFromSQLX creates a new PatchLog using a sqlx.DB with optional configuration.
func NewPatchLogFromSQLX(db *sqlx.DB, options ...Option) (*PatchLog, error) {
	if db == nil {
		return nil, feed.ErrNilDatabaseConnection
	}

	return newPatchLog(adapters.NewSQLXAdapter(db), options...)
}

func newPatchLog(db adapters.DBAdapter, options ...Option) (*PatchLog, error) {
	pl := &PatchLog{
		db:                db,
		patchTableName:    defaultPatchTableName,
		snapshotTableName: defaultSnapshotTableName,
	}

	for _, option := range options {
		if err := option(pl); err != nil {
			return nil, err
		}
	}

	return pl, nil
}

// Query implements feed.PatchLog.
func (pl *PatchLog) Query(ctx context.Context, roomID string, afterSequence feed.MaxSequenceNumberUint) (
	feed.StorablePatches,
	feed.MaxSequenceNumberUint,
	error,
) {

	var empty feed.StorablePatches

	tracer, ctx := pl.startQueryTracing(ctx, roomID, afterSequence)
	metrics := pl.startQueryMetrics(ctx)

	if roomID == "" {
		tracer.finishError(errorTypeValidation, 0)
		return empty, 0, feed.ErrEmptyRoomID
	}

	sqlQuery, buildQueryErr := pl.buildSelectQuery(roomID, afterSequence)
	if buildQueryErr != nil {
		pl.logError(ctx, logMsgBuildSelectQueryFailed, buildQueryErr)
		tracer.finishError(errorTypeBuildQuery, 0)
		metrics.recordError(errorTypeBuildQuery, 0)

		return empty, 0, buildQueryErr
	}

	start := time.Now()

	rows, queryErr := pl.executeQuery(ctx, sqlQuery)
	if queryErr != nil {
		duration := time.Since(start)
		tracer.finishError(errorTypeDatabaseQuery, duration)
		metrics.recordError(errorTypeDatabaseQuery, duration)

		return empty, 0, queryErr
	}
	defer pl.closeRows(ctx, rows)

	patches, maxSequenceNumber, scanErr := pl.processQueryResults(ctx, rows, roomID, afterSequence)
	duration := time.Since(start)

	if scanErr != nil {
		tracer.finishError(errorTypeRowScan, duration)
		metrics.recordError(errorTypeRowScan, duration)

		return empty, 0, scanErr
	}

	pl.logOperation(ctx, logMsgQueryCompleted,
		logAttrRoomID, roomID,
		logAttrPatchCount, len(patches),
		logAttrDurationMS, toMilliseconds(duration),
	)
	tracer.finishSuccess(len(patches), maxSequenceNumber, duration)
	metrics.recordSuccess(len(patches), duration)

	return patches, maxSequenceNumber, nil
}

// executeQuery runs the select and logs it with its duration.
func (pl *PatchLog) executeQuery(ctx context.Context, sqlQuery sqlQueryString) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := pl.db.Query(ctx, sqlQuery)
	pl.logQueryWithDuration(ctx, sqlQuery, logActionQuery, time.Since(start))

	if queryErr != nil {
		pl.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(feed.ErrQueryingPatchesFailed, queryErr)
	}

	return rows, nil
}

// closeRows closes database rows and logs a failure at warn level.
func (pl *PatchLog) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		pl.logWarn(ctx, logMsgCloseRowsFailed, closeErr)
	}
}

// processQueryResults converts the result rows into storable patches.
func (pl *PatchLog) processQueryResults(
	ctx context.Context,
	rows adapters.DBRows,
	roomID string,
	afterSequence feed.MaxSequenceNumberUint,
) (feed.StorablePatches, feed.MaxSequenceNumberUint, error) {

	var empty feed.StorablePatches
	result := queryResultRow{}
	patches := make(feed.StorablePatches, 0)
	maxSequenceNumber := afterSequence

	for rows.Next() {
		rowScanErr := rows.Scan(
			&result.sequenceNumber,
			&result.patchID,
			&result.op,
			&result.path,
			&result.value,
			&result.occurredAt,
		)
		if rowScanErr != nil {
			pl.logError(ctx, logMsgScanRowFailed, rowScanErr)
			return empty, 0, errors.Join(feed.ErrScanningDBRowFailed, rowScanErr)
		}

		patch, buildErr := pl.patchFromRow(roomID, result)
		if buildErr != nil {
			pl.logError(ctx, logMsgBuildStorablePatchFailed, buildErr, logAttrPatchID, result.patchID)
			return empty, 0, errors.Join(feed.ErrBuildingStorablePatchFailed, buildErr)
		}

		patches = append(patches, patch)
		maxSequenceNumber = result.sequenceNumber
	}

	if iterErr := rows.Err(); iterErr != nil {
		pl.logError(ctx, logMsgRowsIterationFailed, iterErr)
		return empty, 0, errors.Join(feed.ErrRowsIterationFailed, iterErr)
	}

	return patches, maxSequenceNumber, nil
}

func (pl *PatchLog) patchFromRow(roomID string, row queryResultRow) (feed.StorablePatch, error) {
	patchID, parseErr := uuid.Parse(row.patchID)
	if parseErr != nil {
		return feed.StorablePatch{}, parseErr
	}

	return feed.RestoreStorablePatch(
		roomID,
		patchID,
		statetree.OpKind(row.op),
		row.path,
		[]byte(row.value),
		row.occurredAt,
		row.sequenceNumber,
	)
}

// Append implements feed.PatchLog.
//
// All patches are written by a single INSERT ... SELECT statement that only produces rows if the
// room's highest sequence number equals expectedMaxSequence.
func (pl *PatchLog) Append(
	ctx context.Context,
	roomID string,
	expectedMaxSequence feed.MaxSequenceNumberUint,
	patch feed.StorablePatch,
	additional ...feed.StorablePatch,
) error {

	allPatches, validateErr := feed.ValidateAppend(roomID, patch, additional...)
	if validateErr != nil {
		return validateErr
	}

	tracer, ctx := pl.startAppendTracing(ctx, roomID, allPatches, expectedMaxSequence)
	metrics := pl.startAppendMetrics(ctx)

	sqlQuery, buildQueryErr := pl.buildAppendQuery(roomID, allPatches, expectedMaxSequence)
	if buildQueryErr != nil {
		pl.logError(ctx, logMsgBuildInsertQueryFailed, buildQueryErr, logAttrPatchCount, len(allPatches))
		tracer.finishError(errorTypeBuildQuery, 0)
		metrics.recordError(errorTypeBuildQuery, 0)

		return buildQueryErr
	}

	start := time.Now()
	rowsAffected, execErr := pl.executeAppendQuery(ctx, sqlQuery)
	duration := time.Since(start)

	if execErr != nil {
		if errors.Is(execErr, feed.ErrConcurrencyConflict) {
			pl.recordConflict(ctx, roomID, len(allPatches), 0, expectedMaxSequence, tracer, metrics)
			return execErr
		}

		tracer.finishError(errorTypeDatabaseExec, duration)
		metrics.recordError(errorTypeDatabaseExec, duration)

		return execErr
	}

	if rowsAffected < int64(len(allPatches)) {
		pl.recordConflict(ctx, roomID, len(allPatches), rowsAffected, expectedMaxSequence, tracer, metrics)
		return feed.ErrConcurrencyConflict
	}

	pl.logOperation(ctx, logMsgPatchesAppended,
		logAttrRoomID, roomID,
		logAttrPatchCount, len(allPatches),
		logAttrDurationMS, toMilliseconds(duration),
	)
	tracer.finishSuccess(rowsAffected, duration)
	metrics.recordSuccess(len(allPatches), duration)

	return nil
}

// executeAppendQuery executes the insert and returns the number of inserted rows.
// A unique violation on the append guard index is a lost race and reported as a concurrency conflict.
func (pl *PatchLog) executeAppendQuery(ctx context.Context, sqlQuery sqlQueryString) (rowsAffectedInt64, error) {
	start := time.Now()
	result, execErr := pl.db.Exec(ctx, sqlQuery)
	pl.logQueryWithDuration(ctx, sqlQuery, logActionAppend, time.Since(start))

	if execErr != nil {
		if adapters.IsUniqueViolation(execErr) {
			return 0, feed.ErrConcurrencyConflict
		}

		pl.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)

		return 0, errors.Join(feed.ErrAppendingPatchFailed, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		pl.logError(ctx, logMsgRowsAffectedFailed, rowsAffectedErr)
		return 0, errors.Join(feed.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return rowsAffected, nil
}

func (pl *PatchLog) recordConflict(
	ctx context.Context,
	roomID string,
	expectedPatches int,
	rowsAffected int64,
	expectedMaxSequence feed.MaxSequenceNumberUint,
	tracer *appendTracingObserver,
	metrics *appendMetricsObserver,
) {

	pl.logOperation(ctx, logMsgConcurrencyConflict,
		logAttrRoomID, roomID,
		logAttrExpectedPatches, expectedPatches,
		logAttrRowsAffected, rowsAffected,
		logAttrExpectedSequence, expectedMaxSequence,
	)
	tracer.finishError(errorTypeConcurrencyConflict, 0)
	metrics.recordConcurrencyConflict()
}

func (pl *PatchLog) buildSelectQuery(roomID string, afterSequence feed.MaxSequenceNumberUint) (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(pl.patchTableName).
		Select(
			colSequenceNumber,
			goqu.Cast(goqu.C(colPatchID), typeText).As(colPatchID),
			colOp,
			colPath,
			goqu.Cast(goqu.C(colValue), typeText).As(colValue),
			colOccurredAt,
		).
		Where(
			goqu.C(colRoomID).Eq(roomID),
			goqu.C(colSequenceNumber).Gt(afterSequence),
		).
		Order(goqu.I(colSequenceNumber).Asc())

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(feed.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (pl *PatchLog) buildAppendQuery(
	roomID string,
	patches feed.StorablePatches,
	expectedMaxSequence feed.MaxSequenceNumberUint,
) (sqlQueryString, error) {

	builder := goqu.Dialect(dialectPostgres)

	cteStmt := builder.
		From(pl.patchTableName).
		Select(goqu.MAX(colSequenceNumber).As(aliasMaxSeq)).
		Where(goqu.C(colRoomID).Eq(roomID))

	valuesStmt := builder.Select(patchValues(patches[0], expectedMaxSequence, 0)...)
	for i := 1; i < len(patches); i++ {
		valuesStmt = valuesStmt.UnionAll(builder.Select(patchValues(patches[i], expectedMaxSequence, i)...))
	}

	cols := []string{
		colRoomID, colPatchID, colOp, colPath, colValue, colOccurredAt, colExpectedSequence, colBatchPosition,
	}
	valsCols := make([]any, len(cols))
	insertCols := make([]any, len(cols))

	for i, col := range cols {
		valsCols[i] = fmt.Sprintf("%s.%s", cteVals, col)
		insertCols[i] = col
	}

	insertStmt := builder.
		Insert(pl.patchTableName).
		Cols(insertCols...).
		With(cteContext, cteStmt).
		With(cteVals, valuesStmt).
		FromQuery(
			builder.From(cteContext, cteVals).
				Select(valsCols...).
				Where(goqu.COALESCE(goqu.C(aliasMaxSeq), 0).Eq(goqu.V(expectedMaxSequence))),
		)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(feed.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// patchValues renders one patch as the typed select list of the vals CTE.
func patchValues(patch feed.StorablePatch, expectedMaxSequence feed.MaxSequenceNumberUint, position int) []any {
	return []any{
		goqu.L(castText, patch.RoomID).As(colRoomID),
		goqu.L(castUUID, patch.PatchID.String()).As(colPatchID),
		goqu.L(castText, string(patch.Op)).As(colOp),
		goqu.L(castText, patch.Path).As(colPath),
		goqu.L(castJsonb, string(patch.ValueJSON)).As(colValue),
		goqu.L(castTimestamp, patch.OccurredAt).As(colOccurredAt),
		goqu.L(castBigint, expectedMaxSequence).As(colExpectedSequence),
		goqu.L(castInteger, position).As(colBatchPosition),
	}
}

var (
	_ feed.PatchLog      = (*PatchLog)(nil)
	_ feed.SnapshotStore = (*PatchLog)(nil)
)
