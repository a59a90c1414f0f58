package postgresfeed

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/AntonStoeckl/live-selectors-go/feed"
)

const excludedPrefix = "EXCLUDED."

// SaveSnapshot implements feed.SnapshotStore. It inserts the snapshot or replaces the room's existing one.
func (pl *PatchLog) SaveSnapshot(ctx context.Context, snapshot feed.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(pl.snapshotTableName).
		Rows(goqu.Record{
			colRoomID:         snapshot.RoomID,
			colSequenceNumber: snapshot.SequenceNumber,
			colData:           goqu.L(castJsonb, string(snapshot.Data)),
			colCreatedAt:      snapshot.CreatedAt,
		}).
		OnConflict(goqu.DoUpdate(colRoomID, goqu.Record{
			colSequenceNumber: goqu.L(excludedPrefix + colSequenceNumber),
			colData:           goqu.L(excludedPrefix + colData),
			colCreatedAt:      goqu.L(excludedPrefix + colCreatedAt),
		}))

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		pl.logError(ctx, logMsgBuildSnapshotQueryFailed, toSQLErr, logAttrRoomID, snapshot.RoomID)
		return errors.Join(feed.ErrSavingSnapshotFailed, feed.ErrBuildingQueryFailed, toSQLErr)
	}

	start := time.Now()
	_, execErr := pl.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	pl.logQueryWithDuration(ctx, sqlQuery, logActionSnapshotSave, duration)
	pl.recordSnapshotMetrics(ctx, operationSnapshotSave, duration, execErr)

	if execErr != nil {
		pl.logError(ctx, logMsgSnapshotDBFailed, execErr, logAttrRoomID, snapshot.RoomID)
		return errors.Join(feed.ErrSavingSnapshotFailed, execErr)
	}

	pl.logOperation(ctx, logMsgSnapshotSaved,
		logAttrRoomID, snapshot.RoomID,
		logAttrSequenceNumber, snapshot.SequenceNumber,
		logAttrDurationMS, toMilliseconds(duration),
	)

	return nil
}

// LoadSnapshot implements feed.SnapshotStore. It returns nil and no error when the room has no snapshot.
func (pl *PatchLog) LoadSnapshot(ctx context.Context, roomID string) (*feed.Snapshot, error) {
	if roomID == "" {
		return nil, feed.ErrEmptyRoomID
	}

	selectStmt := goqu.Dialect(dialectPostgres).
		From(pl.snapshotTableName).
		Select(colSequenceNumber, goqu.Cast(goqu.C(colData), typeText).As(colData), colCreatedAt).
		Where(goqu.C(colRoomID).Eq(roomID))

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		pl.logError(ctx, logMsgBuildSnapshotQueryFailed, toSQLErr, logAttrRoomID, roomID)
		return nil, errors.Join(feed.ErrLoadingSnapshotFailed, feed.ErrBuildingQueryFailed, toSQLErr)
	}

	start := time.Now()
	snapshot, loadErr := pl.querySnapshot(ctx, sqlQuery, roomID)
	duration := time.Since(start)
	pl.logQueryWithDuration(ctx, sqlQuery, logActionSnapshotLoad, duration)
	pl.recordSnapshotMetrics(ctx, operationSnapshotLoad, duration, loadErr)

	if loadErr != nil {
		pl.logError(ctx, logMsgSnapshotDBFailed, loadErr, logAttrRoomID, roomID)
		return nil, errors.Join(feed.ErrLoadingSnapshotFailed, loadErr)
	}

	pl.logOperation(ctx, logMsgSnapshotLoaded,
		logAttrRoomID, roomID,
		logAttrFound, snapshot != nil,
		logAttrDurationMS, toMilliseconds(duration),
	)

	return snapshot, nil
}

func (pl *PatchLog) querySnapshot(ctx context.Context, sqlQuery, roomID string) (*feed.Snapshot, error) {
	rows, queryErr := pl.db.Query(ctx, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer pl.closeRows(ctx, rows)

	if !rows.Next() {
		return nil, rows.Err()
	}

	snapshot := feed.Snapshot{RoomID: roomID}
	var data string

	if scanErr := rows.Scan(&snapshot.SequenceNumber, &data, &snapshot.CreatedAt); scanErr != nil {
		return nil, errors.Join(feed.ErrScanningDBRowFailed, scanErr)
	}

	snapshot.Data = []byte(data)

	return &snapshot, nil
}

// DeleteSnapshot implements feed.SnapshotStore. Deleting a missing snapshot is not an error.
func (pl *PatchLog) DeleteSnapshot(ctx context.Context, roomID string) error {
	if roomID == "" {
		return feed.ErrEmptyRoomID
	}

	deleteStmt := goqu.Dialect(dialectPostgres).
		Delete(pl.snapshotTableName).
		Where(goqu.C(colRoomID).Eq(roomID))

	sqlQuery, _, toSQLErr := deleteStmt.ToSQL()
	if toSQLErr != nil {
		pl.logError(ctx, logMsgBuildSnapshotQueryFailed, toSQLErr, logAttrRoomID, roomID)
		return errors.Join(feed.ErrDeletingSnapshotFailed, feed.ErrBuildingQueryFailed, toSQLErr)
	}

	start := time.Now()
	_, execErr := pl.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	pl.logQueryWithDuration(ctx, sqlQuery, logActionSnapshotDelete, duration)
	pl.recordSnapshotMetrics(ctx, operationSnapshotDelete, duration, execErr)

	if execErr != nil {
		pl.logError(ctx, logMsgSnapshotDBFailed, execErr, logAttrRoomID, roomID)
		return errors.Join(feed.ErrDeletingSnapshotFailed, execErr)
	}

	pl.logOperation(ctx, logMsgSnapshotDeleted, logAttrRoomID, roomID, logAttrDurationMS, toMilliseconds(duration))

	return nil
}
