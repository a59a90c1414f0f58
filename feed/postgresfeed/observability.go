package postgresfeed

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AntonStoeckl/live-selectors-go/feed"
)

const (
	logMsgBuildSelectQueryFailed   = "failed to build select query"
	logMsgBuildInsertQueryFailed   = "failed to build insert query"
	logMsgBuildSnapshotQueryFailed = "failed to build snapshot query"
	logMsgDBQueryFailed            = "database query execution failed"
	logMsgDBExecFailed             = "database execution failed during patch append"
	logMsgSnapshotDBFailed         = "database operation failed for snapshot"
	logMsgCloseRowsFailed          = "failed to close database rows"
	logMsgScanRowFailed            = "failed to scan database row"
	logMsgRowsIterationFailed      = "failed to iterate database rows"
	logMsgBuildStorablePatchFailed = "failed to build storable patch from database row"
	logMsgRowsAffectedFailed       = "failed to get rows affected count"
	logMsgSchemaFailed             = "failed to create schema"
	logMsgQueryCompleted           = "query completed"
	logMsgPatchesAppended          = "patches appended"
	logMsgConcurrencyConflict      = "concurrency conflict detected"
	logMsgSnapshotSaved            = "snapshot saved"
	logMsgSnapshotLoaded           = "snapshot loaded"
	logMsgSnapshotDeleted          = "snapshot deleted"
	logMsgSchemaEnsured            = "schema ensured"
	logMsgSQLExecuted              = "executed sql for: "
	logMsgOperation                = "livefeed operation: "
	logAttrError                   = "error"
	logAttrQuery                   = "query"
	logAttrRoomID                  = "room_id"
	logAttrPatchID                 = "patch_id"
	logAttrPatchCount              = "patch_count"
	logAttrDurationMS              = "duration_ms"
	logAttrExpectedPatches         = "expected_patches"
	logAttrRowsAffected            = "rows_affected"
	logAttrExpectedSequence        = "expected_sequence"
	logAttrSequenceNumber          = "sequence_number"
	logAttrFound                   = "found"
	logActionQuery                 = "query"
	logActionAppend                = "append"
	logActionSnapshotSave          = "snapshot_save"
	logActionSnapshotLoad          = "snapshot_load"
	logActionSnapshotDelete        = "snapshot_delete"
	logActionSchema                = "schema"

	metricQueryDuration          = "livefeed_query_duration_seconds"
	metricAppendDuration         = "livefeed_append_duration_seconds"
	metricPatchesQueried         = "livefeed_patches_queried"
	metricPatchesAppended        = "livefeed_patches_appended"
	metricDatabaseErrors         = "livefeed_database_errors_total"
	metricConcurrencyConflicts   = "livefeed_concurrency_conflicts_total"
	metricSnapshotDuration       = "livefeed_snapshot_duration_seconds"
	metricSnapshotOperations     = "livefeed_snapshot_operations_total"
	spanNameQuery                = "livefeed.query"
	spanNameAppend               = "livefeed.append"
	spanAttrOperation            = "operation"
	spanAttrRoomID               = "room_id"
	spanAttrPatchCount           = "patch_count"
	spanAttrAfterSequence        = "after_sequence"
	spanAttrMaxSequence          = "max_sequence"
	spanAttrExpectedSeq          = "expected_sequence"
	spanAttrRowsAffected         = "rows_affected"
	spanAttrErrorType            = "error_type"
	spanAttrDurationMS           = "duration_ms"
	labelStatus                  = "status"
	labelErrorType               = "error_type"
	labelConflictType            = "conflict_type"
	conflictTypeConcurrency      = "concurrency"
	operationQuery               = "query"
	operationAppend              = "append"
	operationSnapshotSave        = "snapshot_save"
	operationSnapshotLoad        = "snapshot_load"
	operationSnapshotDelete      = "snapshot_delete"
	statusSuccess                = "success"
	statusError                  = "error"
	errorTypeValidation          = "validation"
	errorTypeBuildQuery          = "build_query"
	errorTypeDatabaseQuery       = "database_query"
	errorTypeDatabaseExec        = "database_exec"
	errorTypeRowScan             = "row_scan"
	errorTypeConcurrencyConflict = "concurrency_conflict"
	durationAttrDecimalsFormat   = "%.2f"
)

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (pl *PatchLog) logQueryWithDuration(ctx context.Context, sqlQuery, action string, duration time.Duration) {
	args := []any{logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery}

	if pl.contextualLogger != nil {
		pl.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, args...)
	} else if pl.logger != nil {
		pl.logger.Debug(logMsgSQLExecuted+action, args...)
	}
}

// logOperation logs operational information at info level.
func (pl *PatchLog) logOperation(ctx context.Context, action string, args ...any) {
	if pl.contextualLogger != nil {
		pl.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	} else if pl.logger != nil {
		pl.logger.Info(logMsgOperation+action, args...)
	}
}

// logWarn logs non-critical failures at warn level.
func (pl *PatchLog) logWarn(ctx context.Context, message string, err error) {
	if pl.contextualLogger != nil {
		pl.contextualLogger.WarnContext(ctx, message, logAttrError, err.Error())
	} else if pl.logger != nil {
		pl.logger.Warn(message, logAttrError, err.Error())
	}
}

// logError logs failures at error level.
func (pl *PatchLog) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if pl.contextualLogger != nil {
		pl.contextualLogger.ErrorContext(ctx, message, allArgs...)
	} else if pl.logger != nil {
		pl.logger.Error(message, allArgs...)
	}
}

func (pl *PatchLog) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if pl.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := pl.metricsCollector.(feed.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metric, duration, labels)
	} else {
		pl.metricsCollector.RecordDuration(metric, duration, labels)
	}
}

func (pl *PatchLog) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if pl.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := pl.metricsCollector.(feed.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, value, labels)
	} else {
		pl.metricsCollector.RecordValue(metric, value, labels)
	}
}

func (pl *PatchLog) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if pl.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := pl.metricsCollector.(feed.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
	} else {
		pl.metricsCollector.IncrementCounter(metric, labels)
	}
}

// recordSnapshotMetrics records the duration and outcome of a snapshot operation.
func (pl *PatchLog) recordSnapshotMetrics(ctx context.Context, operation string, duration time.Duration, err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}

	labels := map[string]string{spanAttrOperation: operation, labelStatus: status}

	pl.recordDuration(ctx, metricSnapshotDuration, duration, labels)
	pl.incrementCounter(ctx, metricSnapshotOperations, labels)

	if err != nil {
		pl.incrementCounter(ctx, metricDatabaseErrors, map[string]string{
			spanAttrOperation: operation,
			labelErrorType:    errorTypeDatabaseExec,
		})
	}
}

// === Tracing Observer Pattern ===

// queryTracingObserver encapsulates the span lifecycle of a query.
type queryTracingObserver struct {
	pl   *PatchLog
	span feed.SpanContext
}

// appendTracingObserver encapsulates the span lifecycle of an append.
type appendTracingObserver struct {
	pl   *PatchLog
	span feed.SpanContext
}

func (pl *PatchLog) startSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, feed.SpanContext) {
	if pl.tracingCollector == nil {
		return ctx, nil
	}

	return pl.tracingCollector.StartSpan(ctx, name, attrs)
}

// startQueryTracing creates a tracing observer for a query.
func (pl *PatchLog) startQueryTracing(
	ctx context.Context,
	roomID string,
	afterSequence feed.MaxSequenceNumberUint,
) (*queryTracingObserver, context.Context) {

	newCtx, span := pl.startSpan(ctx, spanNameQuery, map[string]string{
		spanAttrOperation:     operationQuery,
		spanAttrRoomID:        roomID,
		spanAttrAfterSequence: fmt.Sprintf("%d", afterSequence),
	})

	return &queryTracingObserver{pl: pl, span: span}, newCtx
}

// startAppendTracing creates a tracing observer for an append.
func (pl *PatchLog) startAppendTracing(
	ctx context.Context,
	roomID string,
	patches feed.StorablePatches,
	expectedMaxSequence feed.MaxSequenceNumberUint,
) (*appendTracingObserver, context.Context) {

	newCtx, span := pl.startSpan(ctx, spanNameAppend, map[string]string{
		spanAttrOperation:   operationAppend,
		spanAttrRoomID:      roomID,
		spanAttrPatchCount:  fmt.Sprintf("%d", len(patches)),
		spanAttrExpectedSeq: fmt.Sprintf("%d", expectedMaxSequence),
	})

	return &appendTracingObserver{pl: pl, span: span}, newCtx
}

func (qto *queryTracingObserver) finishSuccess(patchCount int, maxSequence feed.MaxSequenceNumberUint, duration time.Duration) {
	if qto.span == nil {
		return
	}

	qto.span.SetStatus(statusSuccess)
	qto.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf(durationAttrDecimalsFormat, toMilliseconds(duration)))

	qto.pl.tracingCollector.FinishSpan(qto.span, statusSuccess, map[string]string{
		spanAttrPatchCount:  fmt.Sprintf("%d", patchCount),
		spanAttrMaxSequence: fmt.Sprintf("%d", maxSequence),
	})
}

func (qto *queryTracingObserver) finishError(errorType string, duration time.Duration) {
	if qto.span == nil {
		return
	}

	qto.span.SetStatus(statusError)
	qto.span.AddAttribute(spanAttrErrorType, errorType)

	if duration > 0 {
		qto.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf(durationAttrDecimalsFormat, toMilliseconds(duration)))
	}

	qto.pl.tracingCollector.FinishSpan(qto.span, statusError, map[string]string{spanAttrErrorType: errorType})
}

func (ato *appendTracingObserver) finishSuccess(rowsAffected int64, duration time.Duration) {
	if ato.span == nil {
		return
	}

	ato.span.SetStatus(statusSuccess)
	ato.span.AddAttribute(spanAttrRowsAffected, fmt.Sprintf("%d", rowsAffected))
	ato.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf(durationAttrDecimalsFormat, toMilliseconds(duration)))

	ato.pl.tracingCollector.FinishSpan(ato.span, statusSuccess, map[string]string{
		spanAttrRowsAffected: fmt.Sprintf("%d", rowsAffected),
	})
}

func (ato *appendTracingObserver) finishError(errorType string, duration time.Duration) {
	if ato.span == nil {
		return
	}

	ato.span.SetStatus(statusError)
	ato.span.AddAttribute(spanAttrErrorType, errorType)

	attrs := map[string]string{spanAttrErrorType: errorType}
	if duration > 0 {
		attrs[spanAttrDurationMS] = fmt.Sprintf(durationAttrDecimalsFormat, toMilliseconds(duration))
	}

	ato.pl.tracingCollector.FinishSpan(ato.span, statusError, attrs)
}

// === Metrics Observer Pattern ===

// queryMetricsObserver encapsulates the metrics of a query.
type queryMetricsObserver struct {
	pl  *PatchLog
	ctx context.Context
}

// appendMetricsObserver encapsulates the metrics of an append.
type appendMetricsObserver struct {
	pl  *PatchLog
	ctx context.Context
}

func (pl *PatchLog) startQueryMetrics(ctx context.Context) *queryMetricsObserver {
	return &queryMetricsObserver{pl: pl, ctx: ctx}
}

func (pl *PatchLog) startAppendMetrics(ctx context.Context) *appendMetricsObserver {
	return &appendMetricsObserver{pl: pl, ctx: ctx}
}

func (qmo *queryMetricsObserver) recordSuccess(patchCount int, duration time.Duration) {
	labels := map[string]string{spanAttrOperation: operationQuery, labelStatus: statusSuccess}

	qmo.pl.recordDuration(qmo.ctx, metricQueryDuration, duration, labels)
	qmo.pl.recordValue(qmo.ctx, metricPatchesQueried, float64(patchCount), labels)
}

func (qmo *queryMetricsObserver) recordError(errorType string, duration time.Duration) {
	qmo.pl.recordDuration(qmo.ctx, metricQueryDuration, duration, map[string]string{
		spanAttrOperation: operationQuery,
		labelStatus:       statusError,
	})
	qmo.pl.incrementCounter(qmo.ctx, metricDatabaseErrors, map[string]string{
		spanAttrOperation: operationQuery,
		labelErrorType:    errorType,
	})
}

func (amo *appendMetricsObserver) recordSuccess(patchCount int, duration time.Duration) {
	labels := map[string]string{spanAttrOperation: operationAppend, labelStatus: statusSuccess}

	amo.pl.recordDuration(amo.ctx, metricAppendDuration, duration, labels)
	amo.pl.recordValue(amo.ctx, metricPatchesAppended, float64(patchCount), labels)
}

func (amo *appendMetricsObserver) recordError(errorType string, duration time.Duration) {
	amo.pl.recordDuration(amo.ctx, metricAppendDuration, duration, map[string]string{
		spanAttrOperation: operationAppend,
		labelStatus:       statusError,
	})
	amo.pl.incrementCounter(amo.ctx, metricDatabaseErrors, map[string]string{
		spanAttrOperation: operationAppend,
		labelErrorType:    errorType,
	})
}

func (amo *appendMetricsObserver) recordConcurrencyConflict() {
	amo.pl.incrementCounter(amo.ctx, metricConcurrencyConflicts, map[string]string{
		spanAttrOperation: operationAppend,
		labelConflictType: conflictTypeConcurrency,
	})
}
