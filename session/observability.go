package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AntonStoeckl/live-selectors-go/feed"
)

const (
	logMsgOpened               = "session opened"
	logMsgSnapshotRestored     = "snapshot restored"
	logMsgPatchesSynced        = "patches synced"
	logMsgUpdateCommitted      = "update committed"
	logMsgUpdateRetried        = "update conflicted, retrying after sync"
	logMsgCheckpointSaved      = "checkpoint saved"
	logMsgPollSyncFailed       = "polling sync failed"
	logMsgClosed               = "session closed"
	logAttrRoomID              = "room_id"
	logAttrSequenceNumber      = "sequence_number"
	logAttrPatchCount          = "patch_count"
	logAttrOperationCount      = "operation_count"
	logAttrAttempt             = "attempt"
	logAttrDurationMS          = "duration_ms"
	logAttrError               = "error"
	metricSyncDuration         = "session_sync_duration_seconds"
	metricUpdateRetries        = "session_update_retries_total"
	metricMaxRetriesReached    = "session_update_max_retries_reached_total"
	metricRetryDelay           = "session_update_retry_delay_seconds"
	labelStatus                = "status"
	labelErrorType             = "error_type"
	labelFinalErrorType        = "final_error_type"
	labelAttemptNumber         = "attempt_number"
	statusSuccess              = "success"
	statusError                = "error"
	spanNameSync               = "session.sync"
	spanAttrRoomID             = "room_id"
	spanAttrAfterSequence      = "after_sequence"
	spanAttrPatchCount         = "patch_count"
	spanAttrDurationMS         = "duration_ms"
	durationAttrDecimalsFormat = "%.2f"
)

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// logInfo logs operational information, preferring the contextual logger.
func (s *Session) logInfo(ctx context.Context, msg string, args ...any) {
	args = append([]any{logAttrRoomID, s.roomID}, args...)

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
	} else if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

// logDebug logs details, preferring the contextual logger.
func (s *Session) logDebug(ctx context.Context, msg string, args ...any) {
	args = append([]any{logAttrRoomID, s.roomID}, args...)

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
	} else if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// logError logs failures, preferring the contextual logger.
func (s *Session) logError(ctx context.Context, msg string, err error) {
	args := []any{logAttrRoomID, s.roomID, logAttrError, err.Error()}

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, args...)
	} else if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

func (s *Session) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := s.metricsCollector.(feed.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metric, duration, labels)
	} else {
		s.metricsCollector.RecordDuration(metric, duration, labels)
	}
}

func (s *Session) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := s.metricsCollector.(feed.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
	} else {
		s.metricsCollector.IncrementCounter(metric, labels)
	}
}

func (s *Session) recordSyncDuration(ctx context.Context, duration time.Duration, err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}

	s.recordDuration(ctx, metricSyncDuration, duration, map[string]string{labelStatus: status})
}

// recordRetryDelay records the backoff delay before a retry attempt.
func (s *Session) recordRetryDelay(ctx context.Context, attempt int, delay time.Duration) {
	s.recordDuration(ctx, metricRetryDelay, delay, map[string]string{labelAttemptNumber: attemptLabel(attempt)})
}

// recordRetryAttempt counts a retry that is going to happen.
func (s *Session) recordRetryAttempt(ctx context.Context, attempt int, err error) {
	s.logDebug(ctx, logMsgUpdateRetried, logAttrAttempt, attempt)
	s.incrementCounter(ctx, metricUpdateRetries, map[string]string{
		labelAttemptNumber: attemptLabel(attempt),
		labelErrorType:     getErrorType(err),
	})
}

// recordMaxRetriesReached counts exhausted retries with the final error type.
func (s *Session) recordMaxRetriesReached(ctx context.Context, err error) {
	s.incrementCounter(ctx, metricMaxRetriesReached, map[string]string{labelFinalErrorType: getErrorType(err)})
}

// === Tracing Observer Pattern ===

// syncTracingObserver encapsulates the span lifecycle of a sync.
type syncTracingObserver struct {
	s    *Session
	span feed.SpanContext
}

func (s *Session) startSyncTracing(
	ctx context.Context,
	afterSequence feed.MaxSequenceNumberUint,
) (context.Context, *syncTracingObserver) {

	observer := &syncTracingObserver{s: s}

	if s.tracingCollector == nil {
		return ctx, observer
	}

	newCtx, span := s.tracingCollector.StartSpan(ctx, spanNameSync, map[string]string{
		spanAttrRoomID:        s.roomID,
		spanAttrAfterSequence: fmt.Sprintf("%d", afterSequence),
	})
	observer.span = span

	return newCtx, observer
}

func (o *syncTracingObserver) finish(patchCount int, duration time.Duration, err error) {
	if o.span == nil {
		return
	}

	status := statusSuccess
	if err != nil {
		status = statusError
	}

	o.span.SetStatus(status)
	o.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf(durationAttrDecimalsFormat, toMilliseconds(duration)))

	o.s.tracingCollector.FinishSpan(o.span, status, map[string]string{
		spanAttrPatchCount: fmt.Sprintf("%d", patchCount),
	})
}
