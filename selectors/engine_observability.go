package selectors

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	logMsgEngineCreated           = "selector engine created"
	logMsgEngineClosed            = "selector engine closed"
	logMsgPassCompleted           = "notification pass completed"
	logMsgSnapshotQueued          = "snapshot queued behind running pass"
	logMsgEvaluationFailed        = "subscription evaluation failed"
	logMsgInitialEvaluationFailed = "initial subscription evaluation failed"
	logMsgCallbackPanicked        = "subscription callback panicked"
	logAttrError                  = "error"
	logAttrEngine                 = "engine"
	logAttrEvaluated              = "evaluated"
	logAttrNotified               = "notified"
	logAttrDurationMS             = "duration_ms"

	metricPassDuration         = "selectors_pass_duration_seconds"
	metricRegistrationsEval    = "selectors_registrations_evaluated"
	metricNotifications        = "selectors_notifications_per_pass"
	metricEvaluationErrors     = "selectors_evaluation_errors_total"
	metricCallbackPanics       = "selectors_callback_panics_total"
	metricSubscriptionsActive  = "selectors_subscriptions_active"
	labelEngine                = "engine"
	labelStatus                = "status"
	statusSuccess              = "success"
	statusError                = "error"
	spanNamePass               = "selectors.pass"
	spanAttrRegistrations      = "registrations"
	spanAttrEvaluated          = "evaluated"
	spanAttrNotified           = "notified"
	spanAttrErrorCount         = "error_count"
	spanAttrDurationMS         = "duration_ms"
	defaultEngineName          = "default"
	durationAttrDecimalsFormat = "%.2f"
)

// engineName returns the configured name or a default for labeling.
func (s *settings) engineName() string {
	if s.name == "" {
		return defaultEngineName
	}

	return s.name
}

// logDebug logs at debug level, preferring the contextual logger.
func (s *settings) logDebug(ctx context.Context, msg string, args ...any) {
	args = append([]any{logAttrEngine, s.engineName()}, args...)

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
	} else if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// logInfo logs at info level, preferring the contextual logger.
func (s *settings) logInfo(ctx context.Context, msg string, args ...any) {
	args = append([]any{logAttrEngine, s.engineName()}, args...)

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
	} else if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

// logWarn logs a recovered failure at warn level, preferring the contextual logger.
func (s *settings) logWarn(ctx context.Context, msg string, err error) {
	args := []any{logAttrEngine, s.engineName(), logAttrError, err.Error()}

	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, args...)
	} else if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

// logError logs a failure at error level, preferring the contextual logger.
func (s *settings) logError(ctx context.Context, msg string, err error) {
	args := []any{logAttrEngine, s.engineName(), logAttrError, err.Error()}

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, args...)
	} else if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// recordPassMetrics records all metrics of one notification pass if a collector is configured.
func (s *settings) recordPassMetrics(
	ctx context.Context,
	duration time.Duration,
	evaluated, notified, evaluationErrors, callbackPanics, active int,
) {
	if s.metricsCollector == nil {
		return
	}

	status := statusSuccess
	if evaluationErrors > 0 || callbackPanics > 0 {
		status = statusError
	}

	labels := map[string]string{labelEngine: s.engineName(), labelStatus: status}
	plain := map[string]string{labelEngine: s.engineName()}

	s.recordDuration(ctx, metricPassDuration, duration, labels)
	s.recordValue(ctx, metricRegistrationsEval, float64(evaluated), plain)
	s.recordValue(ctx, metricSubscriptionsActive, float64(active), plain)

	s.recordValue(ctx, metricNotifications, float64(notified), plain)

	for i := 0; i < evaluationErrors; i++ {
		s.incrementCounter(ctx, metricEvaluationErrors, plain)
	}

	for i := 0; i < callbackPanics; i++ {
		s.incrementCounter(ctx, metricCallbackPanics, plain)
	}
}

func (s *settings) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if contextualCollector, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metric, duration, labels)
	} else {
		s.metricsCollector.RecordDuration(metric, duration, labels)
	}
}

func (s *settings) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if contextualCollector, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, value, labels)
	} else {
		s.metricsCollector.RecordValue(metric, value, labels)
	}
}

func (s *settings) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if contextualCollector, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
	} else {
		s.metricsCollector.IncrementCounter(metric, labels)
	}
}

// === Tracing Observer Pattern ===

// passTracingObserver encapsulates the tracing span lifecycle of one notification pass.
type passTracingObserver struct {
	s    *settings
	span SpanContext
}

// startPassTracing starts a pass span if a tracing collector is configured.
func (s *settings) startPassTracing(ctx context.Context, registrations int) (context.Context, *passTracingObserver) {
	observer := &passTracingObserver{s: s}

	if s.tracingCollector == nil {
		return ctx, observer
	}

	newCtx, span := s.tracingCollector.StartSpan(ctx, spanNamePass, map[string]string{
		labelEngine:           s.engineName(),
		spanAttrRegistrations: fmt.Sprintf("%d", registrations),
	})
	observer.span = span

	return newCtx, observer
}

// finishSuccess completes the pass span for a pass without failures.
func (o *passTracingObserver) finishSuccess(evaluated, notified int, duration time.Duration) {
	if o.span == nil {
		return
	}

	o.span.SetStatus(statusSuccess)
	o.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf(durationAttrDecimalsFormat, toMilliseconds(duration)))

	o.s.tracingCollector.FinishSpan(o.span, statusSuccess, map[string]string{
		spanAttrEvaluated: fmt.Sprintf("%d", evaluated),
		spanAttrNotified:  fmt.Sprintf("%d", notified),
	})
}

// finishError completes the pass span for a pass with selector, comparison, or callback failures.
func (o *passTracingObserver) finishError(evaluated, notified, errorCount int, duration time.Duration) {
	if o.span == nil {
		return
	}

	o.span.SetStatus(statusError)
	o.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf(durationAttrDecimalsFormat, toMilliseconds(duration)))

	o.s.tracingCollector.FinishSpan(o.span, statusError, map[string]string{
		spanAttrEvaluated:  fmt.Sprintf("%d", evaluated),
		spanAttrNotified:   fmt.Sprintf("%d", notified),
		spanAttrErrorCount: fmt.Sprintf("%d", errorCount),
	})
}
