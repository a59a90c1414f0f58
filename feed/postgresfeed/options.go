package postgresfeed

import (
	"github.com/AntonStoeckl/live-selectors-go/feed"
)

// Option defines a functional option for configuring a PatchLog.
type Option func(*PatchLog) error

// WithTableName sets the patch table name.
func WithTableName(tableName string) Option {
	return func(pl *PatchLog) error {
		if tableName == "" {
			return feed.ErrEmptyTableNameSupplied
		}

		pl.patchTableName = tableName

		return nil
	}
}

// WithSnapshotTableName sets the snapshot table name.
func WithSnapshotTableName(tableName string) Option {
	return func(pl *PatchLog) error {
		if tableName == "" {
			return feed.ErrEmptyTableNameSupplied
		}

		pl.snapshotTableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the PatchLog.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: Patch counts, durations, concurrency conflicts (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger feed.Logger) Option {
	return func(pl *PatchLog) error {
		pl.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the PatchLog.
// It is preferred over the plain logger and receives the span context for trace correlation.
func WithContextualLogger(logger feed.ContextualLogger) Option {
	return func(pl *PatchLog) error {
		pl.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the PatchLog.
// It receives query/append durations, patch counts, concurrency conflicts, and database errors.
func WithMetrics(collector feed.MetricsCollector) Option {
	return func(pl *PatchLog) error {
		pl.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the PatchLog. Query and append get spans.
func WithTracing(collector feed.TracingCollector) Option {
	return func(pl *PatchLog) error {
		pl.tracingCollector = collector
		return nil
	}
}
