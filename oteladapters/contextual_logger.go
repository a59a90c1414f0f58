package oteladapters

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"

	"github.com/AntonStoeckl/live-selectors-go/feed"
	"github.com/AntonStoeckl/live-selectors-go/selectors"
)

// SlogBridgeLogger implements the ContextualLogger interface on top of a *slog.Logger.
// Built with NewSlogBridgeLogger it writes through the OpenTelemetry slog bridge, so records
// carry the trace and span id of the context they are logged with.
type SlogBridgeLogger struct {
	logger *slog.Logger
}

// NewSlogBridgeLogger creates a logger that emits to the global OpenTelemetry LoggerProvider.
func NewSlogBridgeLogger(name string, options ...otelslog.Option) *SlogBridgeLogger {
	return &SlogBridgeLogger{logger: otelslog.NewLogger(name, options...)}
}

// NewSlogBridgeLoggerWithHandler creates a logger that writes to handler as-is, without OpenTelemetry.
func NewSlogBridgeLoggerWithHandler(handler slog.Handler) *SlogBridgeLogger {
	return &SlogBridgeLogger{logger: slog.New(handler)}
}

// DebugContext logs a debug message with context.
func (l *SlogBridgeLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

// InfoContext logs an info message with context.
func (l *SlogBridgeLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

// WarnContext logs a warning message with context.
func (l *SlogBridgeLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}

// ErrorContext logs an error message with context.
func (l *SlogBridgeLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

// OTelLogger implements the ContextualLogger interface with the OpenTelemetry logs API directly.
// Key/value arguments become record attributes, typed where the OpenTelemetry API has a matching kind.
type OTelLogger struct {
	logger log.Logger
}

// NewOTelLogger creates a logger that emits records to logger.
func NewOTelLogger(logger log.Logger) *OTelLogger {
	return &OTelLogger{logger: logger}
}

// DebugContext logs a debug message with context.
func (l *OTelLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityDebug, msg, args)
}

// InfoContext logs an info message with context.
func (l *OTelLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityInfo, msg, args)
}

// WarnContext logs a warning message with context.
func (l *OTelLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityWarn, msg, args)
}

// ErrorContext logs an error message with context.
func (l *OTelLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, log.SeverityError, msg, args)
}

func (l *OTelLogger) emit(ctx context.Context, severity log.Severity, msg string, args []any) {
	record := log.Record{}
	record.SetSeverity(severity)
	record.SetSeverityText(severityText(severity))
	record.SetBody(log.StringValue(msg))

	// a trailing key without value is dropped, like non-string keys
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}

		record.AddAttributes(log.KeyValue{Key: key, Value: logValue(args[i+1])})
	}

	l.logger.Emit(ctx, record)
}

func severityText(severity log.Severity) string {
	switch severity {
	case log.SeverityDebug:
		return slog.LevelDebug.String()
	case log.SeverityWarn:
		return slog.LevelWarn.String()
	case log.SeverityError:
		return slog.LevelError.String()
	default:
		return slog.LevelInfo.String()
	}
}

func logValue(v any) log.Value {
	switch value := v.(type) {
	case string:
		return log.StringValue(value)
	case int:
		return log.IntValue(value)
	case int64:
		return log.Int64Value(value)
	case uint:
		return log.Int64Value(int64(value)) //nolint:gosec // sequence numbers stay far below MaxInt64
	case float64:
		return log.Float64Value(value)
	case bool:
		return log.BoolValue(value)
	default:
		return log.StringValue(slog.AnyValue(value).String())
	}
}

var (
	_ selectors.ContextualLogger = (*SlogBridgeLogger)(nil)
	_ selectors.ContextualLogger = (*OTelLogger)(nil)
	_ feed.ContextualLogger      = (*SlogBridgeLogger)(nil)
	_ feed.ContextualLogger      = (*OTelLogger)(nil)
)
