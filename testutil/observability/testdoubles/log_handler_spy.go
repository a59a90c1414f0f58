package testdoubles

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// LogHandlerSpy is a slog.Handler implementation that captures log records for testing.
type LogHandlerSpy struct {
	records     []slog.Record
	mu          sync.Mutex
	logToStdout bool
}

// NewLogHandlerSpy creates a new LogHandlerSpy.
// Switchable to log to stdout, which helps when debugging a test.
func NewLogHandlerSpy(logToStdout bool) *LogHandlerSpy {
	return &LogHandlerSpy{
		records:     make([]slog.Record, 0),
		logToStdout: logToStdout,
	}
}

// Handle implements slog.Handler.
func (s *LogHandlerSpy) Handle(ctx context.Context, record slog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)

	if s.logToStdout {
		_ = slog.NewJSONHandler(os.Stdout, nil).Handle(ctx, record)
	}

	return nil
}

// Enabled implements slog.Handler.
func (s *LogHandlerSpy) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

// WithAttrs implements slog.Handler.
func (s *LogHandlerSpy) WithAttrs(_ []slog.Attr) slog.Handler {
	return s
}

// WithGroup implements slog.Handler.
func (s *LogHandlerSpy) WithGroup(_ string) slog.Handler {
	return s
}

// GetRecordCount returns the number of captured log records.
func (s *LogHandlerSpy) GetRecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// Reset clears all captured log records.
func (s *LogHandlerSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = s.records[:0]
}

// HasDebugLog checks if there's a debug-level record with the given message.
func (s *LogHandlerSpy) HasDebugLog(message string) bool {
	return s.HasLogWithMessage(slog.LevelDebug, message).Assert()
}

// HasInfoLog checks if there's an info-level record with the given message.
func (s *LogHandlerSpy) HasInfoLog(message string) bool {
	return s.HasLogWithMessage(slog.LevelInfo, message).Assert()
}

// HasWarnLog checks if there's a warn-level record with the given message.
func (s *LogHandlerSpy) HasWarnLog(message string) bool {
	return s.HasLogWithMessage(slog.LevelWarn, message).Assert()
}

// HasErrorLog checks if there's an error-level record with the given message.
func (s *LogHandlerSpy) HasErrorLog(message string) bool {
	return s.HasLogWithMessage(slog.LevelError, message).Assert()
}

// SpyLogRecordMatcher provides a fluent interface for checking log record attributes.
type SpyLogRecordMatcher struct {
	record *slog.Record
	found  bool
}

// HasLogWithMessage starts a fluent chain on the first record with the given level and message.
func (s *LogHandlerSpy) HasLogWithMessage(level slog.Level, message string) *SpyLogRecordMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].Level == level && s.records[i].Message == message {
			record := s.records[i]
			return &SpyLogRecordMatcher{record: &record, found: true}
		}
	}

	return &SpyLogRecordMatcher{found: false}
}

// WithAttr checks that the record carries an attribute with the given key.
func (m *SpyLogRecordMatcher) WithAttr(key string) *SpyLogRecordMatcher {
	if !m.found {
		return m
	}

	m.found = false
	m.record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key {
			m.found = true
			return false
		}

		return true
	})

	return m
}

// WithDurationMS checks that the record has a non-negative duration_ms attribute.
func (m *SpyLogRecordMatcher) WithDurationMS() *SpyLogRecordMatcher {
	if !m.found {
		return m
	}

	m.found = false
	m.record.Attrs(func(attr slog.Attr) bool {
		if attr.Key != "duration_ms" {
			return true
		}

		switch attr.Value.Kind() {
		case slog.KindInt64:
			m.found = attr.Value.Int64() >= 0
		case slog.KindFloat64:
			m.found = attr.Value.Float64() >= 0
		default:
		}

		return false
	})

	return m
}

// Assert returns whether all conditions of the chain matched.
func (m *SpyLogRecordMatcher) Assert() bool {
	return m.found
}
