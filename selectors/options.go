package selectors

// settings holds the optional observability configuration of an Engine.
type settings struct {
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
	name             string
}

// Option defines a functional option for configuring an Engine.
type Option func(*settings) error

// WithLogger sets the logger for the Engine.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: per-pass evaluation details and queued snapshots
// Info level: engine lifecycle (created, closed)
// Warn level: recovered callback panics
// Error level: selector and comparison failures.
func WithLogger(logger Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Engine.
// When both loggers are configured, the contextual logger is used for everything that has a context.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(s *settings) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
// It receives pass durations, evaluated registrations, notification counts, and evaluation errors.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *settings) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine. Every notification pass gets a span.
func WithTracing(collector TracingCollector) Option {
	return func(s *settings) error {
		s.tracingCollector = collector
		return nil
	}
}

// WithName labels the Engine's logs, metrics, and spans, e.g. with a room id.
func WithName(name string) Option {
	return func(s *settings) error {
		s.name = name
		return nil
	}
}
