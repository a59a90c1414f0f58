package session

import (
	"time"

	"github.com/AntonStoeckl/live-selectors-go/feed"
	"github.com/AntonStoeckl/live-selectors-go/selectors"
)

// Option defines a functional option for configuring a Session.
type Option func(*Session) error

// WithLogger sets the logger for the Session. It is also handed to the engine.
func WithLogger(logger feed.Logger) Option {
	return func(s *Session) error {
		s.logger = logger

		return nil
	}
}

// WithContextualLogger sets the context-aware logger for the Session. It is also handed to the engine.
// If both a logger and a contextual logger are set, the contextual logger is used.
func WithContextualLogger(logger feed.ContextualLogger) Option {
	return func(s *Session) error {
		s.contextualLogger = logger

		return nil
	}
}

// WithMetrics sets the metrics collector for the Session. It is also handed to the engine.
func WithMetrics(collector feed.MetricsCollector) Option {
	return func(s *Session) error {
		s.metricsCollector = collector

		return nil
	}
}

// WithTracing sets the tracing collector for the Session. It is also handed to the engine.
func WithTracing(collector feed.TracingCollector) Option {
	return func(s *Session) error {
		s.tracingCollector = collector

		return nil
	}
}

// WithPollInterval sets how often Run syncs.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Session) error {
		if interval <= 0 {
			return ErrInvalidPollInterval
		}

		s.pollInterval = interval

		return nil
	}
}

// WithEngineOptions adds options for the selector engine.
// They are applied after the options the session derives from its own configuration.
func WithEngineOptions(options ...selectors.Option) Option {
	return func(s *Session) error {
		s.engineOptions = append(s.engineOptions, options...)

		return nil
	}
}

// WithRetryMaxAttempts sets how often Update tries to append before giving up on conflicts.
func WithRetryMaxAttempts(attempts int) Option {
	return func(s *Session) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		s.retry.maxAttempts = attempts

		return nil
	}
}

// WithRetryBaseDelay sets the base delay for exponential backoff.
// Actual delays: baseDelay, baseDelay*2, baseDelay*4, baseDelay*8, etc.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(s *Session) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		s.retry.baseDelay = delay

		return nil
	}
}

// WithRetryJitterFactor sets the jitter added as a fraction of each backoff delay.
// Valid range: 0.0 (no jitter) to 1.0 (100% jitter).
func WithRetryJitterFactor(factor float64) Option {
	return func(s *Session) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}

		s.retry.jitterFactor = factor

		return nil
	}
}
