package config

import (
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/live-selectors-go/feed"
	"github.com/AntonStoeckl/live-selectors-go/oteladapters"
)

const instrumentationName = "live-selectors-todos"

// ObservabilityConfig holds the observability adapters shared by the patch log and the session.
type ObservabilityConfig struct {
	ContextualLogger feed.ContextualLogger
	MetricsCollector feed.MetricsCollector
	TracingCollector feed.TracingCollector
}

// NewObservabilityConfig returns a text logger on stderr and, when withOTel is set,
// metrics and tracing on the global OpenTelemetry providers.
func NewObservabilityConfig(withOTel bool, level slog.Level) ObservabilityConfig {
	cfg := ObservabilityConfig{
		ContextualLogger: oteladapters.NewSlogBridgeLoggerWithHandler(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		),
	}

	if !withOTel {
		return cfg
	}

	cfg.ContextualLogger = oteladapters.NewSlogBridgeLogger(instrumentationName)
	cfg.MetricsCollector = oteladapters.NewMetricsCollector(otel.Meter(instrumentationName))
	cfg.TracingCollector = oteladapters.NewTracingCollector(otel.Tracer(instrumentationName))

	return cfg
}
