package feed

import "github.com/AntonStoeckl/live-selectors-go/selectors"

// The patch logs report through the same dependency-free interfaces as the selector engine,
// so one logger, metrics collector, or tracing collector can serve a whole session.
type (
	Logger                     = selectors.Logger
	ContextualLogger           = selectors.ContextualLogger
	MetricsCollector           = selectors.MetricsCollector
	ContextualMetricsCollector = selectors.ContextualMetricsCollector
	SpanContext                = selectors.SpanContext
	TracingCollector           = selectors.TracingCollector
)
