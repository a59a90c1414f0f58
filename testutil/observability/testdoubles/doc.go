// Package testdoubles provides spies for the dependency-free observability interfaces
// of the selectors, postgresfeed, and session packages:
//   - LogHandlerSpy: a slog.Handler capturing records, used behind *slog.Logger
//   - ContextualLoggerSpy: captures context-aware log calls
//   - MetricsCollectorSpy: captures durations, counters, and values
//   - TracingCollectorSpy: captures spans with their start and finish attributes
package testdoubles
