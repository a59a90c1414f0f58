// Package oteladapters provides OpenTelemetry implementations of the observability interfaces
// shared by the selectors, feed, and session packages.
//
// One instance of each adapter can be handed to an engine, a patch log, and a session at once:
//
//	metrics := oteladapters.NewMetricsCollector(meterProvider.Meter("live-selectors"))
//	tracing := oteladapters.NewTracingCollector(tracerProvider.Tracer("live-selectors"))
//	logger := oteladapters.NewSlogBridgeLogger("live-selectors")
//
//	s, err := session.Open(ctx, patchLog, roomID,
//		session.WithMetrics(metrics),
//		session.WithTracing(tracing),
//		session.WithContextualLogger(logger),
//	)
package oteladapters
