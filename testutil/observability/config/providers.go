package config

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestMeterProvider is a MeterProvider with a manual reader.
type TestMeterProvider struct {
	*sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
}

// NewTestMeterProvider creates a meter provider that is shut down on test cleanup.
func NewTestMeterProvider(t testing.TB) *TestMeterProvider {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	return &TestMeterProvider{MeterProvider: provider, reader: reader}
}

// Collect returns all metrics recorded so far.
func (p *TestMeterProvider) Collect(t testing.TB) metricdata.ResourceMetrics {
	t.Helper()

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, p.reader.Collect(context.Background(), &resourceMetrics), "collecting metrics failed")

	return resourceMetrics
}

// FindMetric returns the first metric named name.
func FindMetric(resourceMetrics metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}

	return metricdata.Metrics{}, false
}

// TestTracerProvider is a TracerProvider that exports synchronously into memory.
type TestTracerProvider struct {
	*sdktrace.TracerProvider
	exporter *tracetest.InMemoryExporter
}

// NewTestTracerProvider creates a tracer provider that is shut down on test cleanup.
func NewTestTracerProvider(t testing.TB) *TestTracerProvider {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	return &TestTracerProvider{TracerProvider: provider, exporter: exporter}
}

// Spans returns all ended spans.
func (p *TestTracerProvider) Spans() tracetest.SpanStubs {
	return p.exporter.GetSpans()
}

// SpansByName returns the ended spans named name.
func (p *TestTracerProvider) SpansByName(name string) tracetest.SpanStubs {
	var spans tracetest.SpanStubs

	for _, span := range p.exporter.GetSpans() {
		if span.Name == name {
			spans = append(spans, span)
		}
	}

	return spans
}

// EmittedRecord is a log record captured by RecordingLogger with the context it was emitted with.
type EmittedRecord struct {
	Context context.Context
	Record  log.Record
}

// RecordingLogger is a log.Logger that keeps every emitted record.
type RecordingLogger struct {
	noop.Logger

	mu      sync.Mutex
	records []EmittedRecord
}

// NewRecordingLogger creates an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

// Emit implements log.Logger.
func (l *RecordingLogger) Emit(ctx context.Context, record log.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, EmittedRecord{Context: ctx, Record: record.Clone()})
}

// Records returns a copy of all emitted records.
func (l *RecordingLogger) Records() []EmittedRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]EmittedRecord(nil), l.records...)
}
