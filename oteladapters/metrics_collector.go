package oteladapters

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AntonStoeckl/live-selectors-go/feed"
	"github.com/AntonStoeckl/live-selectors-go/selectors"
)

const (
	descriptionDuration = "live selectors operation duration"
	descriptionCounter  = "live selectors operation counter"
	descriptionValue    = "live selectors current value"
	unitSeconds         = "s"
)

// MetricsCollector implements the MetricsCollector and ContextualMetricsCollector interfaces with
// the OpenTelemetry metrics API. Instruments are created on first use:
//   - RecordDuration -> Float64Histogram in seconds
//   - IncrementCounter -> Int64Counter
//   - RecordValue -> Float64Gauge
//
// It is safe for concurrent use. Metrics whose instrument cannot be created are dropped.
type MetricsCollector struct {
	meter metric.Meter

	mu         sync.RWMutex
	histograms map[string]metric.Float64Histogram
	counters   map[string]metric.Int64Counter
	gauges     map[string]metric.Float64Gauge
}

// NewMetricsCollector creates a collector that creates its instruments with meter.
func NewMetricsCollector(meter metric.Meter) *MetricsCollector {
	return &MetricsCollector{
		meter:      meter,
		histograms: make(map[string]metric.Float64Histogram),
		counters:   make(map[string]metric.Int64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

// RecordDuration records duration in seconds on a histogram.
func (m *MetricsCollector) RecordDuration(metricName string, duration time.Duration, labels map[string]string) {
	m.RecordDurationContext(context.Background(), metricName, duration, labels)
}

// RecordDurationContext records duration in seconds on a histogram, with context for exemplars.
func (m *MetricsCollector) RecordDurationContext(
	ctx context.Context,
	metricName string,
	duration time.Duration,
	labels map[string]string,
) {

	histogram, ok := instrument(m, m.histograms, metricName, func() (metric.Float64Histogram, error) {
		return m.meter.Float64Histogram(metricName,
			metric.WithDescription(descriptionDuration),
			metric.WithUnit(unitSeconds),
		)
	})
	if !ok {
		return
	}

	histogram.Record(ctx, duration.Seconds(), metric.WithAttributes(attributes(labels)...))
}

// IncrementCounter adds one to a counter.
func (m *MetricsCollector) IncrementCounter(metricName string, labels map[string]string) {
	m.IncrementCounterContext(context.Background(), metricName, labels)
}

// IncrementCounterContext adds one to a counter, with context for exemplars.
func (m *MetricsCollector) IncrementCounterContext(ctx context.Context, metricName string, labels map[string]string) {
	counter, ok := instrument(m, m.counters, metricName, func() (metric.Int64Counter, error) {
		return m.meter.Int64Counter(metricName, metric.WithDescription(descriptionCounter))
	})
	if !ok {
		return
	}

	counter.Add(ctx, 1, metric.WithAttributes(attributes(labels)...))
}

// RecordValue records the current value on a gauge.
func (m *MetricsCollector) RecordValue(metricName string, value float64, labels map[string]string) {
	m.RecordValueContext(context.Background(), metricName, value, labels)
}

// RecordValueContext records the current value on a gauge, with context for exemplars.
func (m *MetricsCollector) RecordValueContext(
	ctx context.Context,
	metricName string,
	value float64,
	labels map[string]string,
) {

	gauge, ok := instrument(m, m.gauges, metricName, func() (metric.Float64Gauge, error) {
		return m.meter.Float64Gauge(metricName, metric.WithDescription(descriptionValue))
	})
	if !ok {
		return
	}

	gauge.Record(ctx, value, metric.WithAttributes(attributes(labels)...))
}

// instrument returns the cached instrument for name or creates and caches it.
func instrument[I any](m *MetricsCollector, cache map[string]I, name string, create func() (I, error)) (I, bool) {
	m.mu.RLock()
	cached, exists := cache[name]
	m.mu.RUnlock()

	if exists {
		return cached, true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, exists = cache[name]; exists {
		return cached, true
	}

	created, err := create()
	if err != nil {
		var zero I
		return zero, false
	}

	cache[name] = created

	return created, true
}

func attributes(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for key, value := range labels {
		attrs = append(attrs, attribute.String(key, value))
	}

	return attrs
}

var (
	_ selectors.MetricsCollector           = (*MetricsCollector)(nil)
	_ selectors.ContextualMetricsCollector = (*MetricsCollector)(nil)
	_ feed.MetricsCollector                = (*MetricsCollector)(nil)
	_ feed.ContextualMetricsCollector      = (*MetricsCollector)(nil)
)
