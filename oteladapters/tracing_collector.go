package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/live-selectors-go/feed"
	"github.com/AntonStoeckl/live-selectors-go/selectors"
)

const (
	attrStatus                = "status"
	descriptionFailed         = "operation failed"
	descriptionCanceled       = "operation canceled"
	descriptionTimeout        = "operation timed out"
	descriptionConflict       = "concurrency conflict"
	statusOK                  = "ok"
	statusSuccess             = "success"
	statusCompleted           = "completed"
	statusError               = "error"
	statusFailed              = "failed"
	statusCanceled            = "canceled"
	statusCancelled           = "cancelled"
	statusTimeout             = "timeout"
	statusConflict            = "conflict"
	statusConcurrencyConflict = "concurrency_conflict"
)

// TracingCollector implements the TracingCollector interface with the OpenTelemetry tracing API.
// Spans started by it are children of the span in the given context, and the returned context
// carries the new span, so logs and metrics recorded with it correlate.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a collector that starts its spans with tracer.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan starts a span with string attributes.
func (t *TracingCollector) StartSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, selectors.SpanContext) {

	spanCtx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attributes(attrs)...))

	return spanCtx, &OTelSpanContext{span: span}
}

// FinishSpan adds the final attributes, maps status onto the span status, and ends the span.
// Span contexts not created by a TracingCollector are ignored.
func (t *TracingCollector) FinishSpan(spanCtx selectors.SpanContext, status string, attrs map[string]string) {
	otelSpanCtx, ok := spanCtx.(*OTelSpanContext)
	if !ok {
		return
	}

	otelSpanCtx.span.SetAttributes(attributes(attrs)...)
	otelSpanCtx.SetStatus(status)
	otelSpanCtx.span.End()
}

// OTelSpanContext wraps an OpenTelemetry span.
type OTelSpanContext struct {
	span trace.Span
}

// SetStatus maps a status string to an OpenTelemetry status code.
// Unknown strings are recorded as the "status" attribute and leave the code unset.
func (s *OTelSpanContext) SetStatus(status string) {
	switch status {
	case statusOK, statusSuccess, statusCompleted:
		s.span.SetStatus(codes.Ok, "")
	case statusError, statusFailed:
		s.span.SetStatus(codes.Error, descriptionFailed)
	case statusCanceled, statusCancelled:
		s.span.SetStatus(codes.Error, descriptionCanceled)
	case statusTimeout:
		s.span.SetStatus(codes.Error, descriptionTimeout)
	case statusConflict, statusConcurrencyConflict:
		s.span.SetStatus(codes.Error, descriptionConflict)
	default:
		s.span.SetAttributes(attribute.String(attrStatus, status))
	}
}

// AddAttribute adds a string attribute to the span.
func (s *OTelSpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

var (
	_ selectors.TracingCollector = (*TracingCollector)(nil)
	_ feed.TracingCollector      = (*TracingCollector)(nil)
	_ selectors.SpanContext      = (*OTelSpanContext)(nil)
)
