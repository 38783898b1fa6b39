// Package tracing holds the OpenTelemetry tracer and span helpers used by
// the reconciler. Without a configured TracerProvider the spans are no-ops.
package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "github.com/dhima/schedule-reconciler"

var tracer = otel.Tracer(TracerName)

// SetTracer replaces the package tracer (tests).
func SetTracer(t trace.Tracer) {
	tracer = t
}

var (
	AttrEventID    = attribute.Key("reconciler.event.id")
	AttrScheduleID = attribute.Key("reconciler.schedule.id")
	AttrOneOffID   = attribute.Key("reconciler.oneoff.id")
	AttrChangeOp   = attribute.Key("reconciler.change.op")
	AttrOutcome    = attribute.Key("reconciler.outcome")
)

// StartHandlerSpan wraps one controller entry point.
func StartHandlerSpan(ctx context.Context, handler string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "reconcile."+handler,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// StartClientSpan wraps an outbound call to the one-off scheduler.
func StartClientSpan(ctx context.Context, operation, url string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "oneoff."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", http.MethodPost),
			attribute.String("http.url", url),
		),
	)
}

// StartSweepSpan wraps one sweeper pass.
func StartSweepSpan(ctx context.Context) (context.Context, trace.Span) {
	return tracer.Start(ctx, "scheduler.sweep", trace.WithSpanKind(trace.SpanKindInternal))
}

// End records err (if any) and ends the span.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Propagator is the W3C trace-context + baggage propagator.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// InjectHeaders writes the span context of ctx into h.
func InjectHeaders(ctx context.Context, h http.Header) {
	Propagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// ExtractHeaders returns ctx enriched with the span context carried by h.
func ExtractHeaders(ctx context.Context, h http.Header) context.Context {
	return Propagator().Extract(ctx, propagation.HeaderCarrier(h))
}
