package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Operation is a timed span around one unit of work.
type Operation struct {
	span  trace.Span
	start time.Time
}

// StartOperation opens a span and starts the clock.
func StartOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Operation) {
	ctx, span := StartSpan(ctx, name, attrs...)
	return ctx, &Operation{span: span, start: time.Now()}
}

// SetAttributes adds attributes to the span.
func (o *Operation) SetAttributes(attrs ...attribute.KeyValue) {
	o.span.SetAttributes(attrs...)
}

// End closes the span with status and err and returns the elapsed time.
func (o *Operation) End(status string, err error) time.Duration {
	d := time.Since(o.start)
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	}
	o.span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrDurationMs, d.Milliseconds()),
	)
	o.span.End()
	return d
}
