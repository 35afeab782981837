package workerpresentation

import (
	"context"

	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability/logctx"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext injects an event-scoped logger for background/worker executions.
// Dynamic fields only: trace_id/span_id (if valid), event_id (generated if empty),
// plus caller-provided low-cardinality attributes (e.g. "event", "aggregate_id").
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	traceID trace.TraceID,
	spanID trace.SpanID,
	attrs map[string]string,
) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}

	fields := make([]observability.Field, 0, 3+len(attrs))

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields = append(fields, observability.F("event_id", evtID))

	if traceID.IsValid() {
		fields = append(fields, observability.F("trace_id", traceID.String()))
	}
	if spanID.IsValid() {
		fields = append(fields, observability.F("span_id", spanID.String()))
	}

	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}

	return logctx.With(ctx, base.With(fields...))
}

// RecordContext adapts WithEventContext to outbox delivery: the record ID becomes
// the event ID and the delivery span supplies the trace identifiers.
func RecordContext(base observability.Logger) func(context.Context, domoutbox.Record) context.Context {
	return func(ctx context.Context, rec domoutbox.Record) context.Context {
		sc := trace.SpanContextFromContext(ctx)
		return WithEventContext(ctx, base, sc.TraceID(), sc.SpanID(), map[string]string{
			"event_id":     rec.ID,
			"event":        rec.EventType,
			"aggregate_id": rec.AggregateID,
		})
	}
}
