package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/draftea/travel-booking/shared/events"
)

// EventMiddleware wraps an event handler with a consumer span and consumption metrics
func EventMiddleware(tel *Telemetry, next events.EventHandler) events.EventHandler {
	return events.EventHandlerFunc(func(ctx context.Context, event *events.Event) error {
		start := time.Now()
		ctx = WithTelemetry(ctx, tel)

		ctx, span := StartSpan(ctx, "consume "+event.EventType,
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("event.id", event.ID.String()),
				attribute.String("event.type", event.EventType),
				attribute.String("booking.id", event.AggregateID.String()),
			),
		)
		defer span.End()

		err := next.Handle(ctx, event)

		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		RecordCounter(ctx, "saga_events_consumed_total", "Saga events consumed", 1,
			attribute.String("event_type", event.EventType),
			attribute.String("status", status),
		)
		RecordHistogram(ctx, "saga_event_handling_duration_seconds", "Saga event handling duration", time.Since(start).Seconds(),
			attribute.String("event_type", event.EventType),
		)

		return err
	})
}
