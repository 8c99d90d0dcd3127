package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TrackOperation starts the span of a use case and returns the func that ends
// it. The outcome is counted in <prefix>_operations_total and timed in
// <prefix>_operation_duration_seconds.
func TrackOperation(ctx context.Context, prefix, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := StartSpan(ctx, operation, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		RecordCounter(ctx, prefix+"_operations_total", "Total "+prefix+" operations", 1,
			attribute.String("operation", operation),
			attribute.String("status", status),
		)
		RecordHistogram(ctx, prefix+"_operation_duration_seconds", prefix+" operation duration", time.Since(start).Seconds(),
			attribute.String("operation", operation),
			attribute.String("status", status),
		)
		span.End()
	}
}
