package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/draftea/travel-booking/shared/telemetry"
)

func track(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	return telemetry.TrackOperation(ctx, "booking", operation, attrs...)
}
