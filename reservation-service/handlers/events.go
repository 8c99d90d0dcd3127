package handlers

import (
	"github.com/draftea/travel-booking/reservation-service/application"
	"github.com/draftea/travel-booking/reservation-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/saga"
	"github.com/draftea/travel-booking/shared/telemetry"
)

// NewReservationEventDispatcher subscribes a participant to its request and
// cancellation topics
func NewReservationEventDispatcher(
	step events.Step,
	reserve *application.ReserveResource,
	cancel *application.CancelReservation,
	tel *telemetry.Telemetry,
	log logger.Logger,
) *saga.EventDispatcher {
	dispatcher := saga.NewEventDispatcher(domain.ServiceName(step), log)
	dispatcher.RegisterHandler(events.ReservationRequestedTopic(step), telemetry.EventMiddleware(tel, reserve))
	dispatcher.RegisterHandler(events.CancelledTopic(step), telemetry.EventMiddleware(tel, cancel))
	return dispatcher
}
