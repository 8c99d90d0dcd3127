package handlers

import (
	"github.com/draftea/travel-booking/booking-service/application"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/saga"
	"github.com/draftea/travel-booking/shared/telemetry"
)

// ConsumerName identifies the booking service on the bus
const ConsumerName = "booking-service"

// NewBookingEventDispatcher wires the projector and the compensation coordinator.
// The projector sees every event first so the coordinator reads the references
// the failure event's booking already holds.
func NewBookingEventDispatcher(
	projector *application.ProjectBookingEvent,
	compensator *application.CompensateBooking,
	tel *telemetry.Telemetry,
	log logger.Logger,
) *saga.EventDispatcher {
	dispatcher := saga.NewEventDispatcher(ConsumerName, log)
	dispatcher.RegisterHandler("#", telemetry.EventMiddleware(tel, projector))
	dispatcher.RegisterHandler(events.FailurePattern.String(), telemetry.EventMiddleware(tel, compensator))
	return dispatcher
}
