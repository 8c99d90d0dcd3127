package application

import (
	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
	"github.com/draftea/travel-booking/shared/saga"
)

const bookingServiceSource = "booking-service"

// cancellationCommand builds the compensation command for one reservation.
// The id only depends on the booking, the step and the reservation id.
func cancellationCommand(booking *domain.Booking, step events.Step, reservationID models.ID, reason string) *events.Event {
	return events.NewDeterministicEvent(booking.ID, events.CancelledTopic(step), events.CancellationRequestedData{
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		Step:          step,
		ReservationID: reservationID,
		Reason:        reason,
	}, reservationID.String()).
		WithUserID(booking.UserID).
		WithCorrelationID(booking.ID).
		WithMetadata(events.MetadataRoutingVersion, saga.RoutingTableVersion).
		WithMetadata(events.MetadataSource, bookingServiceSource)
}

// refundCommand asks the payment participant to return a charge the booking
// can no longer use
func refundCommand(booking *domain.Booking, transactionID models.ID, reason string) *events.Event {
	return events.NewDeterministicEvent(booking.ID, events.PaymentRefundRequestedEvent, events.PaymentRefundRequestedData{
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		TransactionID: transactionID,
		Reason:        reason,
	}, transactionID.String()).
		WithUserID(booking.UserID).
		WithCorrelationID(booking.ID).
		WithMetadata(events.MetadataSource, bookingServiceSource)
}
