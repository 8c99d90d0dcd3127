package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
)

const userCancellationReason = "Cancelled by user"

// CancelBookingCommand represents a user request to cancel an in-flight booking
type CancelBookingCommand struct {
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
}

// CancelBooking moves a booking to CANCELLED and compensates what it holds
type CancelBooking struct {
	bookingRepository domain.BookingRepository
	eventStore        events.EventStore
	eventPublisher    events.Publisher
	compensator       *CompensateBooking
}

// NewCancelBooking creates a new CancelBooking use case
func NewCancelBooking(
	bookingRepository domain.BookingRepository,
	eventStore events.EventStore,
	eventPublisher events.Publisher,
	compensator *CompensateBooking,
) *CancelBooking {
	return &CancelBooking{
		bookingRepository: bookingRepository,
		eventStore:        eventStore,
		eventPublisher:    eventPublisher,
		compensator:       compensator,
	}
}

// Execute cancels the booking. Terminal bookings return domain.ErrInvalidTransition.
func (uc *CancelBooking) Execute(ctx context.Context, cmd *CancelBookingCommand) (resp *BookingResponse, err error) {
	ctx, done := track(ctx, "cancel_booking", attribute.String("booking_id", cmd.BookingID))
	defer func() { done(err) }()

	if cmd.UserID == "" {
		return nil, errors.Wrap(ErrInvalidCommand, "user ID is required")
	}

	booking, err := loadOwnedBooking(ctx, uc.bookingRepository, cmd.BookingID, cmd.UserID)
	if err != nil {
		return nil, err
	}

	if err := booking.Cancel(userCancellationReason); err != nil {
		return nil, err
	}

	if err := uc.bookingRepository.Save(ctx, booking); err != nil {
		return nil, errors.Wrap(err, "failed to save booking")
	}

	log := logger.FromContext(ctx).With("booking_id", booking.ID)
	if err := uc.eventStore.Append(ctx, booking.Events()...); err != nil {
		log.Error("failed to append booking events", "error", err)
	}
	if err := uc.eventPublisher.Publish(ctx, booking.PublicEvents()...); err != nil {
		log.Error("failed to publish booking cancelled", "error", err)
	}
	booking.ClearEvents()

	if _, err := uc.compensator.Compensate(ctx, booking); err != nil {
		// the watchdog picks up cancelled bookings whose compensation is still pending
		log.Error("failed to compensate booking", "error", err)
	}

	return toBookingResponse(booking), nil
}
