package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/models"
	"github.com/draftea/travel-booking/shared/telemetry"
)

// ErrInvalidCommand marks input errors the caller can fix
var ErrInvalidCommand = errors.New("invalid command")

// CreateBookingCommand represents the command to create a booking
type CreateBookingCommand struct {
	UserID  string                `json:"user_id"`
	Request events.BookingRequest `json:"request"`
}

// CreateBookingResponse is returned right after intake, before the saga runs
type CreateBookingResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

// CreateBooking persists a PENDING booking and starts the saga
type CreateBooking struct {
	bookingRepository domain.BookingRepository
	eventStore        events.EventStore
	eventPublisher    events.Publisher
}

// NewCreateBooking creates a new CreateBooking use case
func NewCreateBooking(
	bookingRepository domain.BookingRepository,
	eventStore events.EventStore,
	eventPublisher events.Publisher,
) *CreateBooking {
	return &CreateBooking{
		bookingRepository: bookingRepository,
		eventStore:        eventStore,
		eventPublisher:    eventPublisher,
	}
}

// Execute creates the booking. It returns as soon as BookingCreated is published.
func (uc *CreateBooking) Execute(ctx context.Context, cmd *CreateBookingCommand) (resp *CreateBookingResponse, err error) {
	ctx, done := track(ctx, "create_booking", attribute.String("user_id", cmd.UserID))
	defer func() { done(err) }()

	if cmd.UserID == "" {
		return nil, errors.Wrap(ErrInvalidCommand, "user ID is required")
	}

	userID, err := models.NewID(cmd.UserID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, "invalid user ID")
	}

	booking, err := domain.CreateBooking(userID, cmd.Request)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, err.Error())
	}

	if err := uc.bookingRepository.Save(ctx, booking); err != nil {
		return nil, errors.Wrap(err, "failed to save booking")
	}

	log := logger.FromContext(ctx).With("booking_id", booking.ID)
	if err := uc.eventStore.Append(ctx, booking.Events()...); err != nil {
		log.Error("failed to append booking events", "error", err)
	}

	if err := uc.eventPublisher.Publish(ctx, booking.PublicEvents()...); err != nil {
		// the booking stays PENDING until the watchdog times it out
		return nil, errors.Wrap(err, "failed to publish events")
	}
	booking.ClearEvents()

	telemetry.RecordCounter(ctx, "bookings_created_total", "Bookings accepted at intake", 1,
		attribute.Bool("hotel", cmd.Request.Hotel != nil),
		attribute.Bool("car", cmd.Request.Car != nil),
	)
	log.Info("booking created")

	return &CreateBookingResponse{
		BookingID: booking.ID.String(),
		Status:    string(booking.Status),
	}, nil
}
