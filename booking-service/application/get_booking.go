package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/models"
)

// GetBookingQuery represents the query to get a booking. When UserID is set,
// bookings of other users are reported as not found.
type GetBookingQuery struct {
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id,omitempty"`
}

// GetBooking use case handles retrieving a booking
type GetBooking struct {
	bookingRepository domain.BookingRepository
}

// NewGetBooking creates a new GetBooking use case
func NewGetBooking(bookingRepository domain.BookingRepository) *GetBooking {
	return &GetBooking{bookingRepository: bookingRepository}
}

// Execute retrieves a booking by ID
func (uc *GetBooking) Execute(ctx context.Context, query *GetBookingQuery) (*BookingResponse, error) {
	booking, err := loadOwnedBooking(ctx, uc.bookingRepository, query.BookingID, query.UserID)
	if err != nil {
		return nil, err
	}
	return toBookingResponse(booking), nil
}

func loadOwnedBooking(ctx context.Context, repo domain.BookingRepository, rawBookingID, rawUserID string) (*domain.Booking, error) {
	if rawBookingID == "" {
		return nil, errors.Wrap(ErrInvalidCommand, "booking ID is required")
	}

	bookingID, err := models.NewID(rawBookingID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, "invalid booking ID")
	}

	booking, err := repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find booking")
	}

	if booking == nil {
		return nil, domain.ErrBookingNotFound
	}

	if rawUserID != "" && booking.UserID.String() != rawUserID {
		return nil, domain.ErrBookingNotFound
	}

	return booking, nil
}
