package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/models"
)

// ListBookingsQuery lists the bookings of a user, newest first
type ListBookingsQuery struct {
	UserID string `json:"user_id"`
}

// ListBookings use case
type ListBookings struct {
	bookingRepository domain.BookingRepository
}

func NewListBookings(bookingRepository domain.BookingRepository) *ListBookings {
	return &ListBookings{bookingRepository: bookingRepository}
}

func (uc *ListBookings) Execute(ctx context.Context, query *ListBookingsQuery) ([]*BookingResponse, error) {
	userID, err := models.NewID(query.UserID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, "invalid user ID")
	}

	bookings, err := uc.bookingRepository.FindByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list bookings")
	}

	responses := make([]*BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		responses = append(responses, toBookingResponse(b))
	}
	return responses, nil
}
