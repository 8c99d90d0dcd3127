package application

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/reservation-service/domain"
	"github.com/draftea/travel-booking/shared/models"
)

// ReservationResponse is the read model of a reservation record
type ReservationResponse struct {
	BookingID     string     `json:"booking_id"`
	UserID        string     `json:"user_id"`
	Step          string     `json:"step"`
	Status        string     `json:"status"`
	ReservationID string     `json:"reservation_id,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// GetReservation returns the record kept for a booking
type GetReservation struct {
	repository domain.ReservationRepository
}

// NewGetReservation creates a new GetReservation use case
func NewGetReservation(repository domain.ReservationRepository) *GetReservation {
	return &GetReservation{repository: repository}
}

// Execute looks the record up by booking id
func (uc *GetReservation) Execute(ctx context.Context, bookingID string) (*ReservationResponse, error) {
	id, err := models.NewID(bookingID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, "invalid booking ID")
	}

	record, err := uc.repository.FindByBookingID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find reservation")
	}
	if record == nil {
		return nil, errors.Wrapf(domain.ErrReservationNotFound, "booking %s", id)
	}

	return &ReservationResponse{
		BookingID:     record.BookingID.String(),
		UserID:        record.UserID.String(),
		Step:          string(record.Step),
		Status:        string(record.Status),
		ReservationID: record.ReservationID.String(),
		ErrorMessage:  record.ErrorMessage,
		CancelReason:  record.CancelReason,
		CancelledAt:   record.CancelledAt,
		CreatedAt:     record.Timestamps.CreatedAt,
		UpdatedAt:     record.Timestamps.UpdatedAt,
	}, nil
}
