package application

import (
	"time"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/events"
)

// ReservationView is a reservation reference as returned to clients
type ReservationView struct {
	ReservationID string     `json:"reservation_id"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

// BookingResponse is the query model of a booking
type BookingResponse struct {
	BookingID            string                `json:"booking_id"`
	UserID               string                `json:"user_id"`
	Status               string                `json:"status"`
	Flight               *ReservationView      `json:"flight,omitempty"`
	Hotel                *ReservationView      `json:"hotel,omitempty"`
	Car                  *ReservationView      `json:"car,omitempty"`
	PaymentTransactionID string                `json:"payment_transaction_id,omitempty"`
	PaymentRefundedAt    *time.Time            `json:"payment_refunded_at,omitempty"`
	FailedStep           string                `json:"failed_step,omitempty"`
	FailureReason        string                `json:"failure_reason,omitempty"`
	ErrorMessage         string                `json:"error_message,omitempty"`
	CancellationReason   string                `json:"cancellation_reason,omitempty"`
	TotalAmount          int64                 `json:"total_amount"`
	Currency             string                `json:"currency"`
	Request              events.BookingRequest `json:"request"`
	CreatedAt            string                `json:"created_at"`
	UpdatedAt            string                `json:"updated_at"`
}

func toBookingResponse(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		BookingID:            b.ID.String(),
		UserID:               b.UserID.String(),
		Status:               string(b.Status),
		Flight:               toReservationView(b.Flight),
		Hotel:                toReservationView(b.Hotel),
		Car:                  toReservationView(b.Car),
		PaymentTransactionID: b.PaymentTransactionID.String(),
		PaymentRefundedAt:    b.PaymentRefundedAt,
		FailedStep:           string(b.FailedStep),
		FailureReason:        b.FailureReason,
		ErrorMessage:         b.ErrorMessage,
		CancellationReason:   b.CancellationReason,
		TotalAmount:          b.TotalAmount.Amount,
		Currency:             b.TotalAmount.Currency,
		Request:              b.Request,
		CreatedAt:            b.Timestamps.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            b.Timestamps.UpdatedAt.Format(time.RFC3339),
	}
}

func toReservationView(ref domain.ReservationRef) *ReservationView {
	if !ref.IsSet() {
		return nil
	}
	return &ReservationView{
		ReservationID: ref.ID.String(),
		CancelledAt:   ref.CancelledAt,
	}
}
