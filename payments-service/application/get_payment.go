package application

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/payments-service/domain"
	"github.com/draftea/travel-booking/shared/models"
)

// PaymentResponse is the read model of a booking's payment
type PaymentResponse struct {
	BookingID     string       `json:"booking_id"`
	UserID        string       `json:"user_id"`
	TransactionID string       `json:"transaction_id,omitempty"`
	Amount        models.Money `json:"amount"`
	PaymentMethod string       `json:"payment_method"`
	Status        string       `json:"status"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	RefundReason  string       `json:"refund_reason,omitempty"`
	RefundedAt    *time.Time   `json:"refunded_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// GetPayment use case
type GetPayment struct {
	paymentRepository domain.PaymentRepository
}

// NewGetPayment creates a new GetPayment use case
func NewGetPayment(paymentRepository domain.PaymentRepository) *GetPayment {
	return &GetPayment{paymentRepository: paymentRepository}
}

// Execute returns the payment of a booking
func (uc *GetPayment) Execute(ctx context.Context, bookingID string) (*PaymentResponse, error) {
	id, err := models.NewID(bookingID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, "invalid booking ID")
	}

	payment, err := uc.paymentRepository.FindByBookingID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find payment")
	}
	if payment == nil {
		return nil, errors.Wrapf(domain.ErrPaymentNotFound, "booking %s", id)
	}

	return &PaymentResponse{
		BookingID:     payment.BookingID.String(),
		UserID:        payment.UserID.String(),
		TransactionID: payment.TransactionID.String(),
		Amount:        payment.Amount,
		PaymentMethod: payment.Method.String(),
		Status:        string(payment.Status),
		ErrorMessage:  payment.ErrorMessage,
		RefundReason:  payment.RefundReason,
		RefundedAt:    payment.RefundedAt,
		CreatedAt:     payment.Timestamps.CreatedAt,
		UpdatedAt:     payment.Timestamps.UpdatedAt,
	}, nil
}
