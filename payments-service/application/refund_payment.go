package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/draftea/travel-booking/payments-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/models"
	"github.com/draftea/travel-booking/shared/saga"
	"github.com/draftea/travel-booking/shared/telemetry"
)

// RefundPaymentCommand asks for the charge of a booking to be returned
type RefundPaymentCommand struct {
	BookingID     string `json:"booking_id"`
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

// RefundPaymentResponse represents the refunded payment
type RefundPaymentResponse struct {
	BookingID     string       `json:"booking_id"`
	TransactionID string       `json:"transaction_id"`
	Amount        models.Money `json:"amount"`
	Status        string       `json:"status"`
}

// RefundPayment returns a processed charge and acknowledges every request for it
type RefundPayment struct {
	repository domain.PaymentRepository
	refunder   domain.Refunder
	publisher  events.Publisher
	locker     *saga.KeyedLocker
	now        func() time.Time
}

// NewRefundPayment creates a new RefundPayment use case. refunder gives money
// back for methods that hold it, such as wallets.
func NewRefundPayment(repository domain.PaymentRepository, refunder domain.Refunder, publisher events.Publisher) *RefundPayment {
	return &RefundPayment{
		repository: repository,
		refunder:   refunder,
		publisher:  publisher,
		locker:     saga.NewKeyedLocker(),
		now:        time.Now,
	}
}

// Handle implements events.EventHandler for payment.refund.requested
func (uc *RefundPayment) Handle(ctx context.Context, event *events.Event) error {
	var data events.PaymentRefundRequestedData
	if err := event.UnmarshalPayload(&data); err != nil {
		logger.FromContext(ctx).Error("dropping malformed refund request", "error", err)
		return nil
	}

	bookingID := data.BookingID
	if bookingID.IsZero() {
		bookingID = event.AggregateID
	}

	_, err := uc.Execute(ctx, &RefundPaymentCommand{
		BookingID:     bookingID.String(),
		TransactionID: data.TransactionID.String(),
		Reason:        data.Reason,
	})
	switch errors.Cause(err) {
	case nil:
		return nil
	case ErrInvalidCommand, domain.ErrPaymentNotFound, domain.ErrNothingToRefund:
		logger.FromContext(ctx).Warn("ignoring refund request", "error", err)
		return nil
	}
	return err
}

// Execute refunds the booking's payment
func (uc *RefundPayment) Execute(ctx context.Context, cmd *RefundPaymentCommand) (resp *RefundPaymentResponse, err error) {
	ctx, done := track(ctx, "refund_payment", attribute.String("booking_id", cmd.BookingID))
	defer func() { done(err) }()

	bookingID, err := models.NewID(cmd.BookingID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, "invalid booking ID")
	}

	unlock := uc.locker.Lock(bookingID.String())
	defer unlock()

	payment, err := uc.repository.FindByBookingID(ctx, bookingID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find payment")
	}
	if payment == nil {
		return nil, errors.Wrapf(domain.ErrPaymentNotFound, "booking %s", bookingID)
	}
	if cmd.TransactionID != "" && payment.TransactionID.String() != cmd.TransactionID {
		return nil, errors.Wrapf(ErrInvalidCommand, "transaction %s does not belong to booking %s", cmd.TransactionID, bookingID)
	}

	alreadyRefunded := payment.Status == domain.PaymentStatusRefunded
	if payment.Status == domain.PaymentStatusProcessed {
		if err := uc.refunder.Refund(ctx, payment); err != nil {
			return nil, errors.Wrap(err, "failed to return funds")
		}
	}

	if err := payment.Refund(cmd.Reason, uc.now()); err != nil {
		return nil, err
	}
	if !alreadyRefunded {
		if err := uc.repository.Save(ctx, payment); err != nil {
			return nil, errors.Wrap(err, "failed to record refund")
		}
		telemetry.RecordCounter(ctx, "payment_refunds_total", "Refunded payments", 1,
			attribute.String("payment_method", payment.Method.String()),
		)
	}

	if err := uc.publisher.Publish(ctx, payment.Events()...); err != nil {
		return nil, errors.Wrap(err, "failed to acknowledge refund")
	}
	payment.ClearEvents()

	logger.FromContext(ctx).Info("payment refunded",
		"booking_id", bookingID,
		"transaction_id", payment.TransactionID,
		"repeated", alreadyRefunded,
	)

	return &RefundPaymentResponse{
		BookingID:     payment.BookingID.String(),
		TransactionID: payment.TransactionID.String(),
		Amount:        payment.Amount,
		Status:        string(payment.Status),
	}, nil
}
