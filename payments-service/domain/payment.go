package domain

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
	"github.com/draftea/travel-booking/shared/saga"
)

// ServiceName is the name the payment participant publishes under
const ServiceName = "payments-service"

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrDuplicatePayment    = errors.New("payment already recorded for booking")
	ErrInvalidTransition   = errors.New("invalid payment transition")
	ErrConcurrentUpdate    = errors.New("payment was modified concurrently")
	ErrNothingToRefund     = errors.New("payment was never charged")
	ErrInvalidPaymentInput = errors.New("invalid payment")
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusProcessed PaymentStatus = "PROCESSED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// IsDecided reports whether the charge decision has been recorded
func (s PaymentStatus) IsDecided() bool {
	return s != PaymentStatusPending
}

// Payment is the charge of one booking. There is at most one per booking.
type Payment struct {
	ID            models.ID
	BookingID     models.ID
	UserID        models.ID
	TransactionID models.ID
	Amount        models.Money
	Method        PaymentMethodType
	Status        PaymentStatus
	ErrorMessage  string
	References    events.References
	RefundReason  string
	RefundedAt    *time.Time
	Timestamps    models.Timestamps
	Version       models.Version

	isNew  bool
	events []*events.Event
}

// CreatePayment claims the booking's charge before the decision runs
func CreatePayment(bookingID, userID models.ID, payment events.PaymentRequest, references events.References) (*Payment, error) {
	if bookingID.IsZero() {
		return nil, errors.Wrap(ErrInvalidPaymentInput, "booking id is required")
	}
	if !payment.Amount.IsPositive() {
		return nil, errors.Wrap(ErrInvalidPaymentInput, "amount must be positive")
	}

	method, err := NewPaymentMethodType(payment.PaymentMethod)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPaymentInput, err.Error())
	}

	return &Payment{
		ID:         models.GenerateUUID(),
		BookingID:  bookingID,
		UserID:     userID,
		Amount:     payment.Amount,
		Method:     *method,
		Status:     PaymentStatusPending,
		References: references,
		Timestamps: models.NewTimestamps(),
		Version:    models.NewVersion(),
		isNew:      true,
	}, nil
}

// Decide records the charge outcome and the events announcing it
func (p *Payment) Decide(outcome saga.Outcome) error {
	if p.Status != PaymentStatusPending {
		return errors.Wrapf(ErrInvalidTransition, "payment is already %s", p.Status)
	}

	if outcome.Succeeded() {
		p.Status = PaymentStatusProcessed
		p.TransactionID = outcome.ID
	} else {
		p.Status = PaymentStatusFailed
		p.ErrorMessage = outcome.Reason
	}
	p.Timestamps = p.Timestamps.Update()
	p.events = append(p.events, p.OutcomeEvents()...)
	return nil
}

// IsStale reports whether a PENDING claim was abandoned by whoever made it
func (p *Payment) IsStale(now time.Time, claimTimeout time.Duration) bool {
	return p.Status == PaymentStatusPending && now.Sub(p.Timestamps.UpdatedAt) > claimTimeout
}

// OutcomeEvents rebuilds the events announcing the recorded decision: processed
// followed by completed, or failed. Ids only depend on the booking. Refunded
// payments announce nothing further.
func (p *Payment) OutcomeEvents() []*events.Event {
	switch p.Status {
	case PaymentStatusProcessed:
		processed := events.NewDeterministicEvent(p.BookingID, events.PaymentProcessedEvent, events.PaymentProcessedData{
			BookingID:     p.BookingID,
			UserID:        p.UserID,
			TransactionID: p.TransactionID,
			Amount:        p.Amount,
			PaymentMethod: p.Method.String(),
			References:    p.References,
		})
		completed := events.NewDeterministicEvent(p.BookingID, events.BookingCompletedEvent, events.BookingCompletedData{
			BookingID:            p.BookingID,
			UserID:               p.UserID,
			References:           p.References,
			PaymentTransactionID: p.TransactionID,
		})
		return []*events.Event{p.stamp(processed), p.stamp(completed)}

	case PaymentStatusFailed:
		failed := events.NewDeterministicEvent(p.BookingID, events.PaymentFailedEvent, events.PaymentFailedData{
			BookingID:    p.BookingID,
			UserID:       p.UserID,
			ErrorMessage: p.ErrorMessage,
		})
		return []*events.Event{p.stamp(failed)}
	}
	return nil
}

// Refund returns a processed charge. Refunding twice is not an error: the
// second call records the same acknowledgment again.
func (p *Payment) Refund(reason string, at time.Time) error {
	switch p.Status {
	case PaymentStatusRefunded:
	case PaymentStatusProcessed:
		at = at.UTC()
		p.Status = PaymentStatusRefunded
		p.RefundReason = reason
		p.RefundedAt = &at
		p.Timestamps = p.Timestamps.Update()
	default:
		return errors.Wrapf(ErrNothingToRefund, "payment is %s", p.Status)
	}

	p.events = append(p.events, p.RefundedEvent())
	return nil
}

// RefundedEvent acknowledges the refund
func (p *Payment) RefundedEvent() *events.Event {
	return p.stamp(events.NewDeterministicEvent(p.BookingID, events.PaymentRefundedEvent, events.PaymentRefundedData{
		BookingID:     p.BookingID,
		UserID:        p.UserID,
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
	}))
}

func (p *Payment) stamp(event *events.Event) *events.Event {
	return event.
		WithUserID(p.UserID).
		WithCorrelationID(p.BookingID).
		WithMetadata(events.MetadataSource, ServiceName)
}

// IsNew reports whether the payment has never been persisted
func (p *Payment) IsNew() bool {
	return p.isNew
}

// MarkPersisted is called by repositories after a successful save
func (p *Payment) MarkPersisted() {
	p.isNew = false
}

// Events returns domain events
func (p *Payment) Events() []*events.Event {
	return p.events
}

// ClearEvents clears domain events
func (p *Payment) ClearEvents() {
	p.events = nil
}

// PaymentRepository persists one payment per booking
type PaymentRepository interface {
	// Save inserts new payments, returning ErrDuplicatePayment when the booking
	// already has one, and updates existing ones with optimistic locking
	Save(ctx context.Context, payment *Payment) error
	FindByBookingID(ctx context.Context, bookingID models.ID) (*Payment, error)
}
