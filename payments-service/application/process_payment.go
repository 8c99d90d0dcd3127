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

var (
	// ErrInvalidCommand marks requests that can never succeed on redelivery
	ErrInvalidCommand = errors.New("invalid command")
	// ErrDecisionInProgress is returned while another consumer holds a fresh claim
	ErrDecisionInProgress = errors.New("payment decision in progress")
)

// DefaultClaimTimeout is how long a PENDING claim is honoured before another
// delivery may take over the charge
const DefaultClaimTimeout = time.Minute

// ProcessPaymentCommand asks for the charge of a booking
type ProcessPaymentCommand struct {
	BookingID  string                `json:"booking_id"`
	UserID     string                `json:"user_id"`
	Payment    events.PaymentRequest `json:"payment"`
	References events.References     `json:"references"`
}

// ProcessPaymentResult describes the recorded decision
type ProcessPaymentResult struct {
	BookingID     string `json:"booking_id"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	Duplicate     bool   `json:"duplicate"`
}

// ProcessPayment charges a booking at most once
type ProcessPayment struct {
	repository   domain.PaymentRepository
	charger      domain.Charger
	publisher    events.Publisher
	locker       *saga.KeyedLocker
	claimTimeout time.Duration
	now          func() time.Time
}

// NewProcessPayment creates a new ProcessPayment use case
func NewProcessPayment(repository domain.PaymentRepository, charger domain.Charger, publisher events.Publisher) *ProcessPayment {
	return &ProcessPayment{
		repository:   repository,
		charger:      charger,
		publisher:    publisher,
		locker:       saga.NewKeyedLocker(),
		claimTimeout: DefaultClaimTimeout,
		now:          time.Now,
	}
}

// Handle implements events.EventHandler for payment.requested
func (uc *ProcessPayment) Handle(ctx context.Context, event *events.Event) error {
	var data events.PaymentRequestedData
	if err := event.UnmarshalPayload(&data); err != nil {
		logger.FromContext(ctx).Error("dropping malformed payment request", "error", err)
		return nil
	}

	bookingID := data.BookingID
	if bookingID.IsZero() {
		bookingID = event.AggregateID
	}

	_, err := uc.Execute(ctx, &ProcessPaymentCommand{
		BookingID:  bookingID.String(),
		UserID:     data.UserID.String(),
		Payment:    data.Request.Payment,
		References: data.References,
	})
	if errors.Is(err, ErrInvalidCommand) {
		logger.FromContext(ctx).Warn("ignoring payment request", "error", err)
		return nil
	}
	return err
}

// Execute records the charge decision, or re-emits the one already recorded
func (uc *ProcessPayment) Execute(ctx context.Context, cmd *ProcessPaymentCommand) (result *ProcessPaymentResult, err error) {
	ctx, done := track(ctx, "process_payment",
		attribute.String("booking_id", cmd.BookingID),
		attribute.String("payment_method", cmd.Payment.PaymentMethod),
	)
	defer func() { done(err) }()

	bookingID, err := models.NewID(cmd.BookingID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, "invalid booking ID")
	}

	unlock := uc.locker.Lock(bookingID.String())
	defer unlock()

	log := logger.FromContext(ctx).With("booking_id", bookingID)

	payment, err := uc.repository.FindByBookingID(ctx, bookingID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find payment")
	}

	claimed := false
	if payment == nil {
		payment, err = domain.CreatePayment(bookingID, models.ID(cmd.UserID), cmd.Payment, cmd.References)
		if errors.Is(err, domain.ErrInvalidPaymentInput) {
			// nothing can be charged; the saga still needs its failure
			log.Warn("rejecting payment request", "error", err)
			return uc.reject(ctx, bookingID, models.ID(cmd.UserID), err)
		}
		if err != nil {
			return nil, err
		}

		payment, claimed, err = uc.claim(ctx, payment)
		if err != nil {
			return nil, err
		}
	}

	if payment.Status.IsDecided() {
		log.Info("payment already decided, re-emitting outcome", "status", payment.Status)
		if err := uc.publish(ctx, payment.OutcomeEvents()...); err != nil {
			return nil, err
		}
		return toProcessPaymentResult(payment, true), nil
	}

	if !claimed && !payment.IsStale(uc.now(), uc.claimTimeout) {
		return nil, errors.Wrapf(ErrDecisionInProgress, "booking %s", bookingID)
	}

	outcome, err := uc.charger.Charge(ctx, domain.ChargeRequest{
		PaymentID: payment.ID,
		BookingID: payment.BookingID,
		UserID:    payment.UserID,
		Amount:    payment.Amount,
		Method:    payment.Method,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to charge payment")
	}

	if err := payment.Decide(outcome); err != nil {
		return nil, err
	}
	if err := uc.repository.Save(ctx, payment); err != nil {
		return nil, errors.Wrap(err, "failed to record payment decision")
	}

	telemetry.RecordCounter(ctx, "payment_outcomes_total", "Charge decisions by outcome", 1,
		attribute.String("status", string(payment.Status)),
		attribute.String("payment_method", payment.Method.String()),
	)
	log.Info("payment decided", "status", payment.Status, "transaction_id", payment.TransactionID)

	if err := uc.publish(ctx, payment.Events()...); err != nil {
		return nil, err
	}
	payment.ClearEvents()

	return toProcessPaymentResult(payment, false), nil
}

// claim inserts the PENDING payment. Losing the insert race returns the winner's.
func (uc *ProcessPayment) claim(ctx context.Context, payment *domain.Payment) (*domain.Payment, bool, error) {
	err := uc.repository.Save(ctx, payment)
	if err == nil {
		return payment, true, nil
	}
	if !errors.Is(err, domain.ErrDuplicatePayment) {
		return nil, false, errors.Wrap(err, "failed to claim payment")
	}

	existing, err := uc.repository.FindByBookingID(ctx, payment.BookingID)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to find payment")
	}
	if existing == nil {
		return nil, false, errors.Wrapf(domain.ErrPaymentNotFound, "booking %s lost its claim", payment.BookingID)
	}
	return existing, false, nil
}

// reject announces a payment that could not even be attempted
func (uc *ProcessPayment) reject(ctx context.Context, bookingID, userID models.ID, cause error) (*ProcessPaymentResult, error) {
	failed := events.NewDeterministicEvent(bookingID, events.PaymentFailedEvent, events.PaymentFailedData{
		BookingID:    bookingID,
		UserID:       userID,
		ErrorMessage: domain.PaymentFailedReason,
	}).
		WithUserID(userID).
		WithCorrelationID(bookingID).
		WithMetadata(events.MetadataSource, domain.ServiceName)

	if err := uc.publish(ctx, failed); err != nil {
		return nil, err
	}
	return &ProcessPaymentResult{
		BookingID:    bookingID.String(),
		Status:       string(domain.PaymentStatusFailed),
		ErrorMessage: cause.Error(),
	}, nil
}

func (uc *ProcessPayment) publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}
	if err := uc.publisher.Publish(ctx, evts...); err != nil {
		return errors.Wrap(err, "failed to publish payment outcome")
	}
	return nil
}

func toProcessPaymentResult(payment *domain.Payment, duplicate bool) *ProcessPaymentResult {
	return &ProcessPaymentResult{
		BookingID:     payment.BookingID.String(),
		Status:        string(payment.Status),
		TransactionID: payment.TransactionID.String(),
		ErrorMessage:  payment.ErrorMessage,
		Duplicate:     duplicate,
	}
}
