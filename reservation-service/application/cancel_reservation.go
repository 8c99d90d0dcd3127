package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/draftea/travel-booking/reservation-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/models"
	"github.com/draftea/travel-booking/shared/saga"
	"github.com/draftea/travel-booking/shared/telemetry"
)

// CancelReservationCommand is the compensation command for one step
type CancelReservationCommand struct {
	BookingID     string `json:"booking_id"`
	UserID        string `json:"user_id"`
	ReservationID string `json:"reservation_id"`
	Reason        string `json:"reason"`
}

// CancelReservation releases a reservation and always acknowledges the command
type CancelReservation struct {
	step       events.Step
	repository domain.ReservationRepository
	publisher  events.Publisher
	locker     *saga.KeyedLocker
	now        func() time.Time
}

// NewCancelReservation creates a new CancelReservation use case for step
func NewCancelReservation(step events.Step, repository domain.ReservationRepository, publisher events.Publisher) *CancelReservation {
	return &CancelReservation{
		step:       step,
		repository: repository,
		publisher:  publisher,
		locker:     saga.NewKeyedLocker(),
		now:        time.Now,
	}
}

// Handle implements events.EventHandler for the step's cancellation command
func (uc *CancelReservation) Handle(ctx context.Context, event *events.Event) error {
	var data events.CancellationRequestedData
	if err := event.UnmarshalPayload(&data); err != nil {
		logger.FromContext(ctx).Error("dropping malformed cancellation command", "error", err)
		return nil
	}
	if data.Step != "" && data.Step != uc.step {
		return nil
	}

	bookingID := data.BookingID
	if bookingID.IsZero() {
		bookingID = event.AggregateID
	}

	_, err := uc.Execute(ctx, &CancelReservationCommand{
		BookingID:     bookingID.String(),
		UserID:        data.UserID.String(),
		ReservationID: data.ReservationID.String(),
		Reason:        data.Reason,
	})
	if errors.Is(err, ErrInvalidCommand) {
		logger.FromContext(ctx).Warn("ignoring cancellation command", "error", err)
		return nil
	}
	return err
}

// Execute applies the cancellation and publishes its acknowledgment
func (uc *CancelReservation) Execute(ctx context.Context, cmd *CancelReservationCommand) (outcome events.CancellationOutcome, err error) {
	ctx, done := track(ctx, "cancel_reservation",
		attribute.String("step", string(uc.step)),
		attribute.String("booking_id", cmd.BookingID),
	)
	defer func() { done(err) }()

	bookingID, err := models.NewID(cmd.BookingID)
	if err != nil {
		return "", errors.Wrap(ErrInvalidCommand, "invalid booking ID")
	}
	reservationID := models.ID(cmd.ReservationID)

	unlock := uc.locker.Lock(bookingID.String())
	defer unlock()

	record, err := uc.repository.FindByBookingID(ctx, bookingID)
	if err != nil {
		return "", errors.Wrap(err, "failed to find reservation")
	}

	var acks []*events.Event
	if record == nil {
		outcome = events.CancellationOutcomeNotFound
		acks = append(acks, domain.CancellationAck(uc.step, bookingID, models.ID(cmd.UserID), reservationID, outcome))
	} else {
		outcome = record.Cancel(reservationID, cmd.Reason, uc.now())
		if outcome == events.CancellationOutcomeCancelled {
			if err := uc.repository.Save(ctx, record); err != nil {
				return "", errors.Wrap(err, "failed to record cancellation")
			}
		}
		acks = record.Events()
	}

	if err := uc.publisher.Publish(ctx, acks...); err != nil {
		return "", errors.Wrap(err, "failed to acknowledge cancellation")
	}
	if record != nil {
		record.ClearEvents()
	}

	telemetry.RecordCounter(ctx, "reservation_cancellations_total", "Cancellation commands by outcome", 1,
		attribute.String("step", string(uc.step)),
		attribute.String("outcome", string(outcome)),
	)
	logger.FromContext(ctx).Info("cancellation acknowledged",
		"booking_id", bookingID,
		"step", uc.step,
		"reservation_id", reservationID,
		"outcome", outcome,
	)

	return outcome, nil
}
