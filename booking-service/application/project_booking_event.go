package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/telemetry"
)

const lateReservationReason = "Reservation arrived after the booking ended"

// ProjectBookingEvent keeps the booking read model in step with the saga.
// Every event is appended to the saga event log and applied idempotently.
type ProjectBookingEvent struct {
	bookingRepository domain.BookingRepository
	eventStore        events.EventStore
	eventPublisher    events.Publisher
}

// NewProjectBookingEvent creates a new ProjectBookingEvent use case
func NewProjectBookingEvent(
	bookingRepository domain.BookingRepository,
	eventStore events.EventStore,
	eventPublisher events.Publisher,
) *ProjectBookingEvent {
	return &ProjectBookingEvent{
		bookingRepository: bookingRepository,
		eventStore:        eventStore,
		eventPublisher:    eventPublisher,
	}
}

// Handle implements events.EventHandler
func (uc *ProjectBookingEvent) Handle(ctx context.Context, event *events.Event) error {
	return uc.Execute(ctx, event)
}

// Execute applies one saga event to its booking
func (uc *ProjectBookingEvent) Execute(ctx context.Context, event *events.Event) (err error) {
	ctx, done := track(ctx, "project_booking_event", attribute.String("event_type", event.EventType))
	defer func() { done(err) }()

	if err := uc.eventStore.Append(ctx, event); err != nil {
		return errors.Wrap(err, "failed to append event")
	}

	log := logger.FromContext(ctx)

	booking, err := uc.bookingRepository.FindByID(ctx, event.AggregateID)
	if err != nil {
		return errors.Wrap(err, "failed to find booking")
	}
	if booking == nil {
		log.Warn("event for unknown booking")
		return nil
	}

	followUps, err := uc.apply(booking, event)
	if err != nil {
		return err
	}

	if booking.IsDirty() {
		// status changes carry deterministic ids, so a redelivery after a
		// failed save appends the same rows again
		if changes := booking.Events(); len(changes) > 0 {
			if err := uc.eventStore.Append(ctx, changes...); err != nil {
				return errors.Wrap(err, "failed to append status changes")
			}
		}
		if err := uc.bookingRepository.Save(ctx, booking); err != nil {
			return errors.Wrap(err, "failed to save booking")
		}
		for _, e := range booking.Events() {
			if change, ok := e.Data.(events.BookingStatusChangedData); ok {
				telemetry.RecordCounter(ctx, "booking_transitions_total", "Booking status transitions", 1,
					attribute.String("to", change.To),
					attribute.String("cause", event.EventType),
				)
			}
		}
		booking.ClearEvents()
	}

	if len(followUps) > 0 {
		if err := uc.eventPublisher.Publish(ctx, followUps...); err != nil {
			return errors.Wrap(err, "failed to publish follow up commands")
		}
		for _, f := range followUps {
			log.Warn("late event undone", "command", f.EventType)
		}
	}

	return nil
}

// apply mutates the booking and returns the commands needed to undo side
// effects that arrived after the booking ended
func (uc *ProjectBookingEvent) apply(booking *domain.Booking, event *events.Event) ([]*events.Event, error) {
	switch event.EventType {
	case events.FlightReservedEvent, events.HotelReservedEvent, events.CarReservedEvent:
		var data events.ReservedData
		if err := event.UnmarshalPayload(&data); err != nil {
			return nil, errors.Wrap(err, "invalid reserved payload")
		}
		step, _ := events.StepFromTopic(event.Topic)
		_, err := booking.RecordReservation(step, data.ReservationID)
		switch {
		case err == nil:
			return nil, nil
		case errors.Is(err, domain.ErrBookingTerminal),
			errors.Is(err, domain.ErrStepNotRequested),
			errors.Is(err, domain.ErrReferenceConflict):
			return []*events.Event{cancellationCommand(booking, step, data.ReservationID, lateReservationReason)}, nil
		}
		return nil, err

	case events.FlightReservationFailedEvent, events.HotelReservationFailedEvent, events.CarReservationFailedEvent:
		var data events.ReservationFailedData
		if err := event.UnmarshalPayload(&data); err != nil {
			return nil, errors.Wrap(err, "invalid reservation failed payload")
		}
		step, _ := events.StepFromTopic(event.Topic)
		failedStep, reason := domain.FailureFor(step)
		booking.Fail(failedStep, reason, data.ErrorMessage)
		return nil, nil

	case events.PaymentFailedEvent:
		var data events.PaymentFailedData
		if err := event.UnmarshalPayload(&data); err != nil {
			return nil, errors.Wrap(err, "invalid payment failed payload")
		}
		failedStep, reason := domain.FailureFor(events.StepPayment)
		booking.Fail(failedStep, reason, data.ErrorMessage)
		return nil, nil

	case events.PaymentProcessedEvent:
		var data events.PaymentProcessedData
		if err := event.UnmarshalPayload(&data); err != nil {
			return nil, errors.Wrap(err, "invalid payment processed payload")
		}
		_, err := booking.Confirm(data.References, data.TransactionID, event.EventType)
		if errors.Is(err, domain.ErrBookingTerminal) || errors.Is(err, domain.ErrReferenceConflict) {
			booking.RequestRefund(data.TransactionID)
			return []*events.Event{refundCommand(booking, data.TransactionID, lateReservationReason)}, nil
		}
		return nil, err

	case events.BookingCompletedEvent:
		var data events.BookingCompletedData
		if err := event.UnmarshalPayload(&data); err != nil {
			return nil, errors.Wrap(err, "invalid booking completed payload")
		}
		_, err := booking.Confirm(data.References, data.PaymentTransactionID, event.EventType)
		if errors.Is(err, domain.ErrBookingTerminal) || errors.Is(err, domain.ErrReferenceConflict) {
			// the refund is requested from payment.processed
			return nil, nil
		}
		return nil, err

	case events.ReservationCancellationAcknowledgedEvent:
		var data events.CancellationAcknowledgedData
		if err := event.UnmarshalPayload(&data); err != nil {
			return nil, errors.Wrap(err, "invalid cancellation acknowledgment payload")
		}
		switch data.Outcome {
		case events.CancellationOutcomeCancelled, events.CancellationOutcomeAlreadyCancelled:
			booking.MarkReservationCancelled(data.Step, data.ReservationID, event.Timestamp)
		}
		return nil, nil

	case events.PaymentRefundedEvent:
		var data events.PaymentRefundedData
		if err := event.UnmarshalPayload(&data); err != nil {
			return nil, errors.Wrap(err, "invalid payment refunded payload")
		}
		booking.MarkRefunded(data.TransactionID, event.Timestamp)
		return nil, nil
	}

	return nil, nil
}
