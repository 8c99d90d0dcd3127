package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/telemetry"
)

// ErrCompensationIncomplete is returned when a cancellation command could not be published
var ErrCompensationIncomplete = errors.New("compensation incomplete")

// CompensationResult lists the cancellation commands issued for a booking
type CompensationResult struct {
	BookingID string        `json:"booking_id"`
	Issued    []events.Step `json:"issued"`
	Skipped   bool          `json:"skipped"`
}

// CompensateBooking is the compensation coordinator. It walks the references
// held by a failed or cancelled booking and asks each participant to cancel,
// newest reservation first. It never waits for acknowledgments.
type CompensateBooking struct {
	bookingRepository domain.BookingRepository
	eventStore        events.EventStore
	eventPublisher    events.Publisher
	now               func() time.Time
}

// NewCompensateBooking creates a new CompensateBooking use case
func NewCompensateBooking(
	bookingRepository domain.BookingRepository,
	eventStore events.EventStore,
	eventPublisher events.Publisher,
) *CompensateBooking {
	return &CompensateBooking{
		bookingRepository: bookingRepository,
		eventStore:        eventStore,
		eventPublisher:    eventPublisher,
		now:               time.Now,
	}
}

// Handle reacts to any failure event of the saga
func (uc *CompensateBooking) Handle(ctx context.Context, event *events.Event) error {
	booking, err := uc.bookingRepository.FindByID(ctx, event.AggregateID)
	if err != nil {
		return errors.Wrap(err, "failed to find booking")
	}
	if booking == nil {
		logger.FromContext(ctx).Warn("failure event for unknown booking")
		return nil
	}

	_, err = uc.Compensate(ctx, booking)
	return err
}

// Compensate issues the cancellation commands of a booking once. When a
// command cannot be published the booking is left unstamped and the error is
// returned, so a redelivery or the watchdog issues the whole plan again.
// Participants treat repeated cancels as no-ops.
func (uc *CompensateBooking) Compensate(ctx context.Context, booking *domain.Booking) (result *CompensationResult, err error) {
	ctx, done := track(ctx, "compensate_booking", attribute.String("booking_id", booking.ID.String()))
	defer func() { done(err) }()

	log := logger.FromContext(ctx).With("booking_id", booking.ID, "status", booking.Status)
	result = &CompensationResult{BookingID: booking.ID.String()}

	if !booking.NeedsCompensation() {
		log.Debug("compensation not needed")
		result.Skipped = true
		return result, nil
	}

	reason := booking.FailureReason
	if reason == "" {
		reason = booking.CancellationReason
	}
	if reason == "" {
		reason = "Booking " + string(booking.Status)
	}

	var failed []events.Step
	for _, step := range booking.CompensationPlan() {
		ref := booking.Reference(step)
		command := cancellationCommand(booking, step, ref.ID, reason)
		if err := uc.eventPublisher.Publish(ctx, command); err != nil {
			log.Error("failed to publish cancellation command", "step", step, "reservation_id", ref.ID, "error", err)
			failed = append(failed, step)
			continue
		}
		result.Issued = append(result.Issued, step)
		telemetry.RecordCounter(ctx, "booking_compensations_total", "Cancellation commands issued", 1,
			attribute.String("step", string(step)),
		)
	}
	if len(failed) > 0 {
		return result, errors.Wrapf(ErrCompensationIncomplete, "steps %v", failed)
	}

	booking.MarkCompensationIssued(uc.now())
	if err := uc.bookingRepository.Save(ctx, booking); err != nil {
		return nil, errors.Wrap(err, "failed to save booking")
	}
	if changes := booking.Events(); len(changes) > 0 {
		if err := uc.eventStore.Append(ctx, changes...); err != nil {
			log.Error("failed to append booking events", "error", err)
		}
	}
	booking.ClearEvents()

	log.Info("compensation issued", "steps", result.Issued)
	return result, nil
}
