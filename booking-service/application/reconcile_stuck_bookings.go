package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/telemetry"
)

const timeoutReason = "Saga deadline exceeded"

// ReconcileResult summarizes one watchdog sweep
type ReconcileResult struct {
	Scanned       int `json:"scanned"`
	TimedOut      int `json:"timed_out"`
	Recompensated int `json:"recompensated"`
	Conflicts     int `json:"conflicts"`
}

// ReconcileStuckBookings fails bookings that made no progress before the
// deadline and compensates whatever they hold. Bookings that already ended but
// never got their compensation issued are compensated again.
type ReconcileStuckBookings struct {
	bookingRepository domain.BookingRepository
	eventStore        events.EventStore
	compensator       *CompensateBooking
	stuckAfter        time.Duration
	batchSize         int
	now               func() time.Time
}

// NewReconcileStuckBookings creates a new ReconcileStuckBookings use case
func NewReconcileStuckBookings(
	bookingRepository domain.BookingRepository,
	eventStore events.EventStore,
	compensator *CompensateBooking,
	stuckAfter time.Duration,
	batchSize int,
) *ReconcileStuckBookings {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReconcileStuckBookings{
		bookingRepository: bookingRepository,
		eventStore:        eventStore,
		compensator:       compensator,
		stuckAfter:        stuckAfter,
		batchSize:         batchSize,
		now:               time.Now,
	}
}

// Execute runs one sweep
func (uc *ReconcileStuckBookings) Execute(ctx context.Context) (result *ReconcileResult, err error) {
	ctx, done := track(ctx, "reconcile_stuck_bookings")
	defer func() { done(err) }()

	log := logger.FromContext(ctx)
	deadline := uc.now().Add(-uc.stuckAfter)

	stuck, err := uc.bookingRepository.FindStuck(ctx, deadline, uc.batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find stuck bookings")
	}

	result = &ReconcileResult{Scanned: len(stuck)}
	for _, booking := range stuck {
		blog := log.With("booking_id", booking.ID, "status", booking.Status)

		if booking.Status.IsTerminal() {
			if !booking.NeedsCompensation() {
				continue
			}
			compensation, err := uc.compensator.Compensate(ctx, booking)
			if err != nil {
				blog.Error("failed to resume compensation", "error", err)
				continue
			}
			if !compensation.Skipped {
				result.Recompensated++
				blog.Warn("pending compensation issued", "steps", compensation.Issued)
			}
			continue
		}

		lastProgress := booking.Timestamps.UpdatedAt
		message := fmt.Sprintf("no progress in %s since %s", booking.Status, lastProgress.Format(time.RFC3339))
		if !booking.Fail(domain.FailedStepTimeout, timeoutReason, message) {
			continue
		}

		if err := uc.bookingRepository.Save(ctx, booking); err != nil {
			if errors.Is(err, domain.ErrConcurrentModification) {
				// the saga moved on while we were sweeping
				result.Conflicts++
				continue
			}
			blog.Error("failed to time out booking", "error", err)
			continue
		}
		if err := uc.eventStore.Append(ctx, booking.Events()...); err != nil {
			blog.Error("failed to append booking events", "error", err)
		}
		booking.ClearEvents()
		result.TimedOut++
		blog.Warn("booking timed out", "last_progress", lastProgress)

		if _, err := uc.compensator.Compensate(ctx, booking); err != nil {
			blog.Error("failed to compensate timed out booking", "error", err)
		}
	}

	telemetry.RecordGauge(ctx, "booking_watchdog_stuck", "Stuck bookings found by the last sweep", float64(result.Scanned))
	telemetry.RecordCounter(ctx, "booking_watchdog_timeouts_total", "Bookings failed by the watchdog", int64(result.TimedOut),
		attribute.String("reason", string(domain.FailedStepTimeout)),
	)

	return result, nil
}
