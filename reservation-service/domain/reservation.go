package domain

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
	"github.com/draftea/travel-booking/shared/saga"
)

var (
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrDuplicateReservation = errors.New("reservation already recorded for booking")
	ErrInvalidTransition    = errors.New("invalid reservation transition")
	ErrStepNotRequested     = errors.New("step not requested by booking")
	ErrConcurrentUpdate     = errors.New("reservation was modified concurrently")
)

// ReservationStatus is the participant's local decision
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusFailed    ReservationStatus = "FAILED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// IsDecided reports whether the reserve decision has been recorded
func (s ReservationStatus) IsDecided() bool {
	return s != ReservationStatusPending
}

// ReservationRecord is the participant's idempotency anchor. There is at most
// one per booking and it is updated, never re-created.
type ReservationRecord struct {
	ID            models.ID
	BookingID     models.ID
	UserID        models.ID
	Step          events.Step
	ReservationID models.ID
	Status        ReservationStatus
	ErrorMessage  string
	Request       events.BookingRequest
	References    events.References
	CancelReason  string
	CancelledAt   *time.Time
	Timestamps    models.Timestamps
	Version       models.Version

	isNew  bool
	events []*events.Event
}

// NewReservationRecord claims the booking for this participant before the
// local decision runs
func NewReservationRecord(step events.Step, bookingID, userID models.ID, request events.BookingRequest, acquired events.References) (*ReservationRecord, error) {
	if !step.IsReservation() {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s is not a reservation step", step)
	}
	if bookingID.IsZero() {
		return nil, errors.New("booking id is required")
	}
	if !request.Requests(step) {
		return nil, errors.Wrapf(ErrStepNotRequested, "%s", step)
	}

	return &ReservationRecord{
		ID:         models.GenerateUUID(),
		BookingID:  bookingID,
		UserID:     userID,
		Step:       step,
		Status:     ReservationStatusPending,
		Request:    request,
		References: acquired,
		Timestamps: models.NewTimestamps(),
		Version:    models.NewVersion(),
		isNew:      true,
	}, nil
}

// Decide records the outcome of the local decision and its outcome event
func (r *ReservationRecord) Decide(outcome saga.Outcome) error {
	if r.Status != ReservationStatusPending {
		return errors.Wrapf(ErrInvalidTransition, "reservation is already %s", r.Status)
	}

	if outcome.Succeeded() {
		r.Status = ReservationStatusReserved
		r.ReservationID = outcome.ID
	} else {
		r.Status = ReservationStatusFailed
		r.ErrorMessage = outcome.Reason
	}
	r.Timestamps = r.Timestamps.Update()
	r.recordEvent(r.OutcomeEvent())
	return nil
}

// IsStale reports whether a PENDING claim was abandoned by whoever made it
func (r *ReservationRecord) IsStale(now time.Time, claimTimeout time.Duration) bool {
	return r.Status == ReservationStatusPending && now.Sub(r.Timestamps.UpdatedAt) > claimTimeout
}

// AcquiredReferences returns the booking references including this reservation
func (r *ReservationRecord) AcquiredReferences() events.References {
	if r.ReservationID.IsZero() {
		return r.References
	}
	return r.References.With(r.Step, r.ReservationID)
}

// OutcomeEvent rebuilds the event announcing the recorded decision. Its id only
// depends on the booking and the decision, so re-emitting it is safe. Cancelled
// and pending records have nothing to announce.
func (r *ReservationRecord) OutcomeEvent() *events.Event {
	var event *events.Event
	switch r.Status {
	case ReservationStatusReserved:
		event = events.NewDeterministicEvent(r.BookingID, events.ReservedTopic(r.Step), events.ReservedData{
			BookingID:     r.BookingID,
			UserID:        r.UserID,
			Step:          r.Step,
			ReservationID: r.ReservationID,
			Request:       r.Request,
			References:    r.AcquiredReferences(),
		})
	case ReservationStatusFailed:
		event = events.NewDeterministicEvent(r.BookingID, events.ReservationFailedTopic(r.Step), events.ReservationFailedData{
			BookingID:    r.BookingID,
			UserID:       r.UserID,
			Step:         r.Step,
			ErrorMessage: r.ErrorMessage,
		})
	default:
		return nil
	}

	return event.
		WithUserID(r.UserID).
		WithCorrelationID(r.BookingID).
		WithMetadata(events.MetadataSource, ServiceName(r.Step))
}

// Cancel applies a compensation command. It never fails: commands for
// reservations that are gone or never existed answer with an "already" outcome.
func (r *ReservationRecord) Cancel(reservationID models.ID, reason string, at time.Time) events.CancellationOutcome {
	var outcome events.CancellationOutcome
	switch {
	case r.Status == ReservationStatusFailed:
		outcome = events.CancellationOutcomeAlreadyFailed
	case r.Status == ReservationStatusPending || r.ReservationID != reservationID:
		outcome = events.CancellationOutcomeNotFound
	case r.Status == ReservationStatusCancelled:
		outcome = events.CancellationOutcomeAlreadyCancelled
	default:
		at = at.UTC()
		r.Status = ReservationStatusCancelled
		r.CancelReason = reason
		r.CancelledAt = &at
		r.Timestamps = r.Timestamps.Update()
		outcome = events.CancellationOutcomeCancelled
	}

	r.recordEvent(CancellationAck(r.Step, r.BookingID, r.UserID, reservationID, outcome))
	return outcome
}

// CancellationAck builds the acknowledgment of a cancellation command
func CancellationAck(step events.Step, bookingID, userID, reservationID models.ID, outcome events.CancellationOutcome) *events.Event {
	return events.NewDeterministicEvent(bookingID, events.ReservationCancellationAcknowledgedEvent, events.CancellationAcknowledgedData{
		BookingID:     bookingID,
		UserID:        userID,
		Step:          step,
		ReservationID: reservationID,
		Outcome:       outcome,
	}, string(step), reservationID.String(), string(outcome)).
		WithUserID(userID).
		WithCorrelationID(bookingID).
		WithMetadata(events.MetadataSource, ServiceName(step))
}

// IsNew reports whether the record has never been persisted
func (r *ReservationRecord) IsNew() bool {
	return r.isNew
}

// MarkPersisted is called by repositories after a successful save
func (r *ReservationRecord) MarkPersisted() {
	r.isNew = false
}

// Events returns recorded events
func (r *ReservationRecord) Events() []*events.Event {
	return r.events
}

// ClearEvents clears recorded events
func (r *ReservationRecord) ClearEvents() {
	r.events = nil
}

func (r *ReservationRecord) recordEvent(event *events.Event) {
	if event != nil {
		r.events = append(r.events, event)
	}
}

// ServiceName is the name the participant of step publishes under
func ServiceName(step events.Step) string {
	switch step {
	case events.StepFlight:
		return "flight-service"
	case events.StepHotel:
		return "hotel-service"
	case events.StepCar:
		return "car-service"
	}
	return "reservation-service"
}

// ReservationRepository persists one record per booking and step
type ReservationRepository interface {
	// Save inserts new records, returning ErrDuplicateReservation when the
	// booking already has one, and updates existing ones with optimistic locking
	Save(ctx context.Context, record *ReservationRecord) error
	FindByBookingID(ctx context.Context, bookingID models.ID) (*ReservationRecord, error)
}
