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
	ErrBookingNotFound        = errors.New("booking not found")
	ErrInvalidTransition      = errors.New("invalid booking transition")
	ErrBookingTerminal        = errors.New("booking is in a terminal state")
	ErrStepNotRequested       = errors.New("step was not requested by the booking")
	ErrReferenceConflict      = errors.New("reference already set to a different id")
	ErrConcurrentModification = errors.New("booking was modified concurrently")
)

// BookingStatus represents the saga status of a booking
type BookingStatus string

const (
	BookingStatusPending          BookingStatus = "PENDING"
	BookingStatusFlightReserved   BookingStatus = "FLIGHT_RESERVED"
	BookingStatusHotelReserved    BookingStatus = "HOTEL_RESERVED"
	BookingStatusCarReserved      BookingStatus = "CAR_RESERVED"
	BookingStatusPaymentProcessed BookingStatus = "PAYMENT_PROCESSED"
	BookingStatusConfirmed        BookingStatus = "CONFIRMED"
	BookingStatusFailed           BookingStatus = "FAILED"
	BookingStatusCancelled        BookingStatus = "CANCELLED"
)

// forwardRank orders the non-failure statuses; status never moves to a lower rank
var forwardRank = map[BookingStatus]int{
	BookingStatusPending:          0,
	BookingStatusFlightReserved:   1,
	BookingStatusHotelReserved:    2,
	BookingStatusCarReserved:      3,
	BookingStatusPaymentProcessed: 4,
	BookingStatusConfirmed:        5,
}

var reservedStatus = map[events.Step]BookingStatus{
	events.StepFlight: BookingStatusFlightReserved,
	events.StepHotel:  BookingStatusHotelReserved,
	events.StepCar:    BookingStatusCarReserved,
}

// CompensableStatuses are the terminal statuses that require compensation
var CompensableStatuses = []BookingStatus{
	BookingStatusFailed,
	BookingStatusCancelled,
}

// NonTerminalStatuses are the statuses the watchdog times out
var NonTerminalStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusFlightReserved,
	BookingStatusHotelReserved,
	BookingStatusCarReserved,
	BookingStatusPaymentProcessed,
}

// IsTerminal reports whether no forward transition is possible
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusConfirmed || s == BookingStatusFailed || s == BookingStatusCancelled
}

// FailedStep names the step that failed a booking
type FailedStep string

const (
	FailedStepFlight  FailedStep = "FLIGHT_RESERVATION"
	FailedStepHotel   FailedStep = "HOTEL_RESERVATION"
	FailedStepCar     FailedStep = "CAR_RESERVATION"
	FailedStepPayment FailedStep = "PAYMENT"
	FailedStepTimeout FailedStep = "TIMEOUT"
)

// FailureFor maps a saga step to the recorded failed step and reason
func FailureFor(step events.Step) (FailedStep, string) {
	switch step {
	case events.StepFlight:
		return FailedStepFlight, "Flight reservation failed"
	case events.StepHotel:
		return FailedStepHotel, "Hotel reservation failed"
	case events.StepCar:
		return FailedStepCar, "Car reservation failed"
	}
	return FailedStepPayment, "Payment failed"
}

// ReservationRef is a reservation held for the booking. Compensation marks it
// cancelled but keeps the id.
type ReservationRef struct {
	ID          models.ID  `json:"id,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func (r ReservationRef) IsSet() bool {
	return !r.ID.IsZero()
}

func (r ReservationRef) IsCancelled() bool {
	return r.CancelledAt != nil
}

// Booking is the booking saga state, rebuilt from the saga events
type Booking struct {
	ID                   models.ID
	UserID               models.ID
	Status               BookingStatus
	Request              events.BookingRequest
	Flight               ReservationRef
	Hotel                ReservationRef
	Car                  ReservationRef
	PaymentTransactionID models.ID
	RefundTransactionID  models.ID
	PaymentRefundedAt    *time.Time
	FailedStep           FailedStep
	FailureReason        string
	ErrorMessage         string
	CancellationReason   string
	TotalAmount          models.Money
	CompensationIssuedAt *time.Time
	Timestamps           models.Timestamps
	Version              models.Version

	isNew  bool
	dirty  bool
	events []*events.Event
}

// CreateBooking starts a booking in PENDING and records BookingCreated
func CreateBooking(userID models.ID, request events.BookingRequest) (*Booking, error) {
	if userID.IsZero() {
		return nil, errors.New("user id is required")
	}
	if err := ValidateRequest(request); err != nil {
		return nil, err
	}

	booking := &Booking{
		ID:          models.GenerateUUID(),
		UserID:      userID,
		Status:      BookingStatusPending,
		Request:     request,
		TotalAmount: request.Payment.Amount,
		Timestamps:  models.NewTimestamps(),
		Version:     models.NewVersion(),
		isNew:       true,
		dirty:       true,
	}

	booking.recordStatusChange("", BookingStatusPending, events.BookingCreatedEvent)
	booking.recordEvent(events.NewDeterministicEvent(booking.ID, events.BookingCreatedEvent, events.BookingCreatedData{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		Request:   booking.Request,
	}).WithUserID(userID).WithCorrelationID(booking.ID))

	return booking, nil
}

// ValidateRequest checks the mandatory parts of a booking request
func ValidateRequest(request events.BookingRequest) error {
	if request.Flight == nil {
		return errors.New("flight is required")
	}
	if request.Flight.FlightID == "" {
		return errors.New("flight id is required")
	}
	if request.Hotel != nil && request.Hotel.HotelID == "" {
		return errors.New("hotel id is required")
	}
	if request.Car != nil && request.Car.CarID == "" {
		return errors.New("car id is required")
	}
	if request.Payment.PaymentMethod == "" {
		return errors.New("payment method is required")
	}
	if !request.Payment.Amount.IsPositive() {
		return errors.New("payment amount must be positive")
	}
	if request.Payment.Amount.Currency == "" {
		return errors.New("currency is required")
	}
	return nil
}

// Reference returns the reservation held for a step
func (b *Booking) Reference(step events.Step) ReservationRef {
	switch step {
	case events.StepFlight:
		return b.Flight
	case events.StepHotel:
		return b.Hotel
	case events.StepCar:
		return b.Car
	}
	return ReservationRef{}
}

func (b *Booking) setReference(step events.Step, ref ReservationRef) {
	switch step {
	case events.StepFlight:
		b.Flight = ref
	case events.StepHotel:
		b.Hotel = ref
	case events.StepCar:
		b.Car = ref
	}
}

// References returns the reservation ids acquired so far
func (b *Booking) References() events.References {
	return events.References{
		Flight: b.Flight.ID,
		Hotel:  b.Hotel.ID,
		Car:    b.Car.ID,
	}
}

// RecordReservation stores the reservation id of a step and moves the status
// forward. Re-recording the same id is a no-op and reports false.
func (b *Booking) RecordReservation(step events.Step, reservationID models.ID) (bool, error) {
	if !step.IsReservation() {
		return false, errors.Wrapf(ErrInvalidTransition, "%s is not a reservation step", step)
	}
	if reservationID.IsZero() {
		return false, errors.New("reservation id is required")
	}

	ref := b.Reference(step)
	if ref.ID == reservationID {
		return false, nil
	}
	if ref.IsSet() {
		return false, errors.Wrapf(ErrReferenceConflict, "%s holds %s, got %s", step, ref.ID, reservationID)
	}
	if !b.Request.Requests(step) {
		return false, errors.Wrapf(ErrStepNotRequested, "%s", step)
	}
	if b.Status.IsTerminal() {
		return false, errors.Wrapf(ErrBookingTerminal, "booking is %s", b.Status)
	}

	b.setReference(step, ReservationRef{ID: reservationID})
	b.advance(reservedStatus[step], events.ReservedTopic(step))
	b.touch()
	return true, nil
}

// Confirm applies a successful payment. References carried by the payment
// that were not seen yet are recorded first, so the status only moves forward.
// Re-applying the same transaction is a no-op and reports false.
func (b *Booking) Confirm(references events.References, transactionID models.ID, cause string) (bool, error) {
	if transactionID.IsZero() {
		return false, errors.New("transaction id is required")
	}
	if b.PaymentTransactionID == transactionID {
		return false, nil
	}
	if !b.PaymentTransactionID.IsZero() {
		return false, errors.Wrapf(ErrReferenceConflict, "payment holds %s, got %s", b.PaymentTransactionID, transactionID)
	}
	if b.Status.IsTerminal() {
		return false, errors.Wrapf(ErrBookingTerminal, "booking is %s", b.Status)
	}

	for _, step := range events.ReservationSteps {
		id := references.Get(step)
		if id.IsZero() || b.Reference(step).ID == id {
			continue
		}
		if _, err := b.RecordReservation(step, id); err != nil {
			return false, err
		}
	}

	b.PaymentTransactionID = transactionID
	b.advance(BookingStatusPaymentProcessed, cause)
	b.advance(BookingStatusConfirmed, cause)
	b.touch()
	return true, nil
}

// Fail moves a non-terminal booking to FAILED. Terminal bookings are left as is.
func (b *Booking) Fail(step FailedStep, reason, errorMessage string) bool {
	if b.Status.IsTerminal() {
		return false
	}

	from := b.Status
	b.Status = BookingStatusFailed
	b.FailedStep = step
	b.FailureReason = reason
	b.ErrorMessage = errorMessage
	b.recordStatusChange(from, BookingStatusFailed, string(step))
	b.touch()
	return true
}

// Cancel is the user initiated cancellation of a booking still in flight
func (b *Booking) Cancel(reason string) error {
	if b.Status.IsTerminal() {
		return errors.Wrapf(ErrInvalidTransition, "cannot cancel a %s booking", b.Status)
	}

	from := b.Status
	b.Status = BookingStatusCancelled
	b.CancellationReason = reason
	b.recordStatusChange(from, BookingStatusCancelled, events.BookingCancelledEvent)
	b.recordEvent(events.NewDeterministicEvent(b.ID, events.BookingCancelledEvent, events.BookingCancelledData{
		BookingID: b.ID,
		UserID:    b.UserID,
		Reason:    reason,
	}).WithUserID(b.UserID).WithCorrelationID(b.ID))
	b.touch()
	return nil
}

// MarkReservationCancelled records a cancellation acknowledgment. It never
// changes the status and is accepted in terminal states.
func (b *Booking) MarkReservationCancelled(step events.Step, reservationID models.ID, at time.Time) bool {
	ref := b.Reference(step)
	if !ref.IsSet() || ref.ID != reservationID || ref.IsCancelled() {
		return false
	}

	at = at.UTC()
	ref.CancelledAt = &at
	b.setReference(step, ref)
	b.touch()
	return true
}

// RequestRefund keeps the transaction of a charge the booking can no longer
// use, so its refund can be matched when it is confirmed. Only the first late
// charge is tracked.
func (b *Booking) RequestRefund(transactionID models.ID) bool {
	if transactionID.IsZero() || transactionID == b.PaymentTransactionID || !b.RefundTransactionID.IsZero() {
		return false
	}
	b.RefundTransactionID = transactionID
	b.touch()
	return true
}

// MarkRefunded records the refund of the booking's charge or of a late one
func (b *Booking) MarkRefunded(transactionID models.ID, at time.Time) bool {
	if transactionID.IsZero() || b.PaymentRefundedAt != nil {
		return false
	}
	if transactionID != b.PaymentTransactionID && transactionID != b.RefundTransactionID {
		return false
	}
	at = at.UTC()
	b.PaymentRefundedAt = &at
	b.touch()
	return true
}

// CompensationPlan lists the reservations still to cancel, newest first
func (b *Booking) CompensationPlan() []events.Step {
	cancelled := map[events.Step]bool{
		events.StepFlight: b.Flight.IsCancelled(),
		events.StepHotel:  b.Hotel.IsCancelled(),
		events.StepCar:    b.Car.IsCancelled(),
	}
	return saga.CompensationPlan(b.References(), cancelled)
}

// NeedsCompensation reports whether the booking failed or was cancelled and
// the cancellation commands have not been issued yet
func (b *Booking) NeedsCompensation() bool {
	return (b.Status == BookingStatusFailed || b.Status == BookingStatusCancelled) && b.CompensationIssuedAt == nil
}

// MarkCompensationIssued stamps the time the cancellation commands went out
func (b *Booking) MarkCompensationIssued(at time.Time) {
	at = at.UTC()
	b.CompensationIssuedAt = &at
	b.touch()
}

// IsNew reports whether the booking has never been persisted
func (b *Booking) IsNew() bool {
	return b.isNew
}

// IsDirty reports whether the booking has unsaved changes
func (b *Booking) IsDirty() bool {
	return b.dirty
}

// MarkPersisted is called by repositories after a successful save
func (b *Booking) MarkPersisted() {
	b.isNew = false
	b.dirty = false
}

// Events returns every recorded event
func (b *Booking) Events() []*events.Event {
	return b.events
}

// PublicEvents returns the recorded events meant for the bus. Status changes
// only go to the saga event log.
func (b *Booking) PublicEvents() []*events.Event {
	public := make([]*events.Event, 0, len(b.events))
	for _, e := range b.events {
		if e.EventType != events.BookingStatusChangedEvent {
			public = append(public, e)
		}
	}
	return public
}

// ClearEvents clears recorded events
func (b *Booking) ClearEvents() {
	b.events = nil
}

func (b *Booking) advance(to BookingStatus, cause string) {
	if forwardRank[to] <= forwardRank[b.Status] {
		return
	}
	from := b.Status
	b.Status = to
	b.recordStatusChange(from, to, cause)
}

func (b *Booking) touch() {
	b.Timestamps = b.Timestamps.Update()
	b.dirty = true
}

// recordStatusChange keys the audit row on the transition. Statuses never
// repeat, so a redelivered event re-derives the same row.
func (b *Booking) recordStatusChange(from, to BookingStatus, cause string) {
	b.recordEvent(events.NewDeterministicEvent(b.ID, events.BookingStatusChangedEvent, events.BookingStatusChangedData{
		BookingID: b.ID,
		From:      string(from),
		To:        string(to),
		Cause:     cause,
	}, string(from), string(to)).WithUserID(b.UserID).WithCorrelationID(b.ID))
}

func (b *Booking) recordEvent(event *events.Event) {
	b.events = append(b.events, event)
}

// BookingRepository persists bookings. Find methods return nil, nil when nothing matches.
type BookingRepository interface {
	Save(ctx context.Context, booking *Booking) error
	FindByID(ctx context.Context, id models.ID) (*Booking, error)
	FindByUserID(ctx context.Context, userID models.ID) ([]*Booking, error)
	// FindStuck returns bookings not updated since updatedBefore that are either
	// still in flight or ended without their compensation being issued
	FindStuck(ctx context.Context, updatedBefore time.Time, limit int) ([]*Booking, error)
}
