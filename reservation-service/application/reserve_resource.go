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

var (
	// ErrInvalidCommand marks requests that can never succeed on redelivery
	ErrInvalidCommand = errors.New("invalid command")
	// ErrDecisionInProgress is returned while another consumer holds a fresh claim
	ErrDecisionInProgress = errors.New("reservation decision in progress")
)

// DefaultClaimTimeout is how long a PENDING claim is honoured before another
// delivery may take over the decision
const DefaultClaimTimeout = time.Minute

// ReserveResourceCommand asks the participant to reserve its resource for a booking
type ReserveResourceCommand struct {
	BookingID  string                `json:"booking_id"`
	UserID     string                `json:"user_id"`
	Request    events.BookingRequest `json:"request"`
	References events.References     `json:"references"`
}

// ReserveResult describes the recorded decision
type ReserveResult struct {
	BookingID     string `json:"booking_id"`
	Status        string `json:"status"`
	ReservationID string `json:"reservation_id,omitempty"`
	Duplicate     bool   `json:"duplicate"`
}

// ReserveResource runs the local reserve decision at most once per booking
type ReserveResource struct {
	step         events.Step
	repository   domain.ReservationRepository
	reserver     domain.AttemptReserver
	publisher    events.Publisher
	router       *saga.Router
	locker       *saga.KeyedLocker
	claimTimeout time.Duration
	now          func() time.Time
}

// NewReserveResource creates a new ReserveResource use case for step
func NewReserveResource(
	step events.Step,
	repository domain.ReservationRepository,
	reserver domain.AttemptReserver,
	publisher events.Publisher,
) *ReserveResource {
	return &ReserveResource{
		step:         step,
		repository:   repository,
		reserver:     reserver,
		publisher:    publisher,
		router:       saga.NewRouter(publisher, domain.ServiceName(step)),
		locker:       saga.NewKeyedLocker(),
		claimTimeout: DefaultClaimTimeout,
		now:          time.Now,
	}
}

// Handle implements events.EventHandler for the step's "reservation requested" event
func (uc *ReserveResource) Handle(ctx context.Context, event *events.Event) error {
	var data events.ReservationRequestedData
	if err := event.UnmarshalPayload(&data); err != nil {
		logger.FromContext(ctx).Error("dropping malformed reservation request", "error", err)
		return nil
	}

	bookingID := data.BookingID
	if bookingID.IsZero() {
		bookingID = event.AggregateID
	}

	_, err := uc.Execute(ctx, &ReserveResourceCommand{
		BookingID:  bookingID.String(),
		UserID:     data.UserID.String(),
		Request:    data.Request,
		References: data.References,
	})
	if errors.Is(err, ErrInvalidCommand) {
		logger.FromContext(ctx).Warn("ignoring reservation request", "error", err)
		return nil
	}
	return err
}

// Execute records the decision, or re-emits the one already recorded
func (uc *ReserveResource) Execute(ctx context.Context, cmd *ReserveResourceCommand) (result *ReserveResult, err error) {
	ctx, done := track(ctx, "reserve_resource",
		attribute.String("step", string(uc.step)),
		attribute.String("booking_id", cmd.BookingID),
	)
	defer func() { done(err) }()

	bookingID, err := models.NewID(cmd.BookingID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, "invalid booking ID")
	}

	unlock := uc.locker.Lock(bookingID.String())
	defer unlock()

	log := logger.FromContext(ctx).With("booking_id", bookingID, "step", uc.step)

	record, claimed, err := uc.claim(ctx, bookingID, cmd)
	if err != nil {
		return nil, err
	}

	if record.Status.IsDecided() {
		log.Info("reservation already decided, re-emitting outcome", "status", record.Status)
		if err := uc.emit(ctx, record, record.OutcomeEvent()); err != nil {
			return nil, err
		}
		return toReserveResult(record, true), nil
	}

	if !claimed && !record.IsStale(uc.now(), uc.claimTimeout) {
		return nil, errors.Wrapf(ErrDecisionInProgress, "booking %s", bookingID)
	}

	outcome := uc.reserver.AttemptReserve(ctx, domain.ReserveRequest{
		Step:      uc.step,
		BookingID: record.BookingID,
		UserID:    record.UserID,
		Resource:  record.Request.ResourceRequest(uc.step),
	})
	if err := record.Decide(outcome); err != nil {
		return nil, err
	}

	if err := uc.repository.Save(ctx, record); err != nil {
		return nil, errors.Wrap(err, "failed to record reservation decision")
	}

	telemetry.RecordCounter(ctx, "reservation_outcomes_total", "Reserve decisions by outcome", 1,
		attribute.String("step", string(uc.step)),
		attribute.String("status", string(record.Status)),
	)
	log.Info("reservation decided", "status", record.Status, "reservation_id", record.ReservationID)

	if err := uc.emit(ctx, record, record.Events()...); err != nil {
		return nil, err
	}
	record.ClearEvents()

	return toReserveResult(record, false), nil
}

// claim returns the booking's record, inserting a PENDING one when there is none.
// claimed is true when this call inserted it.
func (uc *ReserveResource) claim(ctx context.Context, bookingID models.ID, cmd *ReserveResourceCommand) (*domain.ReservationRecord, bool, error) {
	record, err := uc.repository.FindByBookingID(ctx, bookingID)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to find reservation")
	}
	if record != nil {
		return record, false, nil
	}

	record, err = domain.NewReservationRecord(uc.step, bookingID, models.ID(cmd.UserID), cmd.Request, cmd.References)
	if err != nil {
		return nil, false, errors.Wrap(ErrInvalidCommand, err.Error())
	}

	err = uc.repository.Save(ctx, record)
	if err == nil {
		return record, true, nil
	}
	if !errors.Is(err, domain.ErrDuplicateReservation) {
		return nil, false, errors.Wrap(err, "failed to claim reservation")
	}

	record, err = uc.repository.FindByBookingID(ctx, bookingID)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to find reservation")
	}
	if record == nil {
		return nil, false, errors.Wrapf(domain.ErrReservationNotFound, "booking %s lost its claim", bookingID)
	}
	return record, false, nil
}

// emit publishes the outcome and, for reservations, routes the saga forward
func (uc *ReserveResource) emit(ctx context.Context, record *domain.ReservationRecord, outcome ...*events.Event) error {
	var out []*events.Event
	for _, e := range outcome {
		if e != nil {
			out = append(out, e)
		}
	}
	if len(out) > 0 {
		if err := uc.publisher.Publish(ctx, out...); err != nil {
			return errors.Wrap(err, "failed to publish reservation outcome")
		}
	}

	if record.Status != domain.ReservationStatusReserved {
		return nil
	}

	next, err := uc.router.Route(ctx, record.BookingID, record.UserID, record.Request, record.AcquiredReferences())
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("saga routed", "booking_id", record.BookingID, "next", next.EventType)
	return nil
}

func toReserveResult(record *domain.ReservationRecord, duplicate bool) *ReserveResult {
	return &ReserveResult{
		BookingID:     record.BookingID.String(),
		Status:        string(record.Status),
		ReservationID: record.ReservationID.String(),
		Duplicate:     duplicate,
	}
}
