package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
)

var _ domain.BookingRepository = (*PostgresBookingRepository)(nil)

// PostgresBookingRepository implements BookingRepository using PostgreSQL
type PostgresBookingRepository struct {
	db *sqlx.DB
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(db *sqlx.DB) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

// postgresBooking represents booking in database
type postgresBooking struct {
	ID                   string     `db:"id"`
	UserID               string     `db:"user_id"`
	Status               string     `db:"status"`
	Request              []byte     `db:"request"`
	FlightReservationID  *string    `db:"flight_reservation_id"`
	FlightCancelledAt    *time.Time `db:"flight_cancelled_at"`
	HotelReservationID   *string    `db:"hotel_reservation_id"`
	HotelCancelledAt     *time.Time `db:"hotel_cancelled_at"`
	CarReservationID     *string    `db:"car_reservation_id"`
	CarCancelledAt       *time.Time `db:"car_cancelled_at"`
	PaymentTransactionID *string    `db:"payment_transaction_id"`
	RefundTransactionID  *string    `db:"refund_transaction_id"`
	PaymentRefundedAt    *time.Time `db:"payment_refunded_at"`
	FailedStep           *string    `db:"failed_step"`
	FailureReason        *string    `db:"failure_reason"`
	ErrorMessage         *string    `db:"error_message"`
	CancellationReason   *string    `db:"cancellation_reason"`
	TotalAmount          int64      `db:"total_amount"`
	Currency             string     `db:"currency"`
	CompensationIssuedAt *time.Time `db:"compensation_issued_at"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
	Version              int        `db:"version"`
	OldVersion           int        `db:"old_version"`
}

const bookingColumns = `
		id, user_id, status, request,
		flight_reservation_id, flight_cancelled_at,
		hotel_reservation_id, hotel_cancelled_at,
		car_reservation_id, car_cancelled_at,
		payment_transaction_id, refund_transaction_id, payment_refunded_at,
		failed_step, failure_reason, error_message, cancellation_reason,
		total_amount, currency, compensation_issued_at,
		created_at, updated_at, version`

// Save inserts new bookings and updates existing ones with optimistic locking
func (r *PostgresBookingRepository) Save(ctx context.Context, booking *domain.Booking) error {
	if booking.IsNew() {
		if err := r.insertBooking(ctx, booking); err != nil {
			return err
		}
		booking.MarkPersisted()
		return nil
	}

	if !booking.IsDirty() {
		return nil
	}

	next := booking.Version.Update()
	if err := r.updateBooking(ctx, booking, next); err != nil {
		return err
	}
	booking.Version = next
	booking.MarkPersisted()
	return nil
}

// insertBooking inserts a new booking
func (r *PostgresBookingRepository) insertBooking(ctx context.Context, booking *domain.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `
		) VALUES (
			:id, :user_id, :status, :request,
			:flight_reservation_id, :flight_cancelled_at,
			:hotel_reservation_id, :hotel_cancelled_at,
			:car_reservation_id, :car_cancelled_at,
			:payment_transaction_id, :refund_transaction_id, :payment_refunded_at,
			:failed_step, :failure_reason, :error_message, :cancellation_reason,
			:total_amount, :currency, :compensation_issued_at,
			:created_at, :updated_at, :version
		)`

	pgBooking, err := r.toPostgres(booking)
	if err != nil {
		return err
	}

	if _, err := r.db.NamedExecContext(ctx, query, pgBooking); err != nil {
		return errors.Wrap(err, "failed to insert booking")
	}

	return nil
}

// updateBooking writes every mutable column when the stored version still matches
func (r *PostgresBookingRepository) updateBooking(ctx context.Context, booking *domain.Booking, next models.Version) error {
	query := `
		UPDATE bookings
		SET status = :status,
			flight_reservation_id = :flight_reservation_id, flight_cancelled_at = :flight_cancelled_at,
			hotel_reservation_id = :hotel_reservation_id, hotel_cancelled_at = :hotel_cancelled_at,
			car_reservation_id = :car_reservation_id, car_cancelled_at = :car_cancelled_at,
			payment_transaction_id = :payment_transaction_id, refund_transaction_id = :refund_transaction_id,
			payment_refunded_at = :payment_refunded_at,
			failed_step = :failed_step, failure_reason = :failure_reason, error_message = :error_message,
			cancellation_reason = :cancellation_reason,
			compensation_issued_at = :compensation_issued_at,
			updated_at = :updated_at, version = :version
		WHERE id = :id AND version = :old_version`

	pgBooking, err := r.toPostgres(booking)
	if err != nil {
		return err
	}
	pgBooking.OldVersion = booking.Version.Value
	pgBooking.Version = next.Value

	result, err := r.db.NamedExecContext(ctx, query, pgBooking)
	if err != nil {
		return errors.Wrap(err, "failed to update booking")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if rows == 0 {
		return errors.Wrapf(domain.ErrConcurrentModification, "booking %s at version %d", booking.ID, booking.Version.Value)
	}

	return nil
}

// FindByID finds a booking by ID
func (r *PostgresBookingRepository) FindByID(ctx context.Context, id models.ID) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE id = $1`

	var pgBooking postgresBooking
	err := r.db.GetContext(ctx, &pgBooking, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Booking not found
		}
		return nil, errors.Wrap(err, "failed to find booking")
	}

	return r.toDomain(&pgBooking)
}

// FindByUserID finds bookings by user ID, newest first
func (r *PostgresBookingRepository) FindByUserID(ctx context.Context, userID models.ID) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC`

	var pgBookings []postgresBooking
	if err := r.db.SelectContext(ctx, &pgBookings, query, userID.String()); err != nil {
		return nil, errors.Wrap(err, "failed to find bookings by user ID")
	}

	return r.toDomainList(pgBookings)
}

// FindStuck returns bookings not updated since updatedBefore that are still in
// flight, or failed and cancelled ones without compensation, oldest first
func (r *PostgresBookingRepository) FindStuck(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE updated_at < $2
			AND (status = ANY($1) OR (status = ANY($3) AND compensation_issued_at IS NULL))
		ORDER BY updated_at ASC
		LIMIT $4`

	var pgBookings []postgresBooking
	if err := r.db.SelectContext(ctx, &pgBookings, query,
		pq.Array(statusNames(domain.NonTerminalStatuses)),
		updatedBefore,
		pq.Array(statusNames(domain.CompensableStatuses)),
		limit,
	); err != nil {
		return nil, errors.Wrap(err, "failed to find stuck bookings")
	}

	return r.toDomainList(pgBookings)
}

func statusNames(statuses []domain.BookingStatus) []string {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	return names
}

func (r *PostgresBookingRepository) toDomainList(pgBookings []postgresBooking) ([]*domain.Booking, error) {
	bookings := make([]*domain.Booking, len(pgBookings))
	for i := range pgBookings {
		booking, err := r.toDomain(&pgBookings[i])
		if err != nil {
			return nil, err
		}
		bookings[i] = booking
	}
	return bookings, nil
}

// toPostgres converts domain booking to postgres model
func (r *PostgresBookingRepository) toPostgres(booking *domain.Booking) (*postgresBooking, error) {
	request, err := json.Marshal(booking.Request)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode booking request")
	}

	return &postgresBooking{
		ID:                   booking.ID.String(),
		UserID:               booking.UserID.String(),
		Status:               string(booking.Status),
		Request:              request,
		FlightReservationID:  optionalString(booking.Flight.ID.String()),
		FlightCancelledAt:    booking.Flight.CancelledAt,
		HotelReservationID:   optionalString(booking.Hotel.ID.String()),
		HotelCancelledAt:     booking.Hotel.CancelledAt,
		CarReservationID:     optionalString(booking.Car.ID.String()),
		CarCancelledAt:       booking.Car.CancelledAt,
		PaymentTransactionID: optionalString(booking.PaymentTransactionID.String()),
		RefundTransactionID:  optionalString(booking.RefundTransactionID.String()),
		PaymentRefundedAt:    booking.PaymentRefundedAt,
		FailedStep:           optionalString(string(booking.FailedStep)),
		FailureReason:        optionalString(booking.FailureReason),
		ErrorMessage:         optionalString(booking.ErrorMessage),
		CancellationReason:   optionalString(booking.CancellationReason),
		TotalAmount:          booking.TotalAmount.Amount,
		Currency:             booking.TotalAmount.Currency,
		CompensationIssuedAt: booking.CompensationIssuedAt,
		CreatedAt:            booking.Timestamps.CreatedAt,
		UpdatedAt:            booking.Timestamps.UpdatedAt,
		Version:              booking.Version.Value,
	}, nil
}

// toDomain converts postgres model to domain booking
func (r *PostgresBookingRepository) toDomain(pgBooking *postgresBooking) (*domain.Booking, error) {
	id, err := models.NewID(pgBooking.ID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid booking ID")
	}

	userID, err := models.NewID(pgBooking.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid user ID")
	}

	var request events.BookingRequest
	if err := json.Unmarshal(pgBooking.Request, &request); err != nil {
		return nil, errors.Wrap(err, "invalid booking request")
	}

	return &domain.Booking{
		ID:                   id,
		UserID:               userID,
		Status:               domain.BookingStatus(pgBooking.Status),
		Request:              request,
		Flight:               toReference(pgBooking.FlightReservationID, pgBooking.FlightCancelledAt),
		Hotel:                toReference(pgBooking.HotelReservationID, pgBooking.HotelCancelledAt),
		Car:                  toReference(pgBooking.CarReservationID, pgBooking.CarCancelledAt),
		PaymentTransactionID: models.ID(valueOf(pgBooking.PaymentTransactionID)),
		RefundTransactionID:  models.ID(valueOf(pgBooking.RefundTransactionID)),
		PaymentRefundedAt:    pgBooking.PaymentRefundedAt,
		FailedStep:           domain.FailedStep(valueOf(pgBooking.FailedStep)),
		FailureReason:        valueOf(pgBooking.FailureReason),
		ErrorMessage:         valueOf(pgBooking.ErrorMessage),
		CancellationReason:   valueOf(pgBooking.CancellationReason),
		TotalAmount:          models.NewMoney(pgBooking.TotalAmount, pgBooking.Currency),
		CompensationIssuedAt: pgBooking.CompensationIssuedAt,
		Timestamps: models.Timestamps{
			CreatedAt: pgBooking.CreatedAt,
			UpdatedAt: pgBooking.UpdatedAt,
		},
		Version: models.Version{Value: pgBooking.Version},
	}, nil
}

func toReference(id *string, cancelledAt *time.Time) domain.ReservationRef {
	return domain.ReservationRef{
		ID:          models.ID(valueOf(id)),
		CancelledAt: cancelledAt,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func valueOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
