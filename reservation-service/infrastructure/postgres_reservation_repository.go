package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/reservation-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	sharedinfra "github.com/draftea/travel-booking/shared/infrastructure"
	"github.com/draftea/travel-booking/shared/models"
)

var _ domain.ReservationRepository = (*PostgresReservationRepository)(nil)

// PostgresReservationRepository keeps one row per booking in the step's own table
type PostgresReservationRepository struct {
	db    *sqlx.DB
	step  events.Step
	table string
}

// NewPostgresReservationRepository creates a repository over flight_reservations,
// hotel_reservations or car_reservations depending on step
func NewPostgresReservationRepository(db *sqlx.DB, step events.Step) *PostgresReservationRepository {
	return &PostgresReservationRepository{
		db:    db,
		step:  step,
		table: TableName(step),
	}
}

// TableName returns the table holding the records of step
func TableName(step events.Step) string {
	return strings.ToLower(string(step)) + "_reservations"
}

type postgresReservation struct {
	ID                 string     `db:"id"`
	BookingID          string     `db:"booking_id"`
	UserID             string     `db:"user_id"`
	ReservationID      *string    `db:"reservation_id"`
	Status             string     `db:"status"`
	ErrorMessage       *string    `db:"error_message"`
	Request            []byte     `db:"request"`
	AcquiredReferences []byte     `db:"acquired_references"`
	CancelReason       *string    `db:"cancel_reason"`
	CancelledAt        *time.Time `db:"cancelled_at"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
	Version            int        `db:"version"`
	OldVersion         int        `db:"old_version"`
}

const reservationColumns = `
		id, booking_id, user_id, reservation_id, status, error_message,
		request, acquired_references, cancel_reason, cancelled_at,
		created_at, updated_at, version`

// Save inserts the claim or updates the decision with optimistic locking
func (r *PostgresReservationRepository) Save(ctx context.Context, record *domain.ReservationRecord) error {
	if record.IsNew() {
		if err := r.insert(ctx, record); err != nil {
			return err
		}
		record.MarkPersisted()
		return nil
	}

	next := record.Version.Update()
	if err := r.update(ctx, record, next); err != nil {
		return err
	}
	record.Version = next
	return nil
}

func (r *PostgresReservationRepository) insert(ctx context.Context, record *domain.ReservationRecord) error {
	query := `
		INSERT INTO ` + r.table + ` (` + reservationColumns + `
		) VALUES (
			:id, :booking_id, :user_id, :reservation_id, :status, :error_message,
			:request, :acquired_references, :cancel_reason, :cancelled_at,
			:created_at, :updated_at, :version
		)`

	row, err := r.toPostgres(record)
	if err != nil {
		return err
	}

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		if sharedinfra.IsUniqueViolation(err) {
			return errors.Wrapf(domain.ErrDuplicateReservation, "booking %s", record.BookingID)
		}
		return errors.Wrap(err, "failed to insert reservation")
	}
	return nil
}

func (r *PostgresReservationRepository) update(ctx context.Context, record *domain.ReservationRecord, next models.Version) error {
	query := `
		UPDATE ` + r.table + `
		SET reservation_id = :reservation_id, status = :status, error_message = :error_message,
			cancel_reason = :cancel_reason, cancelled_at = :cancelled_at,
			updated_at = :updated_at, version = :version
		WHERE id = :id AND version = :old_version`

	row, err := r.toPostgres(record)
	if err != nil {
		return err
	}
	row.OldVersion = record.Version.Value
	row.Version = next.Value

	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return errors.Wrap(err, "failed to update reservation")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if rows == 0 {
		return errors.Wrapf(domain.ErrConcurrentUpdate, "reservation %s at version %d", record.ID, record.Version.Value)
	}
	return nil
}

// FindByBookingID returns nil when the booking has no record yet
func (r *PostgresReservationRepository) FindByBookingID(ctx context.Context, bookingID models.ID) (*domain.ReservationRecord, error) {
	query := `SELECT ` + reservationColumns + `
		FROM ` + r.table + `
		WHERE booking_id = $1`

	var row postgresReservation
	if err := r.db.GetContext(ctx, &row, query, bookingID.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find reservation")
	}

	return r.toDomain(&row)
}

func (r *PostgresReservationRepository) toPostgres(record *domain.ReservationRecord) (*postgresReservation, error) {
	request, err := json.Marshal(record.Request)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode booking request")
	}
	references, err := json.Marshal(record.References)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode references")
	}

	return &postgresReservation{
		ID:                 record.ID.String(),
		BookingID:          record.BookingID.String(),
		UserID:             record.UserID.String(),
		ReservationID:      optionalString(record.ReservationID.String()),
		Status:             string(record.Status),
		ErrorMessage:       optionalString(record.ErrorMessage),
		Request:            request,
		AcquiredReferences: references,
		CancelReason:       optionalString(record.CancelReason),
		CancelledAt:        record.CancelledAt,
		CreatedAt:          record.Timestamps.CreatedAt,
		UpdatedAt:          record.Timestamps.UpdatedAt,
		Version:            record.Version.Value,
	}, nil
}

func (r *PostgresReservationRepository) toDomain(row *postgresReservation) (*domain.ReservationRecord, error) {
	var request events.BookingRequest
	if err := json.Unmarshal(row.Request, &request); err != nil {
		return nil, errors.Wrap(err, "invalid booking request")
	}

	var references events.References
	if len(row.AcquiredReferences) > 0 {
		if err := json.Unmarshal(row.AcquiredReferences, &references); err != nil {
			return nil, errors.Wrap(err, "invalid acquired references")
		}
	}

	return &domain.ReservationRecord{
		ID:            models.ID(row.ID),
		BookingID:     models.ID(row.BookingID),
		UserID:        models.ID(row.UserID),
		Step:          r.step,
		ReservationID: models.ID(valueOf(row.ReservationID)),
		Status:        domain.ReservationStatus(row.Status),
		ErrorMessage:  valueOf(row.ErrorMessage),
		Request:       request,
		References:    references,
		CancelReason:  valueOf(row.CancelReason),
		CancelledAt:   row.CancelledAt,
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
		Version: models.Version{Value: row.Version},
	}, nil
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
