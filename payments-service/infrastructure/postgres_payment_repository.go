package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/payments-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	sharedinfra "github.com/draftea/travel-booking/shared/infrastructure"
	"github.com/draftea/travel-booking/shared/models"
)

var _ domain.PaymentRepository = (*PostgresPaymentRepository)(nil)

// PostgresPaymentRepository implements PaymentRepository using PostgreSQL
type PostgresPaymentRepository struct {
	db *sqlx.DB
}

// NewPostgresPaymentRepository creates a new PostgresPaymentRepository
func NewPostgresPaymentRepository(db *sqlx.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

// postgresPayment represents payment in database
type postgresPayment struct {
	ID            string     `db:"id"`
	BookingID     string     `db:"booking_id"`
	UserID        string     `db:"user_id"`
	TransactionID *string    `db:"transaction_id"`
	Amount        int64      `db:"amount"`
	Currency      string     `db:"currency"`
	PaymentMethod string     `db:"payment_method"`
	Status        string     `db:"status"`
	ErrorMessage  *string    `db:"error_message"`
	References    []byte     `db:"booking_references"`
	RefundReason  *string    `db:"refund_reason"`
	RefundedAt    *time.Time `db:"refunded_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	Version       int        `db:"version"`
	OldVersion    int        `db:"old_version"`
}

const paymentColumns = `
		id, booking_id, user_id, transaction_id, amount, currency,
		payment_method, status, error_message, booking_references,
		refund_reason, refunded_at, created_at, updated_at, version`

// Save inserts the claim or updates the payment with optimistic locking
func (r *PostgresPaymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	if payment.IsNew() {
		if err := r.insert(ctx, payment); err != nil {
			return err
		}
		payment.MarkPersisted()
		return nil
	}

	next := payment.Version.Update()
	if err := r.update(ctx, payment, next); err != nil {
		return err
	}
	payment.Version = next
	return nil
}

func (r *PostgresPaymentRepository) insert(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `
		) VALUES (
			:id, :booking_id, :user_id, :transaction_id, :amount, :currency,
			:payment_method, :status, :error_message, :booking_references,
			:refund_reason, :refunded_at, :created_at, :updated_at, :version
		)`

	row, err := r.toPostgres(payment)
	if err != nil {
		return err
	}

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		if sharedinfra.IsUniqueViolation(err) {
			return errors.Wrapf(domain.ErrDuplicatePayment, "booking %s", payment.BookingID)
		}
		return errors.Wrap(err, "failed to insert payment")
	}
	return nil
}

func (r *PostgresPaymentRepository) update(ctx context.Context, payment *domain.Payment, next models.Version) error {
	query := `
		UPDATE payments
		SET transaction_id = :transaction_id, status = :status, error_message = :error_message,
			refund_reason = :refund_reason, refunded_at = :refunded_at,
			updated_at = :updated_at, version = :version
		WHERE id = :id AND version = :old_version`

	row, err := r.toPostgres(payment)
	if err != nil {
		return err
	}
	row.OldVersion = payment.Version.Value
	row.Version = next.Value

	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return errors.Wrap(err, "failed to update payment")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if rows == 0 {
		return errors.Wrapf(domain.ErrConcurrentUpdate, "payment %s at version %d", payment.ID, payment.Version.Value)
	}
	return nil
}

// FindByBookingID returns nil when the booking was never charged
func (r *PostgresPaymentRepository) FindByBookingID(ctx context.Context, bookingID models.ID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1`

	var row postgresPayment
	if err := r.db.GetContext(ctx, &row, query, bookingID.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find payment")
	}

	return r.toDomain(&row)
}

func (r *PostgresPaymentRepository) toPostgres(payment *domain.Payment) (*postgresPayment, error) {
	references, err := json.Marshal(payment.References)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode references")
	}

	return &postgresPayment{
		ID:            payment.ID.String(),
		BookingID:     payment.BookingID.String(),
		UserID:        payment.UserID.String(),
		TransactionID: optionalString(payment.TransactionID.String()),
		Amount:        payment.Amount.Amount,
		Currency:      payment.Amount.Currency,
		PaymentMethod: payment.Method.String(),
		Status:        string(payment.Status),
		ErrorMessage:  optionalString(payment.ErrorMessage),
		References:    references,
		RefundReason:  optionalString(payment.RefundReason),
		RefundedAt:    payment.RefundedAt,
		CreatedAt:     payment.Timestamps.CreatedAt,
		UpdatedAt:     payment.Timestamps.UpdatedAt,
		Version:       payment.Version.Value,
	}, nil
}

func (r *PostgresPaymentRepository) toDomain(row *postgresPayment) (*domain.Payment, error) {
	method, err := domain.NewPaymentMethodType(row.PaymentMethod)
	if err != nil {
		return nil, errors.Wrap(err, "invalid payment method")
	}

	var references events.References
	if len(row.References) > 0 {
		if err := json.Unmarshal(row.References, &references); err != nil {
			return nil, errors.Wrap(err, "invalid booking references")
		}
	}

	return &domain.Payment{
		ID:            models.ID(row.ID),
		BookingID:     models.ID(row.BookingID),
		UserID:        models.ID(row.UserID),
		TransactionID: models.ID(valueOf(row.TransactionID)),
		Amount:        models.NewMoney(row.Amount, row.Currency),
		Method:        *method,
		Status:        domain.PaymentStatus(row.Status),
		ErrorMessage:  valueOf(row.ErrorMessage),
		References:    references,
		RefundReason:  valueOf(row.RefundReason),
		RefundedAt:    row.RefundedAt,
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
