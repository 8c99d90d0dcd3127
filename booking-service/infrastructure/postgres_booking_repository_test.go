package infrastructure

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
)

const (
	testBookingID = "550e8400-e29b-41d4-a716-446655440020"
	testUserID    = "550e8400-e29b-41d4-a716-446655440010"
)

var bookingRowColumns = []string{
	"id", "user_id", "status", "request",
	"flight_reservation_id", "flight_cancelled_at",
	"hotel_reservation_id", "hotel_cancelled_at",
	"car_reservation_id", "car_cancelled_at",
	"payment_transaction_id", "refund_transaction_id", "payment_refunded_at",
	"failed_step", "failure_reason", "error_message", "cancellation_reason",
	"total_amount", "currency", "compensation_issued_at",
	"created_at", "updated_at", "version",
}

func newRepository(t *testing.T) (*PostgresBookingRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresBookingRepository(sqlx.NewDb(db, "postgres")), mock
}

func testRequest() events.BookingRequest {
	return events.BookingRequest{
		Flight:  &events.FlightRequest{FlightID: "AR1140", Departure: "EZE", Arrival: "MAD", Date: "2026-03-01"},
		Hotel:   &events.HotelRequest{HotelID: "H-22", Guests: 2},
		Payment: events.PaymentRequest{PaymentMethod: "wallet", Amount: models.NewMoney(99000, "USD")},
	}
}

func TestPostgresBookingRepository_SaveNewBooking(t *testing.T) {
	repo, mock := newRepository(t)

	booking, err := domain.CreateBooking(models.ID(testUserID), testRequest())
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO bookings").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Save(context.Background(), booking))
	assert.False(t, booking.IsNew())
	assert.False(t, booking.IsDirty())
	assert.Equal(t, 1, booking.Version.Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBookingRepository_SaveUpdatesWithOptimisticLock(t *testing.T) {
	tests := []struct {
		name            string
		rowsAffected    int64
		execErr         error
		expectedErr     error
		expectedText    string
		expectedVersion int
	}{
		{name: "version matches", rowsAffected: 1, expectedVersion: 2},
		{name: "stale version", rowsAffected: 0, expectedErr: domain.ErrConcurrentModification, expectedVersion: 1},
		{name: "database error", execErr: errors.New("connection reset"), expectedText: "failed to update booking", expectedVersion: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepository(t)

			booking, err := domain.CreateBooking(models.ID(testUserID), testRequest())
			require.NoError(t, err)
			booking.MarkPersisted()
			_, err = booking.RecordReservation(events.StepFlight, "f-1")
			require.NoError(t, err)

			exec := mock.ExpectExec(`UPDATE bookings\s+SET status = \$1`)
			if tt.execErr != nil {
				exec.WillReturnError(tt.execErr)
			} else {
				exec.WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))
			}

			err = repo.Save(context.Background(), booking)

			switch {
			case tt.expectedErr != nil:
				assert.True(t, errors.Is(err, tt.expectedErr), "got %v", err)
			case tt.expectedText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedText)
			default:
				assert.NoError(t, err)
				assert.False(t, booking.IsDirty())
			}
			assert.Equal(t, tt.expectedVersion, booking.Version.Value)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresBookingRepository_SaveSkipsCleanBooking(t *testing.T) {
	repo, mock := newRepository(t)

	booking, err := domain.CreateBooking(models.ID(testUserID), testRequest())
	require.NoError(t, err)
	booking.MarkPersisted()

	require.NoError(t, repo.Save(context.Background(), booking))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBookingRepository_FindByID(t *testing.T) {
	created := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	cancelled := created.Add(time.Hour)
	request, err := json.Marshal(testRequest())
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		repo, mock := newRepository(t)

		rows := sqlmock.NewRows(bookingRowColumns).AddRow(
			testBookingID, testUserID, "FAILED", request,
			"f-1", cancelled,
			"h-1", nil,
			nil, nil,
			nil, nil, nil,
			"PAYMENT", "Payment failed", "card declined", nil,
			int64(99000), "USD", cancelled,
			created, cancelled, 4,
		)
		mock.ExpectQuery(`SELECT .+ FROM bookings\s+WHERE id = \$1`).
			WithArgs(testBookingID).
			WillReturnRows(rows)

		booking, err := repo.FindByID(context.Background(), testBookingID)
		require.NoError(t, err)
		require.NotNil(t, booking)

		assert.Equal(t, domain.BookingStatusFailed, booking.Status)
		assert.Equal(t, models.ID("f-1"), booking.Flight.ID)
		assert.True(t, booking.Flight.IsCancelled())
		assert.Equal(t, models.ID("h-1"), booking.Hotel.ID)
		assert.False(t, booking.Hotel.IsCancelled())
		assert.False(t, booking.Car.IsSet())
		assert.Equal(t, domain.FailedStepPayment, booking.FailedStep)
		assert.Equal(t, "card declined", booking.ErrorMessage)
		assert.Equal(t, models.NewMoney(99000, "USD"), booking.TotalAmount)
		assert.Equal(t, "H-22", booking.Request.Hotel.HotelID)
		assert.Equal(t, 4, booking.Version.Value)
		assert.False(t, booking.IsNew())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newRepository(t)

		mock.ExpectQuery(`SELECT .+ FROM bookings`).
			WithArgs(testBookingID).
			WillReturnRows(sqlmock.NewRows(bookingRowColumns))

		booking, err := repo.FindByID(context.Background(), testBookingID)
		assert.NoError(t, err)
		assert.Nil(t, booking)
	})
}

func TestPostgresBookingRepository_FindStuck(t *testing.T) {
	repo, mock := newRepository(t)
	deadline := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	request, err := json.Marshal(testRequest())
	require.NoError(t, err)

	rows := sqlmock.NewRows(bookingRowColumns).AddRow(
		testBookingID, testUserID, "FLIGHT_RESERVED", request,
		"f-1", nil, nil, nil, nil, nil, nil, nil, nil,
		nil, nil, nil, nil,
		int64(99000), "USD", nil,
		deadline.Add(-time.Hour), deadline.Add(-time.Minute), 2,
	).AddRow(
		"550e8400-e29b-41d4-a716-446655440021", testUserID, "CANCELLED", request,
		"f-2", nil, nil, nil, nil, nil, nil, nil, nil,
		nil, nil, nil, "changed plans",
		int64(99000), "USD", nil,
		deadline.Add(-time.Hour), deadline.Add(-30*time.Second), 3,
	)
	mock.ExpectQuery(`WHERE updated_at < \$2\s+AND \(status = ANY\(\$1\) OR \(status = ANY\(\$3\) AND compensation_issued_at IS NULL\)\)`).
		WithArgs(sqlmock.AnyArg(), deadline, sqlmock.AnyArg(), 25).
		WillReturnRows(rows)

	bookings, err := repo.FindStuck(context.Background(), deadline, 25)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, domain.BookingStatusFlightReserved, bookings[0].Status)
	assert.Equal(t, domain.BookingStatusCancelled, bookings[1].Status)
	assert.Equal(t, "changed plans", bookings[1].CancellationReason)
	assert.True(t, bookings[1].NeedsCompensation())
	assert.NoError(t, mock.ExpectationsWereMet())
}
