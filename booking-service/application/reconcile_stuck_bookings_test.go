package application

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/booking-service/mocks"
	"github.com/draftea/travel-booking/shared/events"
)

func TestReconcileStuckBookings_Execute(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stuckAfter := 15 * time.Minute

	tests := []struct {
		name           string
		setupMocks     func(*mocks.MockBookingRepository, *mocks.MockEventStore, *mocks.MockPublisher) []*domain.Booking
		expectedResult *ReconcileResult
		expectedError  string
	}{
		{
			name: "stuck booking is timed out and compensated",
			setupMocks: func(repo *mocks.MockBookingRepository, store *mocks.MockEventStore, publisher *mocks.MockPublisher) []*domain.Booking {
				stuck := persistedBooking(t, testRequest(true, false), func(b *domain.Booking) {
					b.RecordReservation(events.StepFlight, "f-1")
				})
				repo.EXPECT().FindStuck(mock.Anything, now.Add(-stuckAfter), 50).Return([]*domain.Booking{stuck}, nil).Once()
				repo.EXPECT().Save(mock.Anything, stuck).Return(nil).Times(2)
				store.EXPECT().Append(mock.Anything, mock.Anything).Return(nil).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(eventOfType(events.FlightCancelledEvent))).Return(nil).Once()
				return []*domain.Booking{stuck}
			},
			expectedResult: &ReconcileResult{Scanned: 1, TimedOut: 1},
		},
		{
			name: "booking that moved on concurrently is left alone",
			setupMocks: func(repo *mocks.MockBookingRepository, store *mocks.MockEventStore, publisher *mocks.MockPublisher) []*domain.Booking {
				stuck := persistedBooking(t, testRequest(false, false), nil)
				repo.EXPECT().FindStuck(mock.Anything, now.Add(-stuckAfter), 50).Return([]*domain.Booking{stuck}, nil).Once()
				repo.EXPECT().Save(mock.Anything, stuck).Return(errors.Wrap(domain.ErrConcurrentModification, "booking")).Once()
				return nil
			},
			expectedResult: &ReconcileResult{Scanned: 1, Conflicts: 1},
		},
		{
			name: "compensation that never went out is issued again",
			setupMocks: func(repo *mocks.MockBookingRepository, store *mocks.MockEventStore, publisher *mocks.MockPublisher) []*domain.Booking {
				failed := persistedBooking(t, testRequest(true, false), func(b *domain.Booking) {
					b.RecordReservation(events.StepFlight, "f-1")
					b.RecordReservation(events.StepHotel, "h-1")
					b.Fail(domain.FailedStepPayment, "Payment failed", "card declined")
				})
				repo.EXPECT().FindStuck(mock.Anything, now.Add(-stuckAfter), 50).Return([]*domain.Booking{failed}, nil).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(eventOfType(events.HotelCancelledEvent))).Return(nil).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(eventOfType(events.FlightCancelledEvent))).Return(nil).Once()
				repo.EXPECT().Save(mock.Anything, failed).Return(nil).Once()
				return nil
			},
			expectedResult: &ReconcileResult{Scanned: 1, Recompensated: 1},
		},
		{
			name: "timed out booking whose cancel command fails stays pending for the next sweep",
			setupMocks: func(repo *mocks.MockBookingRepository, store *mocks.MockEventStore, publisher *mocks.MockPublisher) []*domain.Booking {
				stuck := persistedBooking(t, testRequest(false, false), func(b *domain.Booking) {
					b.RecordReservation(events.StepFlight, "f-1")
				})
				repo.EXPECT().FindStuck(mock.Anything, now.Add(-stuckAfter), 50).Return([]*domain.Booking{stuck}, nil).Once()
				repo.EXPECT().Save(mock.Anything, stuck).Return(nil).Once()
				store.EXPECT().Append(mock.Anything, mock.Anything).Return(nil).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(eventOfType(events.FlightCancelledEvent))).
					Return(errors.New("sns unavailable")).Once()
				return nil
			},
			expectedResult: &ReconcileResult{Scanned: 1, TimedOut: 1},
		},
		{
			name: "nothing stuck",
			setupMocks: func(repo *mocks.MockBookingRepository, store *mocks.MockEventStore, publisher *mocks.MockPublisher) []*domain.Booking {
				repo.EXPECT().FindStuck(mock.Anything, now.Add(-stuckAfter), 50).Return(nil, nil).Once()
				return nil
			},
			expectedResult: &ReconcileResult{},
		},
		{
			name: "repository error",
			setupMocks: func(repo *mocks.MockBookingRepository, store *mocks.MockEventStore, publisher *mocks.MockPublisher) []*domain.Booking {
				repo.EXPECT().FindStuck(mock.Anything, now.Add(-stuckAfter), 50).Return(nil, errors.New("database error")).Once()
				return nil
			},
			expectedError: "failed to find stuck bookings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockBookingRepository(t)
			store := mocks.NewMockEventStore(t)
			publisher := mocks.NewMockPublisher(t)
			timedOut := tt.setupMocks(repo, store, publisher)

			uc := NewReconcileStuckBookings(repo, store, NewCompensateBooking(repo, store, publisher), stuckAfter, 50)
			uc.now = func() time.Time { return now }

			result, err := uc.Execute(context.Background())

			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedResult, result)
			for _, b := range timedOut {
				assert.Equal(t, domain.BookingStatusFailed, b.Status)
				assert.Equal(t, domain.FailedStepTimeout, b.FailedStep)
				assert.Equal(t, timeoutReason, b.FailureReason)
				assert.NotNil(t, b.CompensationIssuedAt)
			}
		})
	}
}
