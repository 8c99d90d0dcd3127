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

func failedAfterCar(t *testing.T) *domain.Booking {
	return persistedBooking(t, testRequest(true, true), func(b *domain.Booking) {
		b.RecordReservation(events.StepFlight, "f-1")
		b.RecordReservation(events.StepHotel, "h-1")
		b.Fail(domain.FailedStepCar, "Car reservation failed", "no cars")
	})
}

func TestCompensateBooking_Compensate(t *testing.T) {
	tests := []struct {
		name            string
		booking         func(t *testing.T) *domain.Booking
		setupMocks      func(*domain.Booking, *mocks.MockBookingRepository, *mocks.MockPublisher, *[]string)
		expectedIssued  []events.Step
		expectedSkipped bool
		expectedError   string
	}{
		{
			name:    "car failure cancels hotel then flight",
			booking: failedAfterCar,
			setupMocks: func(b *domain.Booking, repo *mocks.MockBookingRepository, publisher *mocks.MockPublisher, published *[]string) {
				publisher.EXPECT().Publish(mock.Anything, mock.Anything).
					Run(func(_ context.Context, evts ...*events.Event) {
						for _, e := range evts {
							*published = append(*published, e.EventType)
						}
					}).Return(nil).Times(2)
				repo.EXPECT().Save(mock.Anything, b).Return(nil).Once()
			},
			expectedIssued: []events.Step{events.StepHotel, events.StepFlight},
		},
		{
			name: "flight failure holds nothing to cancel",
			booking: func(t *testing.T) *domain.Booking {
				return persistedBooking(t, testRequest(true, true), func(b *domain.Booking) {
					b.Fail(domain.FailedStepFlight, "Flight reservation failed", "sold out")
				})
			},
			setupMocks: func(b *domain.Booking, repo *mocks.MockBookingRepository, publisher *mocks.MockPublisher, _ *[]string) {
				repo.EXPECT().Save(mock.Anything, b).Return(nil).Once()
			},
		},
		{
			name: "compensation already issued",
			booking: func(t *testing.T) *domain.Booking {
				b := failedAfterCar(t)
				b.MarkCompensationIssued(time.Now())
				return b
			},
			setupMocks:      func(*domain.Booking, *mocks.MockBookingRepository, *mocks.MockPublisher, *[]string) {},
			expectedSkipped: true,
		},
		{
			name: "confirmed booking is never compensated",
			booking: func(t *testing.T) *domain.Booking {
				return persistedBooking(t, testRequest(false, false), func(b *domain.Booking) {
					b.RecordReservation(events.StepFlight, "f-1")
					b.Confirm(events.References{Flight: "f-1"}, "tx-1", events.PaymentProcessedEvent)
				})
			},
			setupMocks:      func(*domain.Booking, *mocks.MockBookingRepository, *mocks.MockPublisher, *[]string) {},
			expectedSkipped: true,
		},
		{
			name:    "publish failure leaves the compensation pending",
			booking: failedAfterCar,
			setupMocks: func(b *domain.Booking, repo *mocks.MockBookingRepository, publisher *mocks.MockPublisher, _ *[]string) {
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(eventOfType(events.HotelCancelledEvent))).
					Return(errors.New("sns unavailable")).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(eventOfType(events.FlightCancelledEvent))).
					Return(nil).Once()
			},
			expectedError: "compensation incomplete",
		},
		{
			name:    "save failure is returned",
			booking: failedAfterCar,
			setupMocks: func(b *domain.Booking, repo *mocks.MockBookingRepository, publisher *mocks.MockPublisher, _ *[]string) {
				publisher.EXPECT().Publish(mock.Anything, mock.Anything).Return(nil).Times(2)
				repo.EXPECT().Save(mock.Anything, b).Return(domain.ErrConcurrentModification).Once()
			},
			expectedError: "failed to save booking",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockBookingRepository(t)
			store := mocks.NewMockEventStore(t)
			publisher := mocks.NewMockPublisher(t)

			booking := tt.booking(t)
			var published []string
			tt.setupMocks(booking, repo, publisher, &published)

			result, err := NewCompensateBooking(repo, store, publisher).Compensate(context.Background(), booking)

			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				assert.Nil(t, booking.CompensationIssuedAt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedSkipped, result.Skipped)
			assert.Equal(t, tt.expectedIssued, result.Issued)
			if len(published) > 0 {
				assert.Equal(t, []string{events.HotelCancelledEvent, events.FlightCancelledEvent}, published)
			}
			if !tt.expectedSkipped {
				assert.NotNil(t, booking.CompensationIssuedAt)
			}
		})
	}
}

// flakyPublisher fails the first publish of one event type
type flakyPublisher struct {
	failOnce  string
	failed    bool
	published []string
}

func (p *flakyPublisher) Publish(_ context.Context, evts ...*events.Event) error {
	for _, e := range evts {
		if e.EventType == p.failOnce && !p.failed {
			p.failed = true
			return errors.New("sns unavailable")
		}
		p.published = append(p.published, e.EventType)
	}
	return nil
}

func TestCompensateBooking_RedeliveryAfterPublishFailure(t *testing.T) {
	booking := persistedBooking(t, testRequest(true, false), func(b *domain.Booking) {
		b.RecordReservation(events.StepFlight, "f-1")
		b.RecordReservation(events.StepHotel, "h-1")
		b.Fail(domain.FailedStepPayment, "Payment failed", "card declined")
	})
	failure := events.NewDeterministicEvent(booking.ID, events.PaymentFailedEvent, events.PaymentFailedData{BookingID: booking.ID})

	repo := mocks.NewMockBookingRepository(t)
	repo.EXPECT().FindByID(mock.Anything, booking.ID).Return(booking, nil).Times(2)
	repo.EXPECT().Save(mock.Anything, booking).Return(nil).Once()
	publisher := &flakyPublisher{failOnce: events.HotelCancelledEvent}
	uc := NewCompensateBooking(repo, mocks.NewMockEventStore(t), publisher)

	err := uc.Handle(context.Background(), failure)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompensationIncomplete), "got %v", err)
	assert.Equal(t, []string{events.FlightCancelledEvent}, publisher.published)
	assert.True(t, booking.NeedsCompensation())

	require.NoError(t, uc.Handle(context.Background(), failure))
	assert.Equal(t, []string{events.FlightCancelledEvent, events.HotelCancelledEvent, events.FlightCancelledEvent}, publisher.published)
	assert.NotNil(t, booking.CompensationIssuedAt)
	assert.False(t, booking.NeedsCompensation())
}

func TestCompensateBooking_CommandsAreDeterministic(t *testing.T) {
	booking := failedAfterCar(t)

	first := cancellationCommand(booking, events.StepHotel, "h-1", "Car reservation failed")
	second := cancellationCommand(booking, events.StepHotel, "h-1", "Car reservation failed")
	other := cancellationCommand(booking, events.StepHotel, "h-2", "Car reservation failed")

	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, booking.ID, first.AggregateID)
	assert.Equal(t, events.Topic(events.HotelCancelledEvent), first.Topic)
}

func TestCompensateBooking_Handle(t *testing.T) {
	booking := failedAfterCar(t)
	failure := events.NewEvent(booking.ID, events.CarReservationFailedEvent, events.ReservationFailedData{BookingID: booking.ID})

	t.Run("loads the booking and compensates", func(t *testing.T) {
		repo := mocks.NewMockBookingRepository(t)
		publisher := mocks.NewMockPublisher(t)
		repo.EXPECT().FindByID(mock.Anything, booking.ID).Return(booking, nil).Once()
		publisher.EXPECT().Publish(mock.Anything, mock.Anything).Return(nil).Times(2)
		repo.EXPECT().Save(mock.Anything, booking).Return(nil).Once()

		err := NewCompensateBooking(repo, mocks.NewMockEventStore(t), publisher).Handle(context.Background(), failure)
		assert.NoError(t, err)
	})

	t.Run("unknown booking is ignored", func(t *testing.T) {
		repo := mocks.NewMockBookingRepository(t)
		repo.EXPECT().FindByID(mock.Anything, booking.ID).Return(nil, nil).Once()

		err := NewCompensateBooking(repo, mocks.NewMockEventStore(t), mocks.NewMockPublisher(t)).Handle(context.Background(), failure)
		assert.NoError(t, err)
	})
}
