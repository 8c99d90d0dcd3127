package config_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftea/travel-booking/booking-service/application"
	"github.com/draftea/travel-booking/booking-service/config"
	paymentsconfig "github.com/draftea/travel-booking/payments-service/config"
	paymentsdomain "github.com/draftea/travel-booking/payments-service/domain"
	reservationconfig "github.com/draftea/travel-booking/reservation-service/config"
	reservationdomain "github.com/draftea/travel-booking/reservation-service/domain"
	sharedconfig "github.com/draftea/travel-booking/shared/config"
	"github.com/draftea/travel-booking/shared/events"
	sharedinfra "github.com/draftea/travel-booking/shared/infrastructure"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/models"
)

const travellerID = "550e8400-e29b-41d4-a716-446655440010"

type outcomes struct {
	failStep    events.Step
	failPayment bool
}

type travelAgency struct {
	bus     *sharedinfra.MemoryBus
	booking *config.Dependencies
}

func serviceConfig(name string) *sharedconfig.Config {
	return &sharedconfig.Config{
		ServiceName: name,
		Database:    sharedconfig.Database{Kind: sharedconfig.StorageMemory},
		Transport:   sharedconfig.Transport{Kind: sharedconfig.TransportMemory},
		Saga:        sharedconfig.Saga{WatchdogSchedule: "@every 1m", SweepBatchSize: 10},
		Outcome:     sharedconfig.Outcome{SuccessRate: 1},
	}
}

// newTravelAgency runs every participant on one in-memory bus with
// deterministic provider answers
func newTravelAgency(t *testing.T, o outcomes, opts ...sharedinfra.MemoryBusOption) *travelAgency {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNop()
	bus := sharedinfra.NewMemoryBus(log, opts...)

	start := func(subscriber events.Subscriber, handler events.EventHandler) {
		require.NoError(t, subscriber.Subscribe(ctx, handler))
		require.NoError(t, subscriber.Start(ctx))
	}

	booking, err := config.BuildDependencies(ctx, serviceConfig(config.Service.Name), bus, nil, log)
	require.NoError(t, err)
	start(booking.Transport.Subscriber, booking.EventDispatcher)

	for _, step := range events.ReservationSteps {
		reserver := reservationdomain.StaticReserver{Fail: step == o.failStep}
		deps, err := reservationconfig.BuildDependencies(ctx, step, serviceConfig(reservationdomain.ServiceName(step)), reserver, bus, nil, log)
		require.NoError(t, err)
		start(deps.Transport.Subscriber, deps.EventDispatcher)
	}

	payments, err := paymentsconfig.BuildDependencies(ctx, serviceConfig(paymentsconfig.Service.Name),
		paymentsdomain.StaticCharger{Fail: o.failPayment}, bus, nil, log)
	require.NoError(t, err)
	start(payments.Transport.Subscriber, payments.EventDispatcher)

	return &travelAgency{bus: bus, booking: booking}
}

func tripRequest(hotel, car bool) events.BookingRequest {
	r := events.BookingRequest{
		Flight: &events.FlightRequest{
			FlightID:   "AR1140",
			Departure:  "EZE",
			Arrival:    "MAD",
			Date:       "2026-12-01",
			Passengers: []events.Passenger{{FirstName: "Ana", LastName: "Gomez", Seat: "12A"}},
		},
		Payment: events.PaymentRequest{PaymentMethod: "credit_card", Amount: models.NewMoney(150000, "USD")},
	}
	if hotel {
		r.Hotel = &events.HotelRequest{HotelID: "HILTON-MAD", CheckInDate: "2026-12-01", CheckOutDate: "2026-12-08", Guests: 1, RoomType: "DOUBLE"}
	}
	if car {
		r.Car = &events.CarRequest{CarID: "SEAT-IBIZA", PickupDate: "2026-12-01", DropoffDate: "2026-12-08", PickupLocation: "MAD"}
	}
	return r
}

func (a *travelAgency) book(t *testing.T, request events.BookingRequest) *application.BookingResponse {
	t.Helper()
	ctx := context.Background()

	created, err := a.booking.CreateBooking.Execute(ctx, &application.CreateBookingCommand{UserID: travellerID, Request: request})
	require.NoError(t, err)

	booking, err := a.booking.GetBooking.Execute(ctx, &application.GetBookingQuery{BookingID: created.BookingID})
	require.NoError(t, err)
	return booking
}

// statusTrail returns the statuses a booking went through, in order
func (a *travelAgency) statusTrail(t *testing.T, bookingID string) []string {
	t.Helper()
	trail, err := a.booking.GetBookingEvents.Execute(context.Background(), &application.GetBookingEventsQuery{BookingID: bookingID})
	require.NoError(t, err)

	var statuses []string
	for _, e := range trail {
		if e.EventType != events.BookingStatusChangedEvent {
			continue
		}
		var change events.BookingStatusChangedData
		require.NoError(t, json.Unmarshal(e.Data, &change))
		statuses = append(statuses, change.To)
	}
	return statuses
}

// published returns the event types the bus carried for a booking
func (a *travelAgency) published(bookingID string) []string {
	var types []string
	for _, e := range a.bus.Published() {
		if e.AggregateID.String() == bookingID {
			types = append(types, e.EventType)
		}
	}
	return types
}

func filter(types []string, keep func(string) bool) []string {
	var out []string
	for _, t := range types {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func isCancellation(eventType string) bool {
	return eventType == events.FlightCancelledEvent ||
		eventType == events.HotelCancelledEvent ||
		eventType == events.CarCancelledEvent
}

func isPayment(eventType string) bool {
	step, ok := events.StepFromTopic(events.Topic(eventType))
	return ok && step == events.StepPayment
}

func TestSaga_FlightOnlyConfirms(t *testing.T) {
	agency := newTravelAgency(t, outcomes{})

	booking := agency.book(t, tripRequest(false, false))

	assert.Equal(t, "CONFIRMED", booking.Status)
	require.NotNil(t, booking.Flight)
	assert.Nil(t, booking.Hotel)
	assert.Nil(t, booking.Car)
	assert.NotEmpty(t, booking.PaymentTransactionID)
	assert.Equal(t, []string{"PENDING", "FLIGHT_RESERVED", "PAYMENT_PROCESSED", "CONFIRMED"}, agency.statusTrail(t, booking.BookingID))
}

func TestSaga_FlightHotelAndPaymentConfirms(t *testing.T) {
	agency := newTravelAgency(t, outcomes{})

	booking := agency.book(t, tripRequest(true, false))

	assert.Equal(t, "CONFIRMED", booking.Status)
	require.NotNil(t, booking.Flight)
	require.NotNil(t, booking.Hotel)
	assert.NotEmpty(t, booking.Flight.ReservationID)
	assert.NotEmpty(t, booking.Hotel.ReservationID)
	assert.NotEmpty(t, booking.PaymentTransactionID)
	assert.Nil(t, booking.Car)
	assert.Empty(t, filter(agency.published(booking.BookingID), isCancellation))
}

func TestSaga_FlightFailureStopsEverything(t *testing.T) {
	agency := newTravelAgency(t, outcomes{failStep: events.StepFlight})

	booking := agency.book(t, tripRequest(true, true))

	assert.Equal(t, "FAILED", booking.Status)
	assert.Equal(t, "FLIGHT_RESERVATION", booking.FailedStep)
	assert.Nil(t, booking.Flight)

	published := agency.published(booking.BookingID)
	assert.Equal(t, []string{events.BookingCreatedEvent, events.FlightReservationFailedEvent}, published)
}

func TestSaga_CarFailureCompensatesHotelThenFlight(t *testing.T) {
	agency := newTravelAgency(t, outcomes{failStep: events.StepCar})

	booking := agency.book(t, tripRequest(true, true))

	assert.Equal(t, "FAILED", booking.Status)
	assert.Equal(t, "CAR_RESERVATION", booking.FailedStep)

	published := agency.published(booking.BookingID)
	assert.Equal(t, []string{events.HotelCancelledEvent, events.FlightCancelledEvent}, filter(published, isCancellation))
	assert.Empty(t, filter(published, isPayment))

	require.NotNil(t, booking.Flight)
	require.NotNil(t, booking.Hotel)
	assert.NotNil(t, booking.Flight.CancelledAt)
	assert.NotNil(t, booking.Hotel.CancelledAt)
}

func TestSaga_PaymentFailureCompensatesReservations(t *testing.T) {
	agency := newTravelAgency(t, outcomes{failPayment: true})

	booking := agency.book(t, tripRequest(true, false))

	assert.Equal(t, "FAILED", booking.Status)
	assert.Equal(t, "PAYMENT", booking.FailedStep)
	assert.Equal(t, "Payment failed", booking.ErrorMessage)

	published := agency.published(booking.BookingID)
	assert.Equal(t, []string{events.HotelCancelledEvent, events.FlightCancelledEvent}, filter(published, isCancellation))
	assert.NotContains(t, published, events.BookingCompletedEvent)
}

func TestSaga_RedeliveryReachesTheSameState(t *testing.T) {
	tests := []struct {
		name     string
		outcomes outcomes
		hotel    bool
		car      bool
	}{
		{name: "confirmed", hotel: true, car: true},
		{name: "car failure", outcomes: outcomes{failStep: events.StepCar}, hotel: true, car: true},
		{name: "payment failure", outcomes: outcomes{failPayment: true}, hotel: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := newTravelAgency(t, tt.outcomes)
			thrice := newTravelAgency(t, tt.outcomes, sharedinfra.WithDuplicateDeliveries(2))

			want := once.book(t, tripRequest(tt.hotel, tt.car))
			got := thrice.book(t, tripRequest(tt.hotel, tt.car))

			assert.Equal(t, want.Status, got.Status)
			assert.Equal(t, want.FailedStep, got.FailedStep)
			assert.Equal(t, want.Flight != nil, got.Flight != nil)
			assert.Equal(t, want.Hotel != nil, got.Hotel != nil)
			assert.Equal(t, want.Car != nil, got.Car != nil)
			assert.Equal(t, want.PaymentTransactionID != "", got.PaymentTransactionID != "")
			assert.Equal(t, once.statusTrail(t, want.BookingID), thrice.statusTrail(t, got.BookingID))
			assert.Empty(t, thrice.bus.DeadLetters())
		})
	}
}
