package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftea/travel-booking/shared/models"
)

func TestTopic_Matches(t *testing.T) {
	tests := []struct {
		name    string
		topic   Topic
		pattern Topic
		want    bool
	}{
		{name: "exact", topic: "flight.reserved", pattern: "flight.reserved", want: true},
		{name: "wildcard everything", topic: "payment.refunded", pattern: "#", want: true},
		{name: "failure suffix on payment", topic: PaymentFailedEvent, pattern: FailurePattern, want: true},
		{name: "failure suffix on reservation", topic: HotelReservationFailedEvent, pattern: FailurePattern, want: true},
		{name: "failure suffix on success", topic: HotelReservedEvent, pattern: FailurePattern, want: false},
		{name: "prefix", topic: "booking.status.changed", pattern: "booking.#", want: true},
		{name: "single segment", topic: "car.reserved", pattern: "*.reserved", want: true},
		{name: "single segment does not span", topic: "car.reservation.failed", pattern: "car.*", want: false},
		{name: "contains", topic: "flight.reservation.failed", pattern: "#reservation#", want: true},
		{name: "different", topic: "flight.reserved", pattern: "hotel.reserved", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.topic.Matches(tt.pattern))
		})
	}
}

func TestNewTopic(t *testing.T) {
	_, err := NewTopic("")
	assert.ErrorIs(t, err, ErrInvalidTopic)

	topic, err := NewTopic(BookingCreatedEvent)
	require.NoError(t, err)
	assert.Equal(t, Topic(BookingCreatedEvent), topic)
}

func TestNewDeterministicEvent(t *testing.T) {
	bookingID := models.GenerateUUID()

	first := NewDeterministicEvent(bookingID, FlightReservedEvent, ReservedData{BookingID: bookingID})
	second := NewDeterministicEvent(bookingID, FlightReservedEvent, ReservedData{BookingID: bookingID})
	other := NewDeterministicEvent(bookingID, FlightReservedEvent, ReservedData{BookingID: bookingID}, "retry")
	otherBooking := NewDeterministicEvent(models.GenerateUUID(), FlightReservedEvent, nil)

	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.ID, other.ID)
	assert.NotEqual(t, first.ID, otherBooking.ID)
	assert.Equal(t, Topic(FlightReservedEvent), first.Topic)
	assert.Equal(t, bookingID, first.AggregateID)
	assert.NotNil(t, first.Metadata)
}

func TestEvent_UnmarshalPayload(t *testing.T) {
	bookingID := models.GenerateUUID()
	data := PaymentFailedData{BookingID: bookingID, ErrorMessage: "Insufficient funds"}
	raw, err := json.Marshal(data)
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload interface{}
	}{
		{name: "same type", payload: data},
		{name: "pointer", payload: &data},
		{name: "raw json", payload: json.RawMessage(raw)},
		{name: "bytes", payload: raw},
		{name: "generic map", payload: map[string]interface{}{"booking_id": bookingID.String(), "error_message": "Insufficient funds"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewEvent(bookingID, PaymentFailedEvent, tt.payload)

			var got PaymentFailedData
			require.NoError(t, event.UnmarshalPayload(&got))
			assert.Equal(t, data, got)
		})
	}

	t.Run("non pointer receiver", func(t *testing.T) {
		event := NewEvent(bookingID, PaymentFailedEvent, data)
		var got PaymentFailedData
		assert.ErrorIs(t, event.UnmarshalPayload(got), ErrInvalidReceiver)
	})

	t.Run("missing payload", func(t *testing.T) {
		event := NewEvent(bookingID, PaymentFailedEvent, nil)
		var got PaymentFailedData
		assert.ErrorIs(t, event.UnmarshalPayload(&got), ErrInvalidPayload)
	})
}

func TestEvent_JSON(t *testing.T) {
	event := NewEvent(models.GenerateUUID(), BookingCancelledEvent, BookingCancelledData{Reason: "changed plans"}).
		WithUserID(models.GenerateUUID()).
		WithMetadata(MetadataSource, "booking-service")

	body, err := event.ToJSON()
	require.NoError(t, err)

	decoded, err := FromJSON(body)
	require.NoError(t, err)
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, event.UserID, decoded.UserID)
	assert.Equal(t, event.Topic, decoded.Topic)
	assert.Equal(t, "booking-service", decoded.Metadata[MetadataSource])

	var data BookingCancelledData
	require.NoError(t, decoded.UnmarshalPayload(&data))
	assert.Equal(t, "changed plans", data.Reason)
}

func TestEvent_Clone(t *testing.T) {
	event := NewEvent(models.GenerateUUID(), BookingCreatedEvent, nil).WithMetadata("k", "v")
	clone := event.Clone()
	clone.Metadata["k"] = "changed"

	assert.Equal(t, event.ID, clone.ID)
	assert.Equal(t, "v", event.Metadata["k"])
}

func TestStepTopics(t *testing.T) {
	tests := []struct {
		step      Step
		requested string
		reserved  string
		failed    string
		cancelled string
	}{
		{StepFlight, BookingCreatedEvent, FlightReservedEvent, FlightReservationFailedEvent, FlightCancelledEvent},
		{StepHotel, HotelReservationRequestedEvent, HotelReservedEvent, HotelReservationFailedEvent, HotelCancelledEvent},
		{StepCar, CarReservationRequestedEvent, CarReservedEvent, CarReservationFailedEvent, CarCancelledEvent},
	}

	for _, tt := range tests {
		t.Run(tt.step.String(), func(t *testing.T) {
			assert.Equal(t, tt.requested, ReservationRequestedTopic(tt.step))
			assert.Equal(t, tt.reserved, ReservedTopic(tt.step))
			assert.Equal(t, tt.failed, ReservationFailedTopic(tt.step))
			assert.Equal(t, tt.cancelled, CancelledTopic(tt.step))

			step, ok := StepFromTopic(Topic(tt.reserved))
			assert.True(t, ok)
			assert.Equal(t, tt.step, step)
		})
	}

	assert.Equal(t, PaymentRequestedEvent, ReservationRequestedTopic(StepPayment))

	step, ok := StepFromTopic(PaymentRefundedEvent)
	assert.True(t, ok)
	assert.Equal(t, StepPayment, step)

	_, ok = StepFromTopic(BookingCreatedEvent)
	assert.False(t, ok)
}

func TestBookingRequest_Requests(t *testing.T) {
	flightOnly := BookingRequest{Flight: &FlightRequest{FlightID: "AR1140"}}
	full := BookingRequest{Flight: &FlightRequest{}, Hotel: &HotelRequest{}, Car: &CarRequest{}}

	assert.True(t, flightOnly.Requests(StepFlight))
	assert.False(t, flightOnly.Requests(StepHotel))
	assert.False(t, flightOnly.Requests(StepCar))
	assert.True(t, flightOnly.Requests(StepPayment))
	assert.True(t, full.Requests(StepHotel))
	assert.True(t, full.Requests(StepCar))

	assert.Equal(t, flightOnly.Flight, flightOnly.ResourceRequest(StepFlight))
	assert.Nil(t, flightOnly.ResourceRequest(StepPayment))
}

func TestReferences(t *testing.T) {
	flightID := models.GenerateUUID()
	carID := models.GenerateUUID()

	var refs References
	withFlight := refs.With(StepFlight, flightID)
	withCar := withFlight.With(StepCar, carID)

	assert.True(t, refs.Get(StepFlight).IsZero())
	assert.Equal(t, flightID, withFlight.Get(StepFlight))
	assert.True(t, withFlight.Get(StepCar).IsZero())
	assert.Equal(t, carID, withCar.Get(StepCar))
	assert.True(t, withCar.Get(StepHotel).IsZero())
	assert.True(t, withCar.Get(StepPayment).IsZero())
}
