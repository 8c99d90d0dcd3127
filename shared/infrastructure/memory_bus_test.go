package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/models"
)

type recordingHandler struct {
	received []*events.Event
	failures int
	onHandle func(ctx context.Context, event *events.Event)
}

func (h *recordingHandler) Handle(ctx context.Context, event *events.Event) error {
	h.received = append(h.received, event)
	if h.onHandle != nil {
		h.onHandle(ctx, event)
	}
	if h.failures > 0 {
		h.failures--
		return errors.New("temporary failure")
	}
	return nil
}

func startSubscriber(t *testing.T, bus *MemoryBus, name string, handler events.EventHandler) *MemorySubscriber {
	t.Helper()
	s := bus.Subscriber(name)
	require.NoError(t, s.Subscribe(context.Background(), handler))
	require.NoError(t, s.Start(context.Background()))
	return s
}

func TestMemoryBus_DeliversToEveryRunningSubscriber(t *testing.T) {
	bus := NewMemoryBus(logger.NewNop())
	flight := &recordingHandler{}
	booking := &recordingHandler{}
	stopped := &recordingHandler{}
	startSubscriber(t, bus, "flight-service", flight)
	startSubscriber(t, bus, "booking-service", booking)
	s := startSubscriber(t, bus, "car-service", stopped)
	require.NoError(t, s.Stop(context.Background()))

	bookingID := models.GenerateUUID()
	event := events.NewEvent(bookingID, events.BookingCreatedEvent, events.BookingCreatedData{BookingID: bookingID})
	require.NoError(t, bus.Publish(context.Background(), event))

	require.Len(t, flight.received, 1)
	require.Len(t, booking.received, 1)
	assert.Empty(t, stopped.received)

	received := flight.received[0]
	assert.Equal(t, event.ID, received.ID)
	assert.Equal(t, "1", received.Metadata[events.MetadataReceiveCount])

	var data events.BookingCreatedData
	require.NoError(t, received.UnmarshalPayload(&data))
	assert.Equal(t, bookingID, data.BookingID)

	published := bus.Published()
	require.Len(t, published, 1)
	assert.Equal(t, event.ID, published[0].ID)
}

func TestMemoryBus_DuplicateDeliveries(t *testing.T) {
	bus := NewMemoryBus(logger.NewNop(), WithDuplicateDeliveries(2))
	handler := &recordingHandler{}
	startSubscriber(t, bus, "hotel-service", handler)

	require.NoError(t, bus.Publish(context.Background(), events.NewEvent(models.GenerateUUID(), events.HotelReservationRequestedEvent, nil)))

	require.Len(t, handler.received, 3)
	assert.Equal(t, handler.received[0].ID, handler.received[2].ID)
	assert.Len(t, bus.Published(), 1)
}

func TestMemoryBus_RedeliversFailedEvents(t *testing.T) {
	t.Run("until the handler succeeds", func(t *testing.T) {
		bus := NewMemoryBus(logger.NewNop())
		handler := &recordingHandler{failures: 2}
		startSubscriber(t, bus, "payments-service", handler)

		require.NoError(t, bus.Publish(context.Background(), events.NewEvent(models.GenerateUUID(), events.PaymentRequestedEvent, nil)))

		require.Len(t, handler.received, 3)
		assert.Equal(t, "3", handler.received[2].Metadata[events.MetadataReceiveCount])
		assert.Empty(t, bus.DeadLetters())
	})

	t.Run("dead letters after max deliveries", func(t *testing.T) {
		bus := NewMemoryBus(logger.NewNop(), WithMaxDeliveries(2))
		handler := &recordingHandler{failures: 10}
		startSubscriber(t, bus, "payments-service", handler)

		event := events.NewEvent(models.GenerateUUID(), events.PaymentRequestedEvent, nil)
		require.NoError(t, bus.Publish(context.Background(), event))

		assert.Len(t, handler.received, 2)
		deadLetters := bus.DeadLetters()
		require.Len(t, deadLetters, 1)
		assert.Equal(t, event.ID, deadLetters[0].ID)
	})
}

func TestMemoryBus_NestedPublishKeepsOrder(t *testing.T) {
	bus := NewMemoryBus(logger.NewNop())
	bookingID := models.GenerateUUID()

	participant := &recordingHandler{}
	participant.onHandle = func(ctx context.Context, event *events.Event) {
		if event.EventType == events.BookingCreatedEvent {
			_ = bus.Publish(ctx,
				events.NewEvent(bookingID, events.FlightReservedEvent, nil),
				events.NewEvent(bookingID, events.PaymentRequestedEvent, nil),
			)
		}
	}
	startSubscriber(t, bus, "flight-service", participant)

	require.NoError(t, bus.Publish(context.Background(), events.NewEvent(bookingID, events.BookingCreatedEvent, nil)))

	var types []string
	for _, e := range participant.received {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{events.BookingCreatedEvent, events.FlightReservedEvent, events.PaymentRequestedEvent}, types)
}

func TestMemorySubscriber_Lifecycle(t *testing.T) {
	bus := NewMemoryBus(logger.NewNop())
	s := bus.Subscriber("booking-service")

	assert.Error(t, s.Start(context.Background()))

	require.NoError(t, s.Subscribe(context.Background(), &recordingHandler{}))
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Subscribe(context.Background(), &recordingHandler{}))
}

func TestCodec(t *testing.T) {
	bookingID := models.GenerateUUID()
	event := events.NewDeterministicEvent(bookingID, events.FlightReservedEvent, events.ReservedData{BookingID: bookingID, Step: events.StepFlight}).
		WithUserID(models.GenerateUUID()).
		WithCorrelationID(bookingID).
		WithMetadata(events.MetadataSource, "flight-service")

	body, err := encodeEvent(event)
	require.NoError(t, err)

	t.Run("raw body", func(t *testing.T) {
		decoded, err := decodeEvent(body)
		require.NoError(t, err)
		assert.Equal(t, event.ID, decoded.ID)
		assert.Equal(t, event.AggregateID, decoded.AggregateID)
		assert.Equal(t, event.UserID, decoded.UserID)
		assert.Equal(t, event.Topic, decoded.Topic)
		assert.Equal(t, event.CorrelationID, decoded.CorrelationID)
		assert.Equal(t, "flight-service", decoded.Metadata[events.MetadataSource])
		assert.True(t, event.Timestamp.Equal(decoded.Timestamp))

		var data events.ReservedData
		require.NoError(t, decoded.UnmarshalPayload(&data))
		assert.Equal(t, events.StepFlight, data.Step)
	})

	t.Run("sns envelope", func(t *testing.T) {
		envelope, err := json.Marshal(snsNotification{Type: "Notification", Message: string(body)})
		require.NoError(t, err)

		decoded, err := decodeEvent(envelope)
		require.NoError(t, err)
		assert.Equal(t, event.ID, decoded.ID)
	})

	t.Run("missing event type", func(t *testing.T) {
		_, err := decodeEvent([]byte(`{"id":"x"}`))
		assert.ErrorIs(t, err, events.ErrInvalidTopic)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := decodeEvent([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestMemoryEventStore(t *testing.T) {
	store := NewMemoryEventStore()
	bookingID := models.GenerateUUID()

	created := events.NewDeterministicEvent(bookingID, events.BookingCreatedEvent, events.BookingCreatedData{BookingID: bookingID})
	reserved := events.NewDeterministicEvent(bookingID, events.FlightReservedEvent, nil)
	other := events.NewEvent(models.GenerateUUID(), events.BookingCreatedEvent, nil)

	require.NoError(t, store.Append(context.Background(), created, reserved, other))
	require.NoError(t, store.Append(context.Background(), created))

	stored, err := store.GetEvents(context.Background(), bookingID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, created.ID, stored[0].ID)
	assert.Equal(t, reserved.ID, stored[1].ID)

	empty, err := store.GetEvents(context.Background(), models.GenerateUUID())
	require.NoError(t, err)
	assert.Empty(t, empty)
}
