package events

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/draftea/travel-booking/shared/models"
)

var (
	ErrInvalidTopic    = errors.New("invalid topic")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrInvalidReceiver = errors.New("receiver should be a pointer")
)

// Metadata keys carried on saga events
const (
	MetadataRoutingVersion = "routing_version"
	MetadataReceiveCount   = "receive_count"
	MetadataSource         = "source"
)

// Topic represents an event topic with pattern matching support.
// A leading or trailing "#" matches any suffix/prefix, "*" matches one segment.
type Topic string

func NewTopic(topic string) (Topic, error) {
	if topic == "" {
		return "", ErrInvalidTopic
	}
	return Topic(topic), nil
}

func (t Topic) Matches(pattern Topic) bool {
	topicStr := t.String()
	patternStr := pattern.String()

	if patternStr == "#" {
		return true
	}

	if strings.HasPrefix(patternStr, "#") && strings.HasSuffix(patternStr, "#") {
		return strings.Contains(topicStr, strings.Trim(patternStr, "#"))
	}

	if strings.HasPrefix(patternStr, "#") {
		return strings.HasSuffix(topicStr, strings.TrimPrefix(patternStr, "#"))
	}

	if strings.HasSuffix(patternStr, "#") {
		return strings.HasPrefix(topicStr, strings.TrimSuffix(patternStr, "#"))
	}

	return matchPattern(strings.Split(patternStr, "."), strings.Split(topicStr, "."))
}

func (t Topic) String() string {
	return string(t)
}

func matchPattern(patternParts, topicParts []string) bool {
	if len(patternParts) != len(topicParts) {
		return false
	}

	if len(patternParts) == 0 {
		return true
	}

	if patternParts[0] == "*" || patternParts[0] == topicParts[0] {
		return matchPattern(patternParts[1:], topicParts[1:])
	}

	return false
}

// Metadata represents event metadata
type Metadata map[string]string

func (m Metadata) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}

func (m Metadata) Clone() Metadata {
	clone := Metadata{}
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Event is the envelope shared by every saga message. AggregateID is the booking id.
type Event struct {
	ID            models.ID   `json:"id"`
	AggregateID   models.ID   `json:"aggregate_id"`
	UserID        models.ID   `json:"user_id"`
	Topic         Topic       `json:"topic"`
	EventType     string      `json:"event_type"`
	Version       string      `json:"version"`
	Data          interface{} `json:"data"`
	Metadata      Metadata    `json:"metadata"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID models.ID   `json:"correlation_id"`
}

// Publisher publishes events
type Publisher interface {
	Publish(ctx context.Context, events ...*Event) error
}

// Subscriber subscribes to events
type Subscriber interface {
	Subscribe(ctx context.Context, handler EventHandler) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// EventHandler handles domain events
type EventHandler interface {
	Handle(ctx context.Context, event *Event) error
}

// EventHandlerFunc adapts a function to EventHandler
type EventHandlerFunc func(ctx context.Context, event *Event) error

func (f EventHandlerFunc) Handle(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// EventStore keeps the append-only saga event log used for audit
type EventStore interface {
	Append(ctx context.Context, events ...*Event) error
	GetEvents(ctx context.Context, aggregateID models.ID) ([]*Event, error)
}

// NewEvent creates a new domain event with a random id
func NewEvent(aggregateID models.ID, eventType string, data interface{}) *Event {
	return &Event{
		ID:          models.GenerateUUID(),
		AggregateID: aggregateID,
		Topic:       Topic(eventType),
		EventType:   eventType,
		Version:     "1.0",
		Data:        data,
		Metadata:    make(Metadata),
		Timestamp:   time.Now().UTC(),
	}
}

// NewDeterministicEvent creates an event whose id is derived from the aggregate,
// the event type and the optional discriminators. Emitting it twice yields the
// same id, so consumers and FIFO transports can deduplicate it.
func NewDeterministicEvent(aggregateID models.ID, eventType string, data interface{}, discriminators ...string) *Event {
	event := NewEvent(aggregateID, eventType, data)
	parts := append([]string{aggregateID.String(), eventType}, discriminators...)
	event.ID = models.DeterministicID(parts...)
	return event
}

// WithUserID sets the originating user
func (e *Event) WithUserID(userID models.ID) *Event {
	e.UserID = userID
	return e
}

// WithCorrelationID sets correlation ID
func (e *Event) WithCorrelationID(correlationID models.ID) *Event {
	e.CorrelationID = correlationID
	return e
}

// WithMetadata adds metadata
func (e *Event) WithMetadata(key string, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(Metadata)
	}
	e.Metadata[key] = value
	return e
}

// ToJSON converts event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON creates event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	if event.Topic == "" {
		event.Topic = Topic(event.EventType)
	}
	return &event, nil
}

// MarshalPayload marshals the event payload
func (e *Event) MarshalPayload() (json.RawMessage, error) {
	if b, ok := e.Data.([]byte); ok {
		return b, nil
	}

	if b, ok := e.Data.(json.RawMessage); ok {
		return b, nil
	}

	return json.Marshal(e.Data)
}

// UnmarshalPayload unmarshals the event payload into the given pointer. Payloads
// that crossed a transport arrive as generic JSON and are decoded again.
func (e *Event) UnmarshalPayload(v interface{}) error {
	vValue := reflect.ValueOf(v)
	if vValue.Kind() != reflect.Ptr || vValue.IsNil() {
		return ErrInvalidReceiver
	}

	if e.Data == nil {
		return ErrInvalidPayload
	}

	vValue = vValue.Elem()
	payloadValue := reflect.ValueOf(e.Data)
	if vValue.Type() == payloadValue.Type() {
		vValue.Set(payloadValue)
		return nil
	}
	if payloadValue.Kind() == reflect.Ptr && !payloadValue.IsNil() && vValue.Type() == payloadValue.Elem().Type() {
		vValue.Set(payloadValue.Elem())
		return nil
	}

	raw, err := e.MarshalPayload()
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, v)
}

// Matches checks if the event matches the given topic pattern
func (e *Event) Matches(topicPattern Topic) bool {
	return e.Topic.Matches(topicPattern)
}

// Clone creates a copy of the event
func (e *Event) Clone() *Event {
	return &Event{
		ID:            e.ID,
		AggregateID:   e.AggregateID,
		UserID:        e.UserID,
		Topic:         e.Topic,
		EventType:     e.EventType,
		Version:       e.Version,
		Data:          e.Data,
		Metadata:      e.Metadata.Clone(),
		Timestamp:     e.Timestamp,
		CorrelationID: e.CorrelationID,
	}
}

// Event Types Constants
const (
	// Booking Events
	BookingCreatedEvent       = "booking.created"
	BookingCompletedEvent     = "booking.completed"
	BookingCancelledEvent     = "booking.cancelled"
	BookingStatusChangedEvent = "booking.status.changed"

	// Flight Events
	FlightReservedEvent          = "flight.reserved"
	FlightReservationFailedEvent = "flight.reservation.failed"
	FlightCancelledEvent         = "flight.cancelled"

	// Hotel Events
	HotelReservationRequestedEvent = "hotel.reservation.requested"
	HotelReservedEvent             = "hotel.reserved"
	HotelReservationFailedEvent    = "hotel.reservation.failed"
	HotelCancelledEvent            = "hotel.cancelled"

	// Car Events
	CarReservationRequestedEvent = "car.reservation.requested"
	CarReservedEvent             = "car.reserved"
	CarReservationFailedEvent    = "car.reservation.failed"
	CarCancelledEvent            = "car.cancelled"

	// Cancellation acknowledgments from any reservation participant
	ReservationCancellationAcknowledgedEvent = "reservation.cancellation.acknowledged"

	// Payment Events
	PaymentRequestedEvent       = "payment.requested"
	PaymentProcessedEvent       = "payment.processed"
	PaymentFailedEvent          = "payment.failed"
	PaymentRefundRequestedEvent = "payment.refund.requested"
	PaymentRefundedEvent        = "payment.refunded"

	// FailurePattern matches every event that terminates the forward path
	FailurePattern Topic = "#.failed"
)
