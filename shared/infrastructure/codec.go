package infrastructure

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
)

// wireMessage is the JSON body every transport carries
type wireMessage struct {
	ID            string          `json:"id"`
	BookingID     string          `json:"booking_id"`
	UserID        string          `json:"user_id"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Metadata      events.Metadata `json:"metadata"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// snsNotification is the SNS envelope SQS receives when raw delivery is off
type snsNotification struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

func encodeEvent(event *events.Event) ([]byte, error) {
	payload, err := event.MarshalPayload()
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	message := wireMessage{
		ID:            event.ID.String(),
		BookingID:     event.AggregateID.String(),
		UserID:        event.UserID.String(),
		EventType:     event.EventType,
		Version:       event.Version,
		Metadata:      event.Metadata,
		Payload:       payload,
		Timestamp:     event.Timestamp,
		CorrelationID: event.CorrelationID.String(),
	}

	body, err := json.Marshal(message)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}
	return body, nil
}

func decodeEvent(body []byte) (*events.Event, error) {
	var notification snsNotification
	if err := json.Unmarshal(body, &notification); err == nil && notification.Type == "Notification" {
		body = []byte(notification.Message)
	}

	var message wireMessage
	if err := json.Unmarshal(body, &message); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal message")
	}
	if message.EventType == "" {
		return nil, errors.Wrap(events.ErrInvalidTopic, "message without event type")
	}

	metadata := message.Metadata
	if metadata == nil {
		metadata = make(events.Metadata)
	}

	return &events.Event{
		ID:            models.ID(message.ID),
		AggregateID:   models.ID(message.BookingID),
		UserID:        models.ID(message.UserID),
		Topic:         events.Topic(message.EventType),
		EventType:     message.EventType,
		Version:       message.Version,
		Data:          message.Payload,
		Metadata:      metadata,
		Timestamp:     message.Timestamp,
		CorrelationID: models.ID(message.CorrelationID),
	}, nil
}
