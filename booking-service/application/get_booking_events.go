package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/events"
)

// GetBookingEventsQuery reads the saga audit trail of a booking
type GetBookingEventsQuery struct {
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id,omitempty"`
}

// BookingEventResponse is one entry of the audit trail
type BookingEventResponse struct {
	EventID    string            `json:"event_id"`
	EventType  string            `json:"event_type"`
	OccurredAt string            `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Data       json.RawMessage   `json:"data"`
}

// GetBookingEvents use case
type GetBookingEvents struct {
	bookingRepository domain.BookingRepository
	eventStore        events.EventStore
}

func NewGetBookingEvents(bookingRepository domain.BookingRepository, eventStore events.EventStore) *GetBookingEvents {
	return &GetBookingEvents{
		bookingRepository: bookingRepository,
		eventStore:        eventStore,
	}
}

func (uc *GetBookingEvents) Execute(ctx context.Context, query *GetBookingEventsQuery) ([]*BookingEventResponse, error) {
	booking, err := loadOwnedBooking(ctx, uc.bookingRepository, query.BookingID, query.UserID)
	if err != nil {
		return nil, err
	}

	stored, err := uc.eventStore.GetEvents(ctx, booking.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read booking events")
	}

	responses := make([]*BookingEventResponse, 0, len(stored))
	for _, e := range stored {
		data, err := e.MarshalPayload()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode event %s", e.ID)
		}
		responses = append(responses, &BookingEventResponse{
			EventID:    e.ID.String(),
			EventType:  e.EventType,
			OccurredAt: e.Timestamp.Format(time.RFC3339Nano),
			Metadata:   e.Metadata,
			Data:       data,
		})
	}
	return responses, nil
}
