package saga

import (
	"context"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
)

// Router emits the next forward event of the choreography. Each participant
// embeds one and re-derives the next step from the original request.
type Router struct {
	publisher events.Publisher
	source    string
}

// NewRouter creates a router publishing on behalf of source (the participant name)
func NewRouter(publisher events.Publisher, source string) *Router {
	return &Router{publisher: publisher, source: source}
}

// Next builds the event asking the next step to run, without publishing it
func (r *Router) Next(bookingID, userID models.ID, request events.BookingRequest, acquired events.References) *events.Event {
	step := NextStep(request, acquired)

	var data interface{}
	if step == events.StepPayment {
		data = events.PaymentRequestedData{
			BookingID:  bookingID,
			UserID:     userID,
			Request:    request,
			References: acquired,
		}
	} else {
		data = events.ReservationRequestedData{
			BookingID:  bookingID,
			UserID:     userID,
			Step:       step,
			Request:    request,
			References: acquired,
		}
	}

	return events.NewDeterministicEvent(bookingID, events.ReservationRequestedTopic(step), data).
		WithUserID(userID).
		WithCorrelationID(bookingID).
		WithMetadata(events.MetadataRoutingVersion, RoutingTableVersion).
		WithMetadata(events.MetadataSource, r.source)
}

// Route publishes the next forward event and returns it
func (r *Router) Route(ctx context.Context, bookingID, userID models.ID, request events.BookingRequest, acquired events.References) (*events.Event, error) {
	event := r.Next(bookingID, userID, request, acquired)
	if err := r.publisher.Publish(ctx, event); err != nil {
		return nil, errors.Wrapf(err, "failed to route booking %s to %s", bookingID, event.EventType)
	}
	return event, nil
}
