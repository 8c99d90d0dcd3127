package saga

import (
	"context"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
)

type registration struct {
	pattern events.Topic
	handler events.EventHandler
}

// EventDispatcher routes inbound saga events to the handlers registered for
// their topic. Events of the same booking are handled one at a time.
type EventDispatcher struct {
	name          string
	registrations []registration
	locker        *KeyedLocker
	logger        logger.Logger
}

// NewEventDispatcher creates a dispatcher for the named consumer
func NewEventDispatcher(name string, log logger.Logger) *EventDispatcher {
	return &EventDispatcher{
		name:   name,
		locker: NewKeyedLocker(),
		logger: log.With("consumer", name),
	}
}

// RegisterHandler registers a handler for an exact topic or a topic pattern
func (d *EventDispatcher) RegisterHandler(pattern string, handler events.EventHandler) {
	d.registrations = append(d.registrations, registration{
		pattern: events.Topic(pattern),
		handler: handler,
	})
}

// RegisterHandlerFunc registers a function handler
func (d *EventDispatcher) RegisterHandlerFunc(pattern string, fn func(ctx context.Context, event *events.Event) error) {
	d.RegisterHandler(pattern, events.EventHandlerFunc(fn))
}

// HandlerID identifies the dispatcher in transport logs
func (d *EventDispatcher) HandlerID() string {
	return d.name
}

// Topics returns the registered patterns
func (d *EventDispatcher) Topics() []string {
	topics := make([]string, 0, len(d.registrations))
	for _, r := range d.registrations {
		topics = append(topics, r.pattern.String())
	}
	return topics
}

// Handle runs every matching handler in registration order. The first error is
// returned so the transport redelivers the event; handlers are idempotent.
func (d *EventDispatcher) Handle(ctx context.Context, event *events.Event) error {
	log := d.logger.With(
		"event_id", event.ID,
		"event_type", event.EventType,
		"booking_id", event.AggregateID,
	)

	if v, ok := event.Metadata.Get(events.MetadataRoutingVersion); ok && v != RoutingTableVersion {
		log.Warn("routing table version mismatch", "received", v, "local", RoutingTableVersion)
	}

	matched := false
	unlock := d.locker.Lock(event.AggregateID.String())
	defer unlock()

	for _, r := range d.registrations {
		if !event.Topic.Matches(r.pattern) {
			continue
		}
		matched = true
		if err := r.handler.Handle(logger.WithContext(ctx, log), event); err != nil {
			log.Error("event handler failed", "pattern", r.pattern, "error", err)
			return errors.Wrapf(err, "handling %s", event.EventType)
		}
	}

	if !matched {
		log.Debug("no handler registered for event")
	}
	return nil
}
