package infrastructure

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
)

var (
	_ events.Publisher  = (*MemoryBus)(nil)
	_ events.Subscriber = (*MemorySubscriber)(nil)
)

type memoryDelivery struct {
	subscriber *MemorySubscriber
	body       []byte
	attempt    int
}

// MemoryBus is an in-process at-least-once bus. Events are serialized exactly
// as on the network transports and delivered in publish order by whichever
// goroutine is publishing. A failed delivery goes back to the end of the queue
// until maxDeliveries is reached.
type MemoryBus struct {
	mu            sync.Mutex
	queue         []memoryDelivery
	draining      bool
	subscribers   []*MemorySubscriber
	published     [][]byte
	deadLetters   []*events.Event
	duplicates    int
	maxDeliveries int
	logger        logger.Logger
}

type MemoryBusOption func(*MemoryBus)

// WithDuplicateDeliveries delivers every event n extra times to each subscriber
func WithDuplicateDeliveries(n int) MemoryBusOption {
	return func(b *MemoryBus) {
		b.duplicates = n
	}
}

// WithMaxDeliveries bounds redelivery of events whose handler keeps failing
func WithMaxDeliveries(n int) MemoryBusOption {
	return func(b *MemoryBus) {
		if n > 0 {
			b.maxDeliveries = n
		}
	}
}

func NewMemoryBus(log logger.Logger, opts ...MemoryBusOption) *MemoryBus {
	b := &MemoryBus{
		maxDeliveries: 5,
		logger:        log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscriber returns a new named subscriber attached to the bus
func (b *MemoryBus) Subscriber(name string) *MemorySubscriber {
	s := &MemorySubscriber{name: name, bus: b}
	b.mu.Lock()
	b.subscribers = append(b.subscribers, s)
	b.mu.Unlock()
	return s
}

// Publish enqueues the events for every running subscriber and delivers the
// queue unless another goroutine is already doing so.
func (b *MemoryBus) Publish(ctx context.Context, evts ...*events.Event) error {
	bodies := make([][]byte, 0, len(evts))
	for _, event := range evts {
		body, err := encodeEvent(event)
		if err != nil {
			return err
		}
		bodies = append(bodies, body)
	}

	b.mu.Lock()
	for _, body := range bodies {
		b.published = append(b.published, body)
		for _, s := range b.subscribers {
			if !s.isRunning() {
				continue
			}
			for i := 0; i <= b.duplicates; i++ {
				b.queue = append(b.queue, memoryDelivery{subscriber: s, body: body, attempt: 1})
			}
		}
	}
	if b.draining {
		b.mu.Unlock()
		return nil
	}
	b.draining = true
	b.mu.Unlock()

	b.drain(context.WithoutCancel(ctx))
	return nil
}

func (b *MemoryBus) drain(ctx context.Context) {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.mu.Unlock()
			return
		}
		d := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		event, err := decodeEvent(d.body)
		if err != nil {
			b.logger.Error("dropping undecodable event", "error", err)
			continue
		}
		event.Metadata[events.MetadataReceiveCount] = strconv.Itoa(d.attempt)

		if err := d.subscriber.deliver(ctx, event); err != nil {
			b.mu.Lock()
			if d.attempt < b.maxDeliveries {
				d.attempt++
				b.queue = append(b.queue, d)
			} else {
				b.deadLetters = append(b.deadLetters, event)
				b.logger.Error("event dead lettered",
					"subscriber", d.subscriber.name,
					"event_type", event.EventType,
					"booking_id", event.AggregateID,
					"error", err,
				)
			}
			b.mu.Unlock()
		}
	}
}

// Published returns every event published so far, in order
func (b *MemoryBus) Published() []*events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*events.Event, 0, len(b.published))
	for _, body := range b.published {
		event, err := decodeEvent(body)
		if err != nil {
			continue
		}
		out = append(out, event)
	}
	return out
}

// DeadLetters returns events whose delivery failed maxDeliveries times
func (b *MemoryBus) DeadLetters() []*events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*events.Event(nil), b.deadLetters...)
}

// MemorySubscriber receives events from a MemoryBus once started
type MemorySubscriber struct {
	mu      sync.RWMutex
	name    string
	bus     *MemoryBus
	handler events.EventHandler
	running bool
}

func (s *MemorySubscriber) Subscribe(_ context.Context, handler events.EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("subscriber is already running")
	}
	s.handler = handler
	return nil
}

func (s *MemorySubscriber) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return errors.New("no handler configured")
	}
	s.running = true
	return nil
}

func (s *MemorySubscriber) Stop(_ context.Context) error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *MemorySubscriber) isRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *MemorySubscriber) deliver(ctx context.Context, event *events.Event) error {
	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	return handler.Handle(ctx, event)
}
