package infrastructure

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
)

var _ events.EventStore = (*MemoryEventStore)(nil)

// MemoryEventStore is the in-process saga event log used by the sandbox.
// Like the Postgres log it stores each event id once.
type MemoryEventStore struct {
	mu     sync.RWMutex
	seen   map[models.ID]struct{}
	byBook map[models.ID][][]byte
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		seen:   make(map[models.ID]struct{}),
		byBook: make(map[models.ID][][]byte),
	}
}

func (s *MemoryEventStore) Append(_ context.Context, evts ...*events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range evts {
		if _, ok := s.seen[event.ID]; ok {
			continue
		}
		body, err := encodeEvent(event)
		if err != nil {
			return errors.Wrap(err, "failed to convert event")
		}
		s.seen[event.ID] = struct{}{}
		s.byBook[event.AggregateID] = append(s.byBook[event.AggregateID], body)
	}
	return nil
}

func (s *MemoryEventStore) GetEvents(_ context.Context, bookingID models.ID) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.byBook[bookingID]
	result := make([]*events.Event, 0, len(stored))
	for _, body := range stored {
		event, err := decodeEvent(body)
		if err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, nil
}
