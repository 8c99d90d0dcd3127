package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/models"
)

var _ domain.BookingRepository = (*MemoryBookingRepository)(nil)

// MemoryBookingRepository keeps bookings in process memory with the same
// optimistic locking rules as the Postgres repository
type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[models.ID]domain.Booking
}

// NewMemoryBookingRepository creates an empty repository
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{bookings: make(map[models.ID]domain.Booking)}
}

func (r *MemoryBookingRepository) Save(_ context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.bookings[booking.ID]
	if booking.IsNew() {
		if exists {
			return errors.Errorf("booking %s already exists", booking.ID)
		}
		booking.MarkPersisted()
		r.bookings[booking.ID] = snapshot(booking)
		return nil
	}

	if !booking.IsDirty() {
		return nil
	}
	if !exists || stored.Version != booking.Version {
		return errors.Wrapf(domain.ErrConcurrentModification, "booking %s at version %d", booking.ID, booking.Version.Value)
	}

	booking.Version = booking.Version.Update()
	booking.MarkPersisted()
	r.bookings[booking.ID] = snapshot(booking)
	return nil
}

func (r *MemoryBookingRepository) FindByID(_ context.Context, id models.ID) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.bookings[id]
	if !ok {
		return nil, nil
	}
	return &stored, nil
}

func (r *MemoryBookingRepository) FindByUserID(_ context.Context, userID models.ID) ([]*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Booking
	for _, stored := range r.bookings {
		if stored.UserID == userID {
			b := stored
			result = append(result, &b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamps.CreatedAt.After(result[j].Timestamps.CreatedAt)
	})
	return result, nil
}

func (r *MemoryBookingRepository) FindStuck(_ context.Context, updatedBefore time.Time, limit int) ([]*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Booking
	for _, stored := range r.bookings {
		if !stored.Timestamps.UpdatedAt.Before(updatedBefore) {
			continue
		}
		if stored.Status.IsTerminal() && !stored.NeedsCompensation() {
			continue
		}
		b := stored
		result = append(result, &b)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamps.UpdatedAt.Before(result[j].Timestamps.UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// snapshot copies the persisted state without the pending events
func snapshot(booking *domain.Booking) domain.Booking {
	c := *booking
	c.ClearEvents()
	return c
}
