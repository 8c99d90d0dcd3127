package infrastructure

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/reservation-service/domain"
	"github.com/draftea/travel-booking/shared/models"
)

var _ domain.ReservationRepository = (*MemoryReservationRepository)(nil)

// MemoryReservationRepository keeps records in process, for tests and the sandbox
type MemoryReservationRepository struct {
	mu      sync.Mutex
	records map[models.ID]domain.ReservationRecord
}

func NewMemoryReservationRepository() *MemoryReservationRepository {
	return &MemoryReservationRepository{records: make(map[models.ID]domain.ReservationRecord)}
}

func (r *MemoryReservationRepository) Save(_ context.Context, record *domain.ReservationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.records[record.BookingID]
	if record.IsNew() {
		if exists {
			return errors.Wrapf(domain.ErrDuplicateReservation, "booking %s", record.BookingID)
		}
		record.MarkPersisted()
		r.records[record.BookingID] = snapshot(record)
		return nil
	}

	if !exists || stored.Version.Value != record.Version.Value {
		return errors.Wrapf(domain.ErrConcurrentUpdate, "reservation %s at version %d", record.ID, record.Version.Value)
	}

	record.Version = record.Version.Update()
	r.records[record.BookingID] = snapshot(record)
	return nil
}

func (r *MemoryReservationRepository) FindByBookingID(_ context.Context, bookingID models.ID) (*domain.ReservationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.records[bookingID]
	if !ok {
		return nil, nil
	}
	record := stored
	return &record, nil
}

func snapshot(record *domain.ReservationRecord) domain.ReservationRecord {
	stored := *record
	stored.ClearEvents()
	return stored
}
