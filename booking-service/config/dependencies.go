package config

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/draftea/travel-booking/booking-service/application"
	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/booking-service/handlers"
	"github.com/draftea/travel-booking/booking-service/infrastructure"
	sharedconfig "github.com/draftea/travel-booking/shared/config"
	"github.com/draftea/travel-booking/shared/events"
	sharedinfra "github.com/draftea/travel-booking/shared/infrastructure"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/saga"
	"github.com/draftea/travel-booking/shared/telemetry"
)

type Dependencies struct {
	// Database
	DB *sqlx.DB

	// Repositories
	BookingRepository domain.BookingRepository
	EventStore        events.EventStore

	// Use Cases
	CreateBooking          *application.CreateBooking
	GetBooking             *application.GetBooking
	ListBookings           *application.ListBookings
	CancelBooking          *application.CancelBooking
	GetBookingEvents       *application.GetBookingEvents
	ProjectBookingEvent    *application.ProjectBookingEvent
	CompensateBooking      *application.CompensateBooking
	ReconcileStuckBookings *application.ReconcileStuckBookings

	// HTTP Handlers
	BookingHandlers *handlers.BookingHandlers

	// Event Handlers
	EventDispatcher *saga.EventDispatcher
	Watchdog        *handlers.Watchdog

	// Infrastructure
	Transport *sharedinfra.Transport
}

// BuildDependencies wires the booking service. bus is only used by the memory
// transport and may be nil.
func BuildDependencies(ctx context.Context, cfg *sharedconfig.Config, bus *sharedinfra.MemoryBus, tel *telemetry.Telemetry, log logger.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	if cfg.Database.Kind == sharedconfig.StorageMemory {
		deps.BookingRepository = infrastructure.NewMemoryBookingRepository()
		deps.EventStore = sharedinfra.NewMemoryEventStore()
	} else {
		db, err := sharedinfra.ConnectPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		deps.DB = db
		deps.BookingRepository = infrastructure.NewPostgresBookingRepository(db)
		deps.EventStore = sharedinfra.NewPostgresEventStore(db)
	}

	transport, err := sharedinfra.NewTransport(ctx, cfg, bus, log)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	deps.Transport = transport
	publisher := transport.Publisher

	// Initialize use cases
	deps.CompensateBooking = application.NewCompensateBooking(deps.BookingRepository, deps.EventStore, publisher)
	deps.CreateBooking = application.NewCreateBooking(deps.BookingRepository, deps.EventStore, publisher)
	deps.GetBooking = application.NewGetBooking(deps.BookingRepository)
	deps.ListBookings = application.NewListBookings(deps.BookingRepository)
	deps.CancelBooking = application.NewCancelBooking(deps.BookingRepository, deps.EventStore, publisher, deps.CompensateBooking)
	deps.GetBookingEvents = application.NewGetBookingEvents(deps.BookingRepository, deps.EventStore)
	deps.ProjectBookingEvent = application.NewProjectBookingEvent(deps.BookingRepository, deps.EventStore, publisher)
	deps.ReconcileStuckBookings = application.NewReconcileStuckBookings(
		deps.BookingRepository,
		deps.EventStore,
		deps.CompensateBooking,
		cfg.Saga.StuckAfter,
		cfg.Saga.SweepBatchSize,
	)

	// Initialize handlers
	deps.BookingHandlers = handlers.NewBookingHandlers(
		deps.CreateBooking,
		deps.GetBooking,
		deps.ListBookings,
		deps.CancelBooking,
		deps.GetBookingEvents,
	)
	deps.EventDispatcher = handlers.NewBookingEventDispatcher(deps.ProjectBookingEvent, deps.CompensateBooking, tel, log)

	watchdog, err := handlers.NewWatchdog(cfg.Saga.WatchdogSchedule, deps.ReconcileStuckBookings, tel, log)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("invalid watchdog schedule %q: %w", cfg.Saga.WatchdogSchedule, err)
	}
	deps.Watchdog = watchdog

	return deps, nil
}

// Close closes all dependencies
func (d *Dependencies) Close() error {
	var errs []error

	if d.Transport != nil {
		if err := d.Transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing dependencies: %v", errs)
	}

	return nil
}
