package config

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/draftea/travel-booking/reservation-service/application"
	"github.com/draftea/travel-booking/reservation-service/domain"
	"github.com/draftea/travel-booking/reservation-service/handlers"
	"github.com/draftea/travel-booking/reservation-service/infrastructure"
	sharedconfig "github.com/draftea/travel-booking/shared/config"
	"github.com/draftea/travel-booking/shared/events"
	sharedinfra "github.com/draftea/travel-booking/shared/infrastructure"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/saga"
	"github.com/draftea/travel-booking/shared/telemetry"
)

type Dependencies struct {
	Step events.Step

	// Database
	DB *sqlx.DB

	// Repositories
	ReservationRepository domain.ReservationRepository

	// Use Cases
	ReserveResource   *application.ReserveResource
	CancelReservation *application.CancelReservation
	GetReservation    *application.GetReservation

	// HTTP Handlers
	ReservationHandlers *handlers.ReservationHandlers

	// Event Handlers
	EventDispatcher *saga.EventDispatcher

	// Infrastructure
	Transport *sharedinfra.Transport
}

// BuildDependencies wires the participant serving step. reserver overrides the
// simulated provider when not nil; bus is only used by the memory transport.
func BuildDependencies(
	ctx context.Context,
	step events.Step,
	cfg *sharedconfig.Config,
	reserver domain.AttemptReserver,
	bus *sharedinfra.MemoryBus,
	tel *telemetry.Telemetry,
	log logger.Logger,
) (*Dependencies, error) {
	deps := &Dependencies{Step: step}

	if cfg.Database.Kind == sharedconfig.StorageMemory {
		deps.ReservationRepository = infrastructure.NewMemoryReservationRepository()
	} else {
		db, err := sharedinfra.ConnectPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		deps.DB = db
		deps.ReservationRepository = infrastructure.NewPostgresReservationRepository(db, step)
	}

	transport, err := sharedinfra.NewTransport(ctx, cfg, bus, log)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	deps.Transport = transport

	if reserver == nil {
		reserver = domain.NewProbabilisticReserver(cfg.Outcome.SuccessRate)
	}

	deps.ReserveResource = application.NewReserveResource(step, deps.ReservationRepository, reserver, transport.Publisher)
	deps.CancelReservation = application.NewCancelReservation(step, deps.ReservationRepository, transport.Publisher)
	deps.GetReservation = application.NewGetReservation(deps.ReservationRepository)

	deps.ReservationHandlers = handlers.NewReservationHandlers(deps.GetReservation)
	deps.EventDispatcher = handlers.NewReservationEventDispatcher(step, deps.ReserveResource, deps.CancelReservation, tel, log)

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
