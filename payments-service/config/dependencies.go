package config

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/draftea/travel-booking/payments-service/application"
	"github.com/draftea/travel-booking/payments-service/domain"
	"github.com/draftea/travel-booking/payments-service/handlers"
	"github.com/draftea/travel-booking/payments-service/infrastructure"
	sharedconfig "github.com/draftea/travel-booking/shared/config"
	sharedinfra "github.com/draftea/travel-booking/shared/infrastructure"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/saga"
	"github.com/draftea/travel-booking/shared/telemetry"
)

type Dependencies struct {
	// Database
	DB *sqlx.DB

	// Repositories
	PaymentRepository domain.PaymentRepository
	WalletRepository  domain.WalletRepository

	// Payment providers
	Charger *domain.MethodRouter

	// Use Cases
	ProcessPayment *application.ProcessPayment
	RefundPayment  *application.RefundPayment
	GetPayment     *application.GetPayment
	GetWallet      *application.GetWallet
	DepositFunds   *application.DepositFunds

	// HTTP Handlers
	PaymentHandlers *handlers.PaymentHandlers

	// Event Handlers
	EventDispatcher *saga.EventDispatcher

	// Infrastructure
	Transport *sharedinfra.Transport
}

// BuildDependencies wires the payment participant. cardCharger overrides the
// simulated card processor when not nil; bus is only used by the memory transport.
func BuildDependencies(
	ctx context.Context,
	cfg *sharedconfig.Config,
	cardCharger domain.Charger,
	bus *sharedinfra.MemoryBus,
	tel *telemetry.Telemetry,
	log logger.Logger,
) (*Dependencies, error) {
	deps := &Dependencies{}

	if cfg.Database.Kind == sharedconfig.StorageMemory {
		deps.PaymentRepository = infrastructure.NewMemoryPaymentRepository()
		deps.WalletRepository = infrastructure.NewMemoryWalletRepository()
	} else {
		db, err := sharedinfra.ConnectPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		deps.DB = db
		deps.PaymentRepository = infrastructure.NewPostgresPaymentRepository(db)
		deps.WalletRepository = infrastructure.NewPostgresWalletRepository(db)
	}

	transport, err := sharedinfra.NewTransport(ctx, cfg, bus, log)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	deps.Transport = transport

	if cardCharger == nil {
		cardCharger = domain.NewProbabilisticCharger(cfg.Outcome.SuccessRate)
	}
	deps.Charger = domain.NewMethodRouter(cardCharger).
		Route(domain.PaymentMethodTypeWallet, application.NewWalletCharger(deps.WalletRepository))

	deps.ProcessPayment = application.NewProcessPayment(deps.PaymentRepository, deps.Charger, transport.Publisher)
	deps.RefundPayment = application.NewRefundPayment(deps.PaymentRepository, deps.Charger, transport.Publisher)
	deps.GetPayment = application.NewGetPayment(deps.PaymentRepository)
	deps.GetWallet = application.NewGetWallet(deps.WalletRepository)
	deps.DepositFunds = application.NewDepositFunds(deps.WalletRepository)

	deps.PaymentHandlers = handlers.NewPaymentHandlers(deps.GetPayment, deps.GetWallet, deps.DepositFunds)
	deps.EventDispatcher = handlers.NewPaymentEventDispatcher(deps.ProcessPayment, deps.RefundPayment, tel, log)

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
