package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	bookingconfig "github.com/draftea/travel-booking/booking-service/config"
	paymentsconfig "github.com/draftea/travel-booking/payments-service/config"
	reservationconfig "github.com/draftea/travel-booking/reservation-service/config"
	sharedconfig "github.com/draftea/travel-booking/shared/config"
	"github.com/draftea/travel-booking/shared/events"
	sharedinfra "github.com/draftea/travel-booking/shared/infrastructure"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/server"
	"github.com/draftea/travel-booking/shared/telemetry"
)

// sandbox runs the booking service and every participant in one process, wired
// through an in-memory bus and in-memory storage
var sandbox = sharedconfig.Service{
	Name:          "booking-sandbox",
	EnvPrefix:     "SANDBOX",
	Port:          "8080",
	SuccessRate:   0.9,
	ConsumerGroup: "booking-sandbox",
}

type participant struct {
	name       string
	subscriber events.Subscriber
	dispatcher events.EventHandler
	closer     func() error
}

func main() {
	cfg, err := sharedconfig.ReadConfig(sandbox)
	if err != nil {
		logger.NewLogger(sandbox.Name, false).Fatal("failed to load config", "error", err)
	}
	cfg.Transport.Kind = sharedconfig.TransportMemory
	cfg.Database.Kind = sharedconfig.StorageMemory

	log := logger.NewLogger(cfg.ServiceName, cfg.Debug)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryConfig := telemetry.NewConfigForService(sandbox.Name, "1.0.0", "")
	if cfg.Telemetry.Enabled {
		telemetryConfig = telemetryConfig.WithOTLPEndpoint(cfg.Telemetry.OTLPEndpoint)
	}
	tel, shutdownTelemetry, err := telemetry.InitTelemetry(ctx, telemetryConfig)
	if err != nil {
		log.Fatal("failed to initialize telemetry", "error", err)
	}
	defer shutdownTelemetry()

	bus := sharedinfra.NewMemoryBus(log.With("component", "memory-bus"))
	router := server.NewRouter(tel)
	var participants []participant

	booking, err := bookingconfig.BuildDependencies(ctx, serviceConfig(cfg, bookingconfig.Service.Name), bus, tel, log.With("service", bookingconfig.Service.Name))
	if err != nil {
		log.Fatal("failed to build booking service", "error", err)
	}
	booking.BookingHandlers.RegisterRoutes(router)
	participants = append(participants, participant{bookingconfig.Service.Name, booking.Transport.Subscriber, booking.EventDispatcher, booking.Close})

	for _, step := range events.ReservationSteps {
		service, err := reservationconfig.ServiceFor(step)
		if err != nil {
			log.Fatal("unknown reservation step", "step", step, "error", err)
		}

		deps, err := reservationconfig.BuildDependencies(ctx, step, serviceConfig(cfg, service.Name), nil, bus, tel, log.With("service", service.Name))
		if err != nil {
			log.Fatal("failed to build reservation participant", "step", step, "error", err)
		}
		router.Route("/"+strings.ToLower(step.String()), func(r chi.Router) {
			deps.ReservationHandlers.RegisterRoutes(r)
		})
		participants = append(participants, participant{service.Name, deps.Transport.Subscriber, deps.EventDispatcher, deps.Close})
	}

	payments, err := paymentsconfig.BuildDependencies(ctx, serviceConfig(cfg, paymentsconfig.Service.Name), nil, bus, tel, log.With("service", paymentsconfig.Service.Name))
	if err != nil {
		log.Fatal("failed to build payments service", "error", err)
	}
	payments.PaymentHandlers.RegisterRoutes(router)
	participants = append(participants, participant{paymentsconfig.Service.Name, payments.Transport.Subscriber, payments.EventDispatcher, payments.Close})

	for _, p := range participants {
		if err := p.subscriber.Subscribe(ctx, p.dispatcher); err != nil {
			log.Fatal("failed to subscribe", "service", p.name, "error", err)
		}
		if err := p.subscriber.Start(ctx); err != nil {
			log.Fatal("failed to start subscriber", "service", p.name, "error", err)
		}
	}

	booking.Watchdog.Start()
	log.Info("sandbox ready", "port", cfg.Server.Port, "services", len(participants))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, ":"+cfg.Server.Port, router, cfg.Server.ShutdownTimeout, log)
	})
	if err := g.Wait(); err != nil {
		log.Error("sandbox stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	booking.Watchdog.Stop(shutdownCtx)

	var shutdown errgroup.Group
	for _, p := range participants {
		p := p
		shutdown.Go(func() error {
			if err := p.subscriber.Stop(shutdownCtx); err != nil {
				log.Error("failed to stop subscriber", "service", p.name, "error", err)
			}
			return p.closer()
		})
	}
	if err := shutdown.Wait(); err != nil {
		log.Error("error closing services", "error", err)
	}

	log.Info("sandbox stopped")
}

// serviceConfig returns a copy of the sandbox configuration for one service
func serviceConfig(cfg *sharedconfig.Config, name string) *sharedconfig.Config {
	c := *cfg
	c.ServiceName = name
	return &c
}
