package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/draftea/travel-booking/reservation-service/config"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/server"
	"github.com/draftea/travel-booking/shared/telemetry"
)

const step = events.StepCar

func main() {
	cfg, err := config.ReadConfig(step)
	if err != nil {
		logger.NewLogger("car-service", false).Fatal("failed to load config", "error", err)
	}

	log := logger.NewLogger(cfg.ServiceName, cfg.Debug)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting service", "env", cfg.Env, "port", cfg.Server.Port, "transport", cfg.Transport.Kind)

	telemetryConfig := telemetry.CarServiceConfig
	if cfg.Telemetry.Enabled {
		telemetryConfig = telemetryConfig.WithOTLPEndpoint(cfg.Telemetry.OTLPEndpoint)
	}
	tel, shutdownTelemetry, err := telemetry.InitTelemetry(ctx, telemetryConfig)
	if err != nil {
		log.Fatal("failed to initialize telemetry", "error", err)
	}
	defer shutdownTelemetry()

	deps, err := config.BuildDependencies(ctx, step, cfg, nil, nil, tel, log)
	if err != nil {
		log.Fatal("failed to build dependencies", "error", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			log.Error("error closing dependencies", "error", err)
		}
	}()

	subscriber := deps.Transport.Subscriber
	if err := subscriber.Subscribe(ctx, deps.EventDispatcher); err != nil {
		log.Fatal("failed to subscribe", "error", err)
	}
	if err := subscriber.Start(ctx); err != nil {
		log.Fatal("failed to start subscriber", "error", err)
	}

	router := server.NewRouter(tel)
	deps.ReservationHandlers.RegisterRoutes(router)

	if err := server.Run(ctx, ":"+cfg.Server.Port, router, cfg.Server.ShutdownTimeout, log); err != nil {
		log.Error("http server stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := subscriber.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop subscriber", "error", err)
	}

	log.Info("service stopped")
}
