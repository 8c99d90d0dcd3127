package handlers

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/draftea/travel-booking/booking-service/application"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/telemetry"
)

// Watchdog runs the stuck-saga sweep on a cron schedule
type Watchdog struct {
	cron      *cron.Cron
	reconcile *application.ReconcileStuckBookings
	tel       *telemetry.Telemetry
	logger    logger.Logger
	timeout   time.Duration
}

// NewWatchdog schedules reconcile with a standard cron spec or a descriptor such as "@every 1m"
func NewWatchdog(schedule string, reconcile *application.ReconcileStuckBookings, tel *telemetry.Telemetry, log logger.Logger) (*Watchdog, error) {
	w := &Watchdog{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		reconcile: reconcile,
		tel:       tel,
		logger:    log.With("component", "watchdog"),
		timeout:   time.Minute,
	}

	if _, err := w.cron.AddFunc(schedule, w.Sweep); err != nil {
		return nil, err
	}
	return w, nil
}

// Sweep runs one reconciliation pass
func (w *Watchdog) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	ctx = telemetry.WithTelemetry(ctx, w.tel)
	ctx = logger.WithContext(ctx, w.logger)

	result, err := w.reconcile.Execute(ctx)
	if err != nil {
		w.logger.Error("watchdog sweep failed", "error", err)
		return
	}
	if result.TimedOut > 0 || result.Recompensated > 0 || result.Conflicts > 0 {
		w.logger.Info("watchdog sweep finished",
			"scanned", result.Scanned,
			"timed_out", result.TimedOut,
			"recompensated", result.Recompensated,
			"conflicts", result.Conflicts,
		)
	}
}

// Start begins scheduling sweeps in the background
func (w *Watchdog) Start() {
	w.cron.Start()
}

// Stop stops scheduling and waits for a running sweep to finish
func (w *Watchdog) Stop(ctx context.Context) {
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
	}
}
