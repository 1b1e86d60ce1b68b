// Package worker runs background maintenance jobs on a gocron scheduler.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// RegistrationSweeper cancels tournaments whose registration window has lapsed.
type RegistrationSweeper interface {
	ExpireRegistrations(ctx context.Context) (int, error)
}

type Worker struct {
	scheduler gocron.Scheduler
	sweeper   RegistrationSweeper
	interval  time.Duration
}

func New(sweeper RegistrationSweeper, interval time.Duration) (*Worker, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Worker{scheduler: scheduler, sweeper: sweeper, interval: interval}, nil
}

// Start schedules the sweep, running it once right away. The jobs stop when ctx is
// cancelled or Shutdown is called.
func (w *Worker) Start(ctx context.Context) error {
	_, err := w.scheduler.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() { w.sweep(ctx) }),
		gocron.WithName("expire-registrations"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule registration sweep: %w", err)
	}

	w.scheduler.Start()
	slog.Info("worker started", "sweep_interval", w.interval)
	return nil
}

func (w *Worker) Shutdown() error {
	return w.scheduler.Shutdown()
}

func (w *Worker) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	expired, err := w.sweeper.ExpireRegistrations(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "registration sweep failed", "expired", expired, "error", err)
		return
	}
	if expired > 0 {
		slog.InfoContext(ctx, "expired registrations", "count", expired)
	}
}
