package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdamBeresnev/tourney/internal/config"
	"github.com/AdamBeresnev/tourney/internal/db"
	"github.com/AdamBeresnev/tourney/internal/notify"
	"github.com/AdamBeresnev/tourney/internal/realtime"
	"github.com/AdamBeresnev/tourney/internal/service"
	"github.com/AdamBeresnev/tourney/internal/store"
	"github.com/AdamBeresnev/tourney/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("application exited")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.InitDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB); err != nil {
		return err
	}

	hub := realtime.NewHub(cfg.CORSAllowedOrigins...)
	go hub.Run(ctx)

	tournamentStore := store.NewTournamentStore(database)
	userStore := store.NewUserStore(database)

	dispatcher := service.NewDispatcher(notify.Multi{notify.NewLogNotifier(logger), hub}, hub)
	tournaments := service.NewTournamentService(database, tournamentStore, dispatcher)

	app := &application{
		users:         service.NewUserService(userStore),
		tournaments:   tournaments,
		registrations: service.NewRegistrationService(database, tournamentStore, userStore, service.NewBracketGenerator(tournamentStore), dispatcher),
		results:       service.NewResultReporter(database, tournamentStore, dispatcher),
		hub:           hub,
	}

	if cfg.SweepInterval > 0 {
		w, err := worker.New(tournaments, cfg.SweepInterval)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := w.Shutdown(); err != nil {
				logger.Error("failed to stop worker", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     newRouter(app, cfg.CORSAllowedOrigins),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return server.Close()
	}
	logger.Info("server shutdown complete")
	return nil
}
