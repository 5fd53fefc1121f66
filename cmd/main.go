// cmd/main.go is the application entry point. It wires the store, the seat
// ledger, the notification pipeline, the sweeps, and the HTTP server.
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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/afisha-platform/booking-core/internal/config"
	"github.com/afisha-platform/booking-core/internal/database"
	"github.com/afisha-platform/booking-core/internal/handler"
	"github.com/afisha-platform/booking-core/internal/ledger"
	"github.com/afisha-platform/booking-core/internal/notify"
	"github.com/afisha-platform/booking-core/internal/queue"
	"github.com/afisha-platform/booking-core/internal/scheduler"
	"github.com/afisha-platform/booking-core/internal/service"
	"github.com/afisha-platform/booking-core/internal/store/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	st := postgres.New(pool)
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("connected to postgres", "database", cfg.Database.Name)

	// Wire up layers.
	broker := queue.NewBroker(st)
	seatLedger := ledger.NewSeatLedger(st)
	coordinator := service.NewBookingCoordinator(seatLedger, st, broker, logger)
	ratings := service.NewRatingService(st)

	mailer := notify.NewMailer(cfg.SMTP, logger)
	dispatcher := notify.NewDispatcher(st, mailer, logger, cfg.SMTP.Sender, cfg.SMTP.Timeout)
	worker := queue.NewWorker(st, logger, cfg.Queue.Workers, cfg.Queue.PollInterval, cfg.Queue.MaxAttempts)
	notify.RegisterHandlers(worker, dispatcher)

	reminders := scheduler.NewReminderScheduler(st, broker, logger)
	lifecycle := scheduler.NewLifecycleSweeper(st, coordinator, logger)

	// Build the router.
	api := handler.NewAPI(coordinator, ratings, st, broker, logger)
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.RequestLogger(logger))
	api.Routes(r)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.Run(ctx)
	})
	g.Go(func() error {
		scheduler.Run(ctx, logger, "reminders", cfg.ReminderSweepInterval, reminders.Sweep)
		return nil
	})
	g.Go(func() error {
		scheduler.Run(ctx, logger, "lifecycle", cfg.LifecycleSweepInterval, lifecycle.Sweep)
		return nil
	})
	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
