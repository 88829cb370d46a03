package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justsurfingit/inbox-job-tracker/internal/app"
	"github.com/justsurfingit/inbox-job-tracker/internal/config"
	"github.com/justsurfingit/inbox-job-tracker/internal/handlers"
	"github.com/justsurfingit/inbox-job-tracker/internal/logging"
	"github.com/justsurfingit/inbox-job-tracker/internal/services"
	"go.uber.org/zap"
)

func main() {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database and core services
	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	// 3. Background mailbox polling; the API keeps serving without it
	pipeline, err := a.Pipeline(ctx)
	var scanner handlers.Scanner = unavailableScanner{err: err}
	schedulerDone := make(chan struct{})
	if err != nil {
		logger.Warn("email scanning disabled", zap.Error(err))
		close(schedulerDone)
	} else {
		scanner = pipeline
		scheduler := services.NewScheduler(pipeline, cfg.CheckInterval, services.Options{}, logger)
		go func() {
			defer close(schedulerDone)
			scheduler.Start(ctx)
		}()
	}

	// 4. HTTP API
	h := handlers.NewApplicationHandler(a.Apps, a.Users, scanner)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handlers.NewRouter(h, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	<-schedulerDone
}

// unavailableScanner answers scan requests when no model is configured.
type unavailableScanner struct {
	err error
}

func (u unavailableScanner) Run(_ context.Context, userID uint, _ services.Options) services.ScanReport {
	return services.ScanReport{UserID: userID, Err: u.err, Error: u.err.Error()}
}
