// Package main provides the entrypoint for the headless download event
// worker. It runs the console's stores, consumer and maintenance jobs without
// the HTTP API, and exposes a health endpoint for the platform.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/byze/byze-console/internal/api/middleware"
	"github.com/byze/byze-console/internal/api/models"
	"github.com/byze/byze-console/internal/api/response"
	"github.com/byze/byze-console/internal/app"
	"github.com/byze/byze-console/internal/config"
	"github.com/byze/byze-console/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "byze-console-worker"

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := app.NewLogger(cfg, serviceName, Version)
	log.Info().Str("build_time", BuildTime).Msg("starting worker")

	if cfg.Worker.ProjectID == "" {
		log.Fatal().Msg("GCP_PROJECT_ID is required to run the worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	console, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize worker")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	defer console.Close()

	subscriber, err := console.Subscriber(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to create download event subscriber")
		os.Exit(1)
	}
	defer func() {
		if err := subscriber.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close subscriber")
		}
	}()

	scheduler, err := console.Scheduler()
	if err != nil {
		log.Error().Err(err).Msg("failed to build scheduler")
		os.Exit(1)
	}
	scheduler.Start()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, models.Health{Status: "UP"})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Service.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	subDone := make(chan error, 1)
	go func() {
		subDone <- subscriber.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutting down worker")
	case err := <-subDone:
		log.Error().Err(err).Msg("download event subscriber stopped")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}
	scheduler.Stop(shutdownCtx)

	log.Info().Msg("worker stopped")
}
