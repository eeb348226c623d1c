// Package main provides the entrypoint for the console API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/byze/byze-console/internal/app"
	"github.com/byze/byze-console/internal/config"
	"github.com/byze/byze-console/internal/telemetry"
	"github.com/byze/byze-console/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "byze-console"

	issueToken := flag.String("issue-token", "", "print an operator token for `name` and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of an issued token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := app.NewLogger(cfg, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Str("storage", cfg.Storage.Driver).
		Msg("starting console")

	ctx := context.Background()

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
	defer shutdownTelemetry(log, tp)

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	console, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize console")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	defer console.Close()

	if *issueToken != "" {
		token, expiresAt, err := console.IssueToken(*issueToken, *tokenTTL)
		if err != nil {
			log.Error().Err(err).Msg("failed to issue token")
			os.Exit(1)
		}
		log.Info().Str("operator", *issueToken).Time("expires_at", expiresAt).Msg("operator token issued")
		fmt.Println(token)
		return
	}

	router, err := console.Router()
	if err != nil {
		log.Error().Err(err).Msg("failed to build router")
		os.Exit(1)
	}

	scheduler, err := console.Scheduler()
	if err != nil {
		log.Error().Err(err).Msg("failed to build scheduler")
		os.Exit(1)
	}
	scheduler.Start()

	// Download events are consumed in-process so the lists the API serves
	// are the ones the events update.
	subCtx, stopSub := context.WithCancel(ctx)
	defer stopSub()
	subscriber, err := console.Subscriber(subCtx)
	if err != nil {
		log.Error().Err(err).Msg("failed to create download event subscriber")
		os.Exit(1)
	}
	subDone := startSubscriber(subCtx, log, subscriber)

	server := &http.Server{
		Addr:         ":" + cfg.Service.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	stopSub()
	<-subDone
	scheduler.Stop(shutdownCtx)

	log.Info().Msg("server stopped")
}

// startSubscriber runs sub until ctx ends. The returned channel closes when
// it has stopped. A nil subscriber is reported and returns a closed channel.
func startSubscriber(ctx context.Context, log zerolog.Logger, sub *worker.PubSubSubscriber) <-chan struct{} {
	done := make(chan struct{})
	if sub == nil {
		log.Info().Msg("GCP_PROJECT_ID not set, download events are not consumed")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		defer func() {
			if err := sub.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close subscriber")
			}
		}()
		if err := sub.Start(ctx); err != nil {
			log.Error().Err(err).Msg("download event subscriber stopped")
		}
	}()
	return done
}

func shutdownTelemetry(log zerolog.Logger, tp *telemetry.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown telemetry")
	}
}
