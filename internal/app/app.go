// Package app assembles the console from its configuration. The console and
// worker binaries share it so both run the same stores and engine client.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/byze/byze-console/internal/api"
	"github.com/byze/byze-console/internal/api/middleware"
	"github.com/byze/byze-console/internal/auth"
	"github.com/byze/byze-console/internal/config"
	"github.com/byze/byze-console/internal/database"
	"github.com/byze/byze-console/internal/engine"
	"github.com/byze/byze-console/internal/gate"
	"github.com/byze/byze-console/internal/health"
	"github.com/byze/byze-console/internal/kvstore"
	"github.com/byze/byze-console/internal/modelsync"
	"github.com/byze/byze-console/internal/resilience"
	"github.com/byze/byze-console/internal/store"
	"github.com/byze/byze-console/internal/telemetry"
	"github.com/byze/byze-console/internal/worker"
)

// NewLogger creates the root logger for service. An unknown level falls back
// to info.
func NewLogger(cfg *config.Config, service, version string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Service.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("environment", cfg.Service.Environment).
		Logger()
}

// App holds the wired console components.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Registry *resilience.Registry
	Health   *health.Store
	Gate     *gate.Gate
	Engine   *engine.Client

	Downloads     *store.DownloadStore
	Models        *store.ModelListStore
	Sync          *modelsync.Synchronizer
	SelectedModel *store.SelectedModelStore
	MCPSelection  *store.MCPSelectionStore
	MCPDownloads  *store.MCPDownloadStore

	// JWT is nil when operator tokens are disabled.
	JWT *auth.JWTService

	closeStorage func()
}

// New opens storage and builds every component. Telemetry must be
// initialised first so the instruments bind to the configured providers.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	kv, closeStorage, err := openStorage(ctx, cfg.Database(), logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:       cfg,
		Logger:       logger,
		Registry:     resilience.NewRegistry(),
		closeStorage: closeStorage,
	}

	healthInstruments, err := telemetry.NewHealthInstruments(telemetry.Meter(telemetry.ScopeHealth))
	if err != nil {
		closeStorage()
		return nil, err
	}
	gateInstruments, err := telemetry.NewGateInstruments(telemetry.Meter(telemetry.ScopeGate))
	if err != nil {
		closeStorage()
		return nil, err
	}

	a.Health = health.NewStore(health.Config{
		URL:         cfg.Engine.HealthURL,
		Timeout:     cfg.Engine.HealthTimeout,
		Registry:    a.Registry,
		Tracer:      telemetry.Tracer(telemetry.ScopeHealth),
		Instruments: healthInstruments,
		Logger:      logger.With().Str("component", "health").Logger(),
	})
	a.Gate = gate.New(gate.Config{
		Checker:     a.Health,
		Instruments: gateInstruments,
		Logger:      logger.With().Str("component", "gate").Logger(),
	})

	clientCfg := resilience.DefaultClientConfig(engine.ServiceName)
	clientCfg.Timeout = cfg.Engine.Timeout
	clientCfg.MaxRetries = cfg.Engine.MaxRetries
	clientCfg.Registry = a.Registry
	clientCfg.Logger = logger.With().Str("component", "engine-http").Logger()

	a.Engine = engine.NewClient(engine.Config{
		BaseURL: cfg.Engine.APIURL,
		HTTP:    resilience.NewClient(clientCfg),
		Gate:    a.Gate,
		Logger:  logger.With().Str("component", "engine").Logger(),
	})

	storeLogger := logger.With().Str("component", "store").Logger()
	a.Downloads = store.NewDownloadStore(ctx, kv, storeLogger)
	a.Models = store.NewModelListStore()
	a.Sync = modelsync.New(a.Downloads, a.Models.All, logger.With().Str("component", "modelsync").Logger())
	a.SelectedModel = store.NewSelectedModelStore(ctx, kv, storeLogger)
	a.MCPSelection = store.NewMCPSelectionStore()
	a.MCPDownloads = store.NewMCPDownloadStore(ctx, store.MCPDownloadConfig{
		Storage: kv,
		Logger:  storeLogger,
	})

	if cfg.AuthEnabled() {
		a.JWT = auth.NewJWTService(auth.JWTConfig{
			SigningKey: cfg.Auth.SigningKey,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		})
	} else {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set, mutating routes are open")
	}

	return a, nil
}

// Router builds the HTTP API.
func (a *App) Router() (http.Handler, error) {
	metrics, err := middleware.NewMetrics(telemetry.Meter("github.com/byze/byze-console/internal/api"))
	if err != nil {
		return nil, fmt.Errorf("initialize http metrics: %w", err)
	}

	cfg := api.RouterConfig{
		Logger:        a.Logger,
		Metrics:       metrics,
		RateLimit:     a.Config.Service.RateLimit,
		Health:        a.Health,
		Registry:      a.Registry,
		Engine:        a.Engine,
		Sync:          a.Sync,
		Downloads:     a.Downloads,
		Models:        a.Models,
		SelectedModel: a.SelectedModel,
		MCPSelection:  a.MCPSelection,
		MCPDownloads:  a.MCPDownloads,
	}
	if a.JWT != nil {
		cfg.TokenValidator = a.JWT
	}
	return api.NewRouter(cfg), nil
}

// Scheduler builds the health poll and MCP sweep jobs.
func (a *App) Scheduler() (*worker.Scheduler, error) {
	return worker.NewScheduler(worker.SchedulerConfig{
		HealthPollSchedule: a.Config.Worker.HealthPollSchedule,
		MCPSweepSchedule:   a.Config.Worker.MCPSweepSchedule,
		Health:             a.Health,
		MCPDownloads:       a.MCPDownloads,
		Logger:             a.Logger.With().Str("component", "scheduler").Logger(),
	})
}

// Subscriber builds the download event subscriber. It returns nil when no
// project is configured.
func (a *App) Subscriber(ctx context.Context) (*worker.PubSubSubscriber, error) {
	if a.Config.Worker.ProjectID == "" {
		return nil, nil
	}

	instruments, err := telemetry.NewWorkerInstruments(telemetry.Meter(telemetry.ScopeWorker))
	if err != nil {
		return nil, err
	}

	logger := a.Logger.With().Str("component", "events").Logger()
	return worker.NewPubSubSubscriber(ctx, worker.PubSubConfig{
		ProjectID:        a.Config.Worker.ProjectID,
		SubscriptionName: a.Config.Worker.Subscription,
		Handler: worker.NewEventHandler(worker.EventHandlerConfig{
			Applier:     a.Sync,
			Instruments: instruments,
			Logger:      logger,
		}),
		Logger: logger,
	})
}

// ErrTokensDisabled is returned by IssueToken when no signing key is set.
var ErrTokensDisabled = errors.New("operator tokens are disabled: AUTH_SIGNING_KEY is not set")

// IssueToken signs an operator token and returns it with its expiry.
func (a *App) IssueToken(operator string, ttl time.Duration) (string, time.Time, error) {
	if a.JWT == nil {
		return "", time.Time{}, ErrTokensDisabled
	}
	return a.JWT.GenerateToken(operator, ttl)
}

// Close stops pending MCP removals and closes storage.
func (a *App) Close() {
	a.MCPDownloads.Close()
	a.closeStorage()
}

func openStorage(ctx context.Context, cfg database.Config, logger zerolog.Logger) (kvstore.Store, func(), error) {
	switch cfg.Driver {
	case database.DriverMemory:
		logger.Warn().Msg("using in-memory storage, state is lost on restart")
		return kvstore.NewInMemoryStore(), func() {}, nil

	case database.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("sqlite storage opened")
		return kvstore.NewSQLiteStore(db), func() {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close sqlite storage")
			}
		}, nil

	case database.DriverPostgres:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := database.MigratePostgres(pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info().
			Str("host", cfg.Host).
			Int("port", cfg.Port).
			Str("database", cfg.Database).
			Msg("database connected")
		return kvstore.NewPostgresStore(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
