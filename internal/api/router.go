// Package api provides the HTTP API of the console.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/byze/byze-console/internal/api/handler"
	"github.com/byze/byze-console/internal/api/middleware"
	"github.com/byze/byze-console/internal/api/models"
	"github.com/byze/byze-console/internal/resilience"
	"github.com/byze/byze-console/internal/store"
)

// Engine is the part of the engine client the API calls.
type Engine interface {
	handler.ModelPuller
	handler.ModelLister
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger  zerolog.Logger
	Metrics *middleware.Metrics

	// TokenValidator guards mutating routes. Nil leaves them open, which is
	// how a single-user local console runs.
	TokenValidator middleware.TokenValidator

	// RateLimit is the per-client budget in requests per minute. Zero uses
	// middleware.StandardRateLimit.
	RateLimit int

	Health        handler.EngineHealth
	Registry      *resilience.Registry
	Engine        Engine
	Sync          handler.Synchronizer
	Downloads     store.ModelList
	Models        *store.ModelListStore
	SelectedModel *store.SelectedModelStore
	MCPSelection  *store.MCPSelectionStore
	MCPDownloads  *store.MCPDownloadStore
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		problem := models.NewNotFound(middleware.GetRequestID(req.Context()), "no such route")
		problem.Instance = req.URL.Path
		problem.Write(w)
	})

	standard := middleware.StandardRateLimit
	if cfg.RateLimit > 0 {
		standard = middleware.RateLimitConfig{RequestLimit: cfg.RateLimit, WindowLength: time.Minute}
	}

	// Mutating routes need an operator token when auth is configured.
	mutating := chi.Chain(middleware.RequireJSON)
	if cfg.TokenValidator != nil {
		mutating = chi.Chain(middleware.Auth(cfg.TokenValidator), middleware.RequireJSON)
	}
	engineLimit := middleware.RateLimitByOperator(middleware.EngineRateLimit)

	opsHandler := handler.NewOpsHandler(cfg.Health, cfg.Registry, cfg.Sync)
	downloadsHandler := handler.NewDownloadsHandler(cfg.Downloads, cfg.Sync, cfg.Engine, cfg.Logger)
	modelsHandler := handler.NewModelsHandler(cfg.Models, cfg.Downloads, cfg.Engine)
	selectionHandler := handler.NewSelectionHandler(cfg.SelectedModel, cfg.MCPSelection)
	mcpHandler := handler.NewMCPHandler(cfg.MCPDownloads)

	r.Get("/health", opsHandler.Liveness)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(standard))

		r.Get("/ops/status", opsHandler.SystemStatus)
		r.With(mutating...).With(engineLimit).Post("/engine/health:check", opsHandler.CheckEngine)

		r.Route("/downloads", func(r chi.Router) {
			r.Get("/", downloadsHandler.List)

			r.Group(func(r chi.Router) {
				r.Use(mutating...)
				r.Put("/", downloadsHandler.Replace)
				r.Patch("/{id}", downloadsHandler.Patch)
				r.With(engineLimit).Post("/", downloadsHandler.Start)
				r.With(engineLimit).Post("/{id}/cancel", downloadsHandler.Cancel)
			})
		})

		r.Get("/models", modelsHandler.List)
		r.With(mutating...).Put("/models", modelsHandler.Replace)
		r.With(mutating...).With(engineLimit).Post("/models:refresh", modelsHandler.Refresh)

		r.Route("/selection", func(r chi.Router) {
			r.Get("/model", selectionHandler.GetModel)
			r.Get("/mcp", selectionHandler.GetMCP)

			r.Group(func(r chi.Router) {
				r.Use(mutating...)
				r.Put("/model", selectionHandler.PutModel)
				r.Put("/mcp", selectionHandler.PutMCP)
				r.Put("/mcp/drawer", selectionHandler.PutDrawer)
			})
		})

		r.Route("/mcp", func(r chi.Router) {
			r.Get("/downloads", mcpHandler.List)

			r.Group(func(r chi.Router) {
				r.Use(mutating...)
				r.Post("/downloads", mcpHandler.Start)
				r.Patch("/downloads/{id}", mcpHandler.Report)
				r.Delete("/downloads/{id}", mcpHandler.Delete)
				r.Put("/add-modal", mcpHandler.SetAddModal)
			})
		})
	})

	return r
}
