// Package health tracks whether the local engine service is reachable.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/byze/byze-console/internal/resilience"
	"github.com/byze/byze-console/internal/telemetry"
)

// ServiceName is the registry name of the engine health endpoint.
const ServiceName = "engine-health"

// StatusUp is the status reported by a healthy engine.
const StatusUp = "UP"

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 60 * time.Second

// Config holds configuration for the health store.
type Config struct {
	// URL is the engine base URL; the probe calls URL + "/health".
	URL string

	// Timeout bounds a probe. Default: 60 seconds.
	Timeout time.Duration

	// HTTPClient overrides the probe client. Its own timeout is used as is.
	HTTPClient *http.Client

	Registry    *resilience.Registry
	Tracer      trace.Tracer
	Instruments *telemetry.HealthInstruments
	Logger      zerolog.Logger
}

// Store holds the engine health status. A fresh store reports the engine as
// up until the first probe says otherwise.
type Store struct {
	url         string
	client      *http.Client
	registry    *resilience.Registry
	tracer      trace.Tracer
	instruments *telemetry.HealthInstruments
	logger      zerolog.Logger

	mu          sync.RWMutex
	isUp        bool
	loading     bool
	lastChecked time.Time
}

// NewStore creates a health store.
func NewStore(cfg Config) *Store {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(telemetry.ScopeHealth)
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(ServiceName, nil)
	}

	return &Store{
		url:         strings.TrimRight(cfg.URL, "/"),
		client:      client,
		registry:    cfg.Registry,
		tracer:      tracer,
		instruments: cfg.Instruments,
		logger:      cfg.Logger,
		isUp:        true,
	}
}

// Snapshot is a point-in-time view of the store.
type Snapshot struct {
	IsUp          bool       `json:"isUp"`
	Loading       bool       `json:"loading"`
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty"`
}

// IsUp returns the result of the latest probe.
func (s *Store) IsUp() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isUp
}

// Loading reports whether a probe is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{IsUp: s.isUp, Loading: s.loading}
	if !s.lastChecked.IsZero() {
		t := s.lastChecked
		snap.LastCheckedAt = &t
	}
	return snap
}

// Check probes the engine once and records the result. It reports false on
// any failure, including a canceled ctx, and never returns an error.
func (s *Store) Check(ctx context.Context) bool {
	s.setLoading(true)
	defer s.setLoading(false)

	ctx, span := s.tracer.Start(ctx, "health.Check", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	err := s.probe(ctx)
	up := err == nil

	span.SetAttributes(attribute.Bool("engine.up", up))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.record(ctx, up, time.Since(start))

	s.mu.Lock()
	wasUp := s.isUp
	s.isUp = up
	s.lastChecked = time.Now()
	s.mu.Unlock()

	switch {
	case wasUp && !up:
		s.logger.Warn().Err(err).Str("url", s.url).Msg("engine service is down")
	case !wasUp && up:
		s.logger.Info().Str("url", s.url).Msg("engine service is back up")
	}

	return up
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *Store) record(ctx context.Context, up bool, elapsed time.Duration) {
	if s.instruments != nil {
		result := "up"
		if !up {
			result = "down"
		}
		attrs := metric.WithAttributes(attribute.String("result", result))
		s.instruments.Probes.Add(ctx, 1, attrs)
		s.instruments.ProbeDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// errNotUp is returned by probe when the engine answers without "UP".
var errNotUp = errors.New("engine did not report UP")

// healthBody is the probe response. The engine may wrap it in its
// {business_code, message, data} envelope.
type healthBody struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (s *Store) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"/health", http.NoBody)
	if err != nil {
		s.recordOutcome(err)
		return fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	err = s.do(req)
	s.recordOutcome(err)
	return err
}

func (s *Store) do(req *http.Request) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe engine: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read probe response: %w", err)
	}

	var body healthBody
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("decode probe response: %w", err)
	}

	status := body.Status
	if trimmed := strings.TrimSpace(string(body.Data)); strings.HasPrefix(trimmed, "{") {
		var inner healthBody
		if err := json.Unmarshal(body.Data, &inner); err != nil {
			return fmt.Errorf("decode probe data: %w", err)
		}
		status = inner.Status
	}

	if status != StatusUp {
		return fmt.Errorf("%w: status %q", errNotUp, status)
	}
	return nil
}

func (s *Store) recordOutcome(err error) {
	if s.registry == nil {
		return
	}
	if err != nil {
		s.registry.RecordFailure(ServiceName, err)
		return
	}
	s.registry.RecordSuccess(ServiceName)
}
