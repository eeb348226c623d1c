package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Instrumentation scope names used by the console's components.
const (
	ScopeHealth = "github.com/byze/byze-console/internal/health"
	ScopeGate   = "github.com/byze/byze-console/internal/gate"
	ScopeWorker = "github.com/byze/byze-console/internal/worker"
)

// HealthInstruments are recorded by the engine health probe.
type HealthInstruments struct {
	Probes        metric.Int64Counter
	ProbeDuration metric.Float64Histogram
}

// NewHealthInstruments creates the health probe instruments on meter.
func NewHealthInstruments(meter metric.Meter) (*HealthInstruments, error) {
	probes, err := meter.Int64Counter(
		"console.engine.health.probes",
		metric.WithDescription("Engine health probes by result"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create probe counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"console.engine.health.probe.duration",
		metric.WithDescription("Engine health probe duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create probe histogram: %w", err)
	}

	return &HealthInstruments{Probes: probes, ProbeDuration: duration}, nil
}

// GateInstruments are recorded by the health gate.
type GateInstruments struct {
	Calls metric.Int64Counter
}

// NewGateInstruments creates the gate instruments on meter.
func NewGateInstruments(meter metric.Meter) (*GateInstruments, error) {
	calls, err := meter.Int64Counter(
		"console.gate.calls",
		metric.WithDescription("Gated engine calls by outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create gate counter: %w", err)
	}
	return &GateInstruments{Calls: calls}, nil
}

// WorkerInstruments are recorded by the download event worker.
type WorkerInstruments struct {
	Events metric.Int64Counter
}

// NewWorkerInstruments creates the worker instruments on meter.
func NewWorkerInstruments(meter metric.Meter) (*WorkerInstruments, error) {
	events, err := meter.Int64Counter(
		"console.worker.download_events",
		metric.WithDescription("Download events handled by result"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create event counter: %w", err)
	}
	return &WorkerInstruments{Events: events}, nil
}
