// Package gate runs engine calls only after a fresh health probe succeeds.
package gate

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/byze/byze-console/internal/telemetry"
)

// ErrServiceUnavailable is returned instead of running an operation when the
// engine health probe fails.
var ErrServiceUnavailable = errors.New("engine service unavailable")

// Checker probes the engine. *health.Store implements it.
type Checker interface {
	Check(ctx context.Context) bool
}

// Config holds configuration for a Gate.
type Config struct {
	Checker     Checker
	Instruments *telemetry.GateInstruments
	Logger      zerolog.Logger
}

// Gate guards engine calls with a health probe. Every call probes; results
// are never cached and concurrent calls probe independently.
type Gate struct {
	checker     Checker
	instruments *telemetry.GateInstruments
	logger      zerolog.Logger
}

// New creates a gate.
func New(cfg Config) *Gate {
	return &Gate{
		checker:     cfg.Checker,
		instruments: cfg.Instruments,
		logger:      cfg.Logger,
	}
}

type skipKey struct{}

// WithoutHealthCheck returns a context under which Run calls the operation
// without probing first.
func WithoutHealthCheck(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipKey{}, true)
}

func skipped(ctx context.Context) bool {
	v, _ := ctx.Value(skipKey{}).(bool)
	return v
}

// Run probes the engine and, if it is up, returns op's result unchanged. If
// the probe fails op is not called and the error wraps
// ErrServiceUnavailable.
func Run[T any](ctx context.Context, g *Gate, op func(ctx context.Context) (T, error)) (T, error) {
	if skipped(ctx) {
		g.count(ctx, "skipped")
		return op(ctx)
	}

	if !g.checker.Check(ctx) {
		g.count(ctx, "unavailable")
		g.logger.Warn().Msg("engine service unavailable")
		var zero T
		return zero, ErrServiceUnavailable
	}

	g.count(ctx, "passed")
	return op(ctx)
}

// Do is Run for operations without a result.
func (g *Gate) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Run(ctx, g, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func (g *Gate) count(ctx context.Context, outcome string) {
	if g.instruments == nil {
		return
	}
	g.instruments.Calls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
