// Package worker runs the console's background work: applying download
// progress events and the periodic maintenance jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/byze/byze-console/internal/model"
	"github.com/byze/byze-console/internal/modelsync"
	"github.com/byze/byze-console/internal/telemetry"
)

// Outcome tells the transport what to do with a delivered message.
type Outcome int

const (
	// Ack removes the message from the subscription.
	Ack Outcome = iota
	// Nack asks for redelivery.
	Nack
)

func (o Outcome) String() string {
	if o == Ack {
		return "ack"
	}
	return "nack"
}

// EventApplier merges a download event into the model lists.
// *modelsync.Synchronizer implements it.
type EventApplier interface {
	ApplyEvent(ctx context.Context, ev model.DownloadEvent) error
}

// DownloadEventMessage is the wire form of a download progress event.
type DownloadEventMessage struct {
	ID              json.Number       `json:"id"`
	ModelType       string            `json:"modelType"`
	CurrentDownload float64           `json:"currentDownload,omitempty"`
	CompletedSize   int64             `json:"completedSize,omitempty"`
	TotalSize       int64             `json:"totalSize,omitempty"`
	Status          model.EventStatus `json:"status,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// Event converts the message into a model.DownloadEvent. An absent or null id
// is invalid; zero is a valid model id.
func (m DownloadEventMessage) Event() (model.DownloadEvent, error) {
	if m.ID == "" {
		return model.DownloadEvent{}, errors.New("missing model id")
	}
	id, err := m.ID.Int64()
	if err != nil {
		return model.DownloadEvent{}, fmt.Errorf("invalid model id %q", m.ID.String())
	}
	if m.ModelType == "" {
		return model.DownloadEvent{}, errors.New("missing modelType")
	}
	return model.DownloadEvent{
		ID:            id,
		ModelType:     m.ModelType,
		Progress:      m.CurrentDownload,
		CompletedSize: m.CompletedSize,
		TotalSize:     m.TotalSize,
		Status:        m.Status,
		Error:         m.Error,
	}, nil
}

// EventHandlerConfig holds configuration for the EventHandler.
type EventHandlerConfig struct {
	Applier     EventApplier
	Instruments *telemetry.WorkerInstruments
	Logger      zerolog.Logger
}

// EventHandler applies download progress events.
type EventHandler struct {
	applier     EventApplier
	instruments *telemetry.WorkerInstruments
	logger      zerolog.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(cfg EventHandlerConfig) *EventHandler {
	return &EventHandler{
		applier:     cfg.Applier,
		instruments: cfg.Instruments,
		logger:      cfg.Logger,
	}
}

// Handle applies one encoded event. Undecodable payloads are nacked so they
// reach the dead-letter policy of the subscription. Events that can never
// apply are acked.
func (h *EventHandler) Handle(ctx context.Context, data []byte) Outcome {
	var msg DownloadEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Error().Err(err).Msg("failed to parse download event")
		return h.done(ctx, Nack, "malformed")
	}

	ev, err := msg.Event()
	if err != nil {
		h.logger.Warn().Err(err).Msg("dropping invalid download event")
		return h.done(ctx, Ack, "invalid")
	}

	logger := h.logger.With().
		Int64("model_id", ev.ID).
		Str("model_type", ev.ModelType).
		Logger()

	if err := h.applier.ApplyEvent(ctx, ev); err != nil {
		if errors.Is(err, modelsync.ErrUnknownModel) {
			logger.Debug().Msg("ignoring event for unknown model")
			return h.done(ctx, Ack, "unknown")
		}
		logger.Error().Err(err).Msg("failed to apply download event")
		return h.done(ctx, Nack, "failed")
	}

	logger.Debug().
		Float64("progress", ev.Progress).
		Str("status", string(ev.Status)).
		Msg("applied download event")
	return h.done(ctx, Ack, "applied")
}

func (h *EventHandler) done(ctx context.Context, o Outcome, result string) Outcome {
	if h.instruments != nil {
		h.instruments.Events.Add(ctx, 1, metric.WithAttributes(
			attribute.String("result", result),
			attribute.String("outcome", o.String()),
		))
	}
	return o
}
