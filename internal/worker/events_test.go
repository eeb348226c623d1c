package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/byze/byze-console/internal/model"
	"github.com/byze/byze-console/internal/modelsync"
	"github.com/byze/byze-console/internal/store"
	"github.com/byze/byze-console/internal/telemetry"
	"github.com/byze/byze-console/internal/worker"
)

func newSyncFixture() (*store.ListValue, *store.ListValue, *modelsync.Synchronizer) {
	downloads := store.NewListValue([]model.Model{
		{ID: 7, ModelType: "local", Name: "qwen2:7b", Status: model.StatusInProgress},
	})
	models := store.NewListValue([]model.Model{
		{ID: 7, ModelType: "local", Name: "qwen2:7b", Status: model.StatusInProgress},
		{ID: 8, ModelType: "local", Name: "llama3"},
	})
	return downloads, models, modelsync.New(downloads, models, zerolog.Nop())
}

func TestEventHandler_AppliesProgress(t *testing.T) {
	downloads, models, sync := newSyncFixture()
	h := worker.NewEventHandler(worker.EventHandlerConfig{Applier: sync, Logger: zerolog.Nop()})

	out := h.Handle(context.Background(), []byte(`{"id":7,"modelType":"local","currentDownload":40,"completedSize":400,"totalSize":1000}`))

	assert.Equal(t, worker.Ack, out)
	assert.Equal(t, 40.0, downloads.Get()[0].CurrentDownload)
	assert.Equal(t, int64(400), models.Get()[0].CompletedSize)
	assert.Zero(t, models.Get()[1].CurrentDownload)
}

func TestEventHandler_SuccessLeavesDownloadList(t *testing.T) {
	downloads, models, sync := newSyncFixture()
	h := worker.NewEventHandler(worker.EventHandlerConfig{Applier: sync, Logger: zerolog.Nop()})

	out := h.Handle(context.Background(), []byte(`{"id":"7","modelType":"local","status":"success","totalSize":1000}`))

	assert.Equal(t, worker.Ack, out)
	assert.Empty(t, downloads.Get())
	assert.Equal(t, model.StatusCompleted, models.Get()[0].Status)
	assert.True(t, models.Get()[0].CanSelect)
}

func TestEventHandler_ModelIDZero(t *testing.T) {
	ctx := context.Background()
	downloads := store.NewListValue(nil)
	models := store.NewListValue([]model.Model{{ID: 0, ModelType: "local", Name: "first"}})
	sync := modelsync.New(downloads, models, zerolog.Nop())
	require.NoError(t, sync.StartDownload(ctx, model.Model{ID: 0, ModelType: "local", Name: "first"}))

	h := worker.NewEventHandler(worker.EventHandlerConfig{Applier: sync, Logger: zerolog.Nop()})

	require.Equal(t, worker.Ack, h.Handle(ctx, []byte(`{"id":0,"modelType":"local","currentDownload":60}`)))
	require.Len(t, downloads.Get(), 1)
	assert.Equal(t, 60.0, downloads.Get()[0].CurrentDownload)

	require.Equal(t, worker.Ack, h.Handle(ctx, []byte(`{"id":0,"modelType":"local","status":"success","totalSize":900}`)))
	assert.Empty(t, downloads.Get())
	assert.Equal(t, model.StatusCompleted, models.Get()[0].Status)
	assert.Zero(t, sync.Active())
}

func TestEventHandler_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		applier worker.EventApplier
		want    worker.Outcome
	}{
		{"malformed json", `{"id":`, nil, worker.Nack},
		{"missing id", `{"modelType":"local"}`, nil, worker.Ack},
		{"null id", `{"id":null,"modelType":"local"}`, nil, worker.Ack},
		{"non-numeric id", `{"id":"abc","modelType":"local"}`, nil, worker.Ack},
		{"missing modelType", `{"id":7}`, nil, worker.Ack},
		{"unknown model", `{"id":99,"modelType":"local","currentDownload":10}`, nil, worker.Ack},
		{"apply failure", `{"id":7,"modelType":"local","currentDownload":10}`, failingApplier{}, worker.Nack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applier := tt.applier
			if applier == nil {
				_, _, applier = newSyncFixture()
			}
			h := worker.NewEventHandler(worker.EventHandlerConfig{Applier: applier, Logger: zerolog.Nop()})

			assert.Equal(t, tt.want, h.Handle(context.Background(), []byte(tt.payload)))
		})
	}
}

func TestEventHandler_RecordsOutcomes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	instruments, err := telemetry.NewWorkerInstruments(provider.Meter(telemetry.ScopeWorker))
	require.NoError(t, err)

	_, _, sync := newSyncFixture()
	h := worker.NewEventHandler(worker.EventHandlerConfig{
		Applier:     sync,
		Instruments: instruments,
		Logger:      zerolog.Nop(),
	})

	h.Handle(context.Background(), []byte(`{"id":7,"modelType":"local","currentDownload":10}`))
	h.Handle(context.Background(), []byte(`not json`))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)

	results := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("result"))
		results[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"applied": 1, "malformed": 1}, results)
}

type failingApplier struct{}

func (failingApplier) ApplyEvent(context.Context, model.DownloadEvent) error {
	return errors.Join(modelsync.ErrPartialUpdate, errors.New("disk full"))
}
