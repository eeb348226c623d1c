package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/byze/byze-console/internal/api/middleware"
)

// serveLogged runs one request through the Logger middleware and returns the
// decoded log line, or nil when nothing was logged.
func serveLogged(t *testing.T, log *bytes.Buffer, level zerolog.Level, h http.Handler, req *http.Request) map[string]any {
	t.Helper()

	logger := zerolog.New(log).Level(level)
	middleware.Logger(logger)(h).ServeHTTP(httptest.NewRecorder(), req)

	if log.Len() == 0 {
		return nil
	}
	var entry map[string]any
	require.NoError(t, json.Unmarshal(log.Bytes(), &entry))
	return entry
}

func statusHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
}

func TestLogger_RequestFields(t *testing.T) {
	var buf bytes.Buffer
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/downloads", http.NoBody)
	req.Header.Set("User-Agent", "console-web/1.0")

	entry := serveLogged(t, &buf, zerolog.DebugLevel, h, req)

	require.NotNil(t, entry)
	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/v1/downloads", entry["path"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
	assert.Equal(t, float64(len(`{"items":[]}`)), entry["bytes"])
	assert.Equal(t, "console-web/1.0", entry["user_agent"])
	assert.Contains(t, entry, "duration")
}

func TestLogger_LevelByOutcome(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		level  string
	}{
		{name: "engine down", path: "/v1/models:refresh", status: http.StatusServiceUnavailable, level: "error"},
		{name: "unknown model", path: "/v1/downloads/9", status: http.StatusNotFound, level: "warn"},
		{name: "limit reached", path: "/v1/downloads", status: http.StatusConflict, level: "warn"},
		{name: "liveness", path: "/health", status: http.StatusOK, level: "debug"},
		{name: "ok", path: "/v1/selection/model", status: http.StatusOK, level: "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			req := httptest.NewRequest(http.MethodPost, tt.path, http.NoBody)

			entry := serveLogged(t, &buf, zerolog.DebugLevel, statusHandler(tt.status), req)

			require.NotNil(t, entry)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, float64(tt.status), entry["status"])
		})
	}
}

func TestLogger_LivenessHiddenAtInfo(t *testing.T) {
	var buf bytes.Buffer
	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)

	assert.Nil(t, serveLogged(t, &buf, zerolog.InfoLevel, statusHandler(http.StatusOK), req))
}

func TestLogger_RoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(middleware.Logger(logger))
	r.Patch("/v1/downloads/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPatch, "/v1/downloads/42", http.NoBody))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "/v1/downloads/42", entry["path"])
	assert.Equal(t, "/v1/downloads/{id}", entry["route"])
}

func TestLogger_CorrelationIDs(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	h := middleware.RequestID(middleware.Tracing()(middleware.Logger(logger)(statusHandler(http.StatusOK))))

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	req.Header.Set(middleware.RequestIDHeader, "console-abc.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "console-abc.1", entry["request_id"])
	assert.Len(t, entry["trace_id"], 32)
	assert.Len(t, entry["span_id"], 16)
}
