package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byze/byze-console/internal/app"
	"github.com/byze/byze-console/internal/config"
	"github.com/byze/byze-console/internal/database"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Driver = database.DriverMemory
	cfg.Worker.HealthPollSchedule = ""
	cfg.Worker.MCPSweepSchedule = ""
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNew_MemoryStorage(t *testing.T) {
	a := newApp(t, memoryConfig())

	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Sync)
	assert.Empty(t, a.Downloads.Get())
	assert.Nil(t, a.JWT)
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Driver = "redis"

	_, err := app.New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNew_SQLiteStorage(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Driver = database.DriverSQLite
	cfg.Storage.SQLitePath = t.TempDir() + "/console.db"

	a := newApp(t, cfg)
	assert.Empty(t, a.Downloads.Get())
}

func TestIssueToken(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		a := newApp(t, memoryConfig())

		_, _, err := a.IssueToken("alice", time.Hour)
		assert.ErrorIs(t, err, app.ErrTokensDisabled)
	})

	t.Run("enabled", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Auth.SigningKey = "test-signing-key-32-bytes-long!!"
		a := newApp(t, cfg)

		token, expires, err := a.IssueToken("alice", time.Hour)
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.True(t, expires.After(time.Now()))

		claims, err := a.JWT.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Subject)
	})
}

func TestRouter_Liveness(t *testing.T) {
	a := newApp(t, memoryConfig())

	router, err := a.Router()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	cfg := memoryConfig()
	cfg.Worker.HealthPollSchedule = "not a schedule"
	a := newApp(t, cfg)

	_, err := a.Scheduler()
	assert.Error(t, err)
}

func TestSubscriber_DisabledWithoutProject(t *testing.T) {
	a := newApp(t, memoryConfig())

	sub, err := a.Subscriber(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestNewLogger_Level(t *testing.T) {
	cfg := memoryConfig()
	cfg.Service.LogLevel = "WARN"
	assert.Equal(t, zerolog.WarnLevel, app.NewLogger(cfg, "console", "test").GetLevel())

	cfg.Service.LogLevel = "bogus"
	assert.Equal(t, zerolog.InfoLevel, app.NewLogger(cfg, "console", "test").GetLevel())
}
