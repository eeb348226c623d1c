// Package config loads the console configuration. Defaults are overlaid by an
// optional TOML file, then by a .env file, then by the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/byze/byze-console/internal/database"
)

// DefaultPath is the config file read when CONSOLE_CONFIG is unset.
const DefaultPath = "console.toml"

// Config holds all console settings.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Engine    EngineConfig    `toml:"engine"`
	Storage   StorageConfig   `toml:"storage"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Auth      AuthConfig      `toml:"auth"`
	Worker    WorkerConfig    `toml:"worker"`
}

// ServiceConfig configures the HTTP service.
type ServiceConfig struct {
	Environment string `toml:"environment"`
	Port        string `toml:"port"`
	LogLevel    string `toml:"log_level"`

	// RateLimit is the number of requests per minute allowed per client IP.
	RateLimit int `toml:"rate_limit"`
}

// EngineConfig points the console at the engine.
type EngineConfig struct {
	APIURL        string        `toml:"api_url"`
	HealthURL     string        `toml:"health_url"`
	HealthTimeout time.Duration `toml:"health_timeout"`
	Timeout       time.Duration `toml:"timeout"`
	MaxRetries    uint64        `toml:"max_retries"`
}

// StorageConfig selects where console state is kept.
type StorageConfig struct {
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`

	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"ssl_mode"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `toml:"enabled"`
	OTLPEndpoint string `toml:"otlp_endpoint"`

	// SampleRatio is the fraction of new traces recorded, in [0, 1].
	SampleRatio    float64       `toml:"sample_ratio"`
	ExportInterval time.Duration `toml:"export_interval"`
}

// AuthConfig configures operator tokens. An empty signing key leaves the
// API open.
type AuthConfig struct {
	SigningKey string `toml:"signing_key"`
	Issuer     string `toml:"issuer"`
	Audience   string `toml:"audience"`
}

// WorkerConfig configures the background worker.
type WorkerConfig struct {
	ProjectID    string `toml:"project_id"`
	Subscription string `toml:"subscription"`

	// HealthPollSchedule and MCPSweepSchedule are cron specs.
	HealthPollSchedule string `toml:"health_poll_schedule"`
	MCPSweepSchedule   string `toml:"mcp_sweep_schedule"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Environment: "development",
			Port:        "8080",
			LogLevel:    "info",
			RateLimit:   300,
		},
		Engine: EngineConfig{
			APIURL:        "http://127.0.0.1:16688/byze/v0.2",
			HealthURL:     "http://127.0.0.1:16688",
			HealthTimeout: 60 * time.Second,
			Timeout:       60 * time.Second,
			MaxRetries:    2,
		},
		Storage: StorageConfig{
			Driver:     database.DriverSQLite,
			SQLitePath: "console.db",
			Host:       "localhost",
			Port:       5432,
			User:       "byze",
			Database:   "byze_console",
			SSLMode:    "disable",
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint:   "localhost:4317",
			SampleRatio:    1,
			ExportInterval: 15 * time.Second,
		},
		Auth: AuthConfig{
			Issuer:   "byze-console",
			Audience: "byze-console-api",
		},
		Worker: WorkerConfig{
			Subscription:       "download-events",
			HealthPollSchedule: "@every 30s",
			MCPSweepSchedule:   "@every 30s",
		},
	}
}

// Load builds the configuration from the file named by CONSOLE_CONFIG (or
// DefaultPath), a .env file in the working directory, and the environment.
// Missing files are skipped.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONSOLE_CONFIG")
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile builds the configuration from path and the environment. A missing
// file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Service.Environment, "APP_ENV")
	setString(&c.Service.Port, "APP_PORT")
	setString(&c.Service.LogLevel, "LOG_LEVEL")

	setString(&c.Engine.APIURL, "ENGINE_API_URL")
	setString(&c.Engine.HealthURL, "ENGINE_HEALTH_URL")

	setString(&c.Storage.Driver, "STORAGE_DRIVER")
	setString(&c.Storage.SQLitePath, "SQLITE_PATH")
	setString(&c.Storage.Host, "DB_HOST")
	setString(&c.Storage.User, "DB_USER")
	setString(&c.Storage.Password, "DB_PASSWORD")
	setString(&c.Storage.Database, "DB_NAME")
	setString(&c.Storage.SSLMode, "DB_SSLMODE")

	setString(&c.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	setString(&c.Auth.SigningKey, "AUTH_SIGNING_KEY")

	setString(&c.Worker.ProjectID, "GCP_PROJECT_ID")
	setString(&c.Worker.Subscription, "DOWNLOAD_EVENTS_SUBSCRIPTION")
	setString(&c.Worker.HealthPollSchedule, "HEALTH_POLL_SCHEDULE")
	setString(&c.Worker.MCPSweepSchedule, "MCP_SWEEP_SCHEDULE")

	var errs []error
	errs = append(errs,
		setInt(&c.Service.RateLimit, "RATE_LIMIT"),
		setInt(&c.Storage.Port, "DB_PORT"),
		setDuration(&c.Engine.HealthTimeout, "ENGINE_HEALTH_TIMEOUT"),
		setDuration(&c.Engine.Timeout, "ENGINE_TIMEOUT"),
		setUint(&c.Engine.MaxRetries, "ENGINE_MAX_RETRIES"),
		setBool(&c.Telemetry.Enabled, "OTEL_ENABLED"),
		setFloat(&c.Telemetry.SampleRatio, "OTEL_TRACES_SAMPLER_ARG"),
		setDuration(&c.Telemetry.ExportInterval, "OTEL_EXPORT_INTERVAL"),
	)
	return errors.Join(errs...)
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case database.DriverMemory, database.DriverSQLite, database.DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Engine.APIURL == "" || c.Engine.HealthURL == "" {
		return errors.New("engine api_url and health_url are required")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample_ratio %v is outside [0, 1]", c.Telemetry.SampleRatio)
	}
	if c.Storage.Driver == database.DriverSQLite && c.Storage.SQLitePath == "" {
		return errors.New("sqlite_path is required for the sqlite driver")
	}
	return nil
}

// Database returns the database settings.
func (c *Config) Database() database.Config {
	return database.Config{
		Driver:          c.Storage.Driver,
		SQLitePath:      c.Storage.SQLitePath,
		Host:            c.Storage.Host,
		Port:            c.Storage.Port,
		User:            c.Storage.User,
		Password:        c.Storage.Password,
		Database:        c.Storage.Database,
		SSLMode:         c.Storage.SSLMode,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// AuthEnabled reports whether mutating routes require a token.
func (c *Config) AuthEnabled() bool {
	return c.Auth.SigningKey != ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setUint(dst *uint64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
