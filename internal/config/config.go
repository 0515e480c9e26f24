// Package config provides widget and dev host configuration loaded from
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/widget-bridge/pkg/widget"
)

const logPrefix = "config:LoadConfig"

// Transport names accepted by BRIDGE_TRANSPORT.
const (
	TransportNATS = "nats"
	TransportWS   = "ws"
)

// Config holds widget-bridge configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"widget-bridge"`

	// Widget side
	Transport       string        `envconfig:"BRIDGE_TRANSPORT" default:"nats"`
	WSURL           string        `envconfig:"BRIDGE_WS_URL" default:"ws://127.0.0.1:8080/ws"`
	HostSubject     string        `envconfig:"BRIDGE_HOST_SUBJECT"`
	EventSubject    string        `envconfig:"BRIDGE_EVENT_SUBJECT"`
	WidgetID        string        `envconfig:"WIDGET_ID"`
	RequestTimeout  time.Duration `envconfig:"BRIDGE_REQUEST_TIMEOUT" default:"10s"`
	ContextStrategy string        `envconfig:"BRIDGE_CONTEXT_STRATEGY" default:"replace"`

	// Host manifest (empty = search defaults, then the embedded manifest)
	ManifestFile string `envconfig:"BRIDGE_MANIFEST_FILE"`

	// Database (empty = in-memory store)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH"`

	// HTTP endpoints (BRIDGE_HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"BRIDGE_HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Answer given to ui.confirm by the dev host
	ConfirmDefault bool `envconfig:"CONFIRM_DEFAULT" default:"true"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ValidateForWidget checks required config when running widget-side commands.
func (c *Config) ValidateForWidget() error {
	switch c.Transport {
	case "", TransportNATS:
		if c.COMMSURL == "" {
			return fmt.Errorf("%s - COMMS_URL is required for the nats transport", logPrefix)
		}
	case TransportWS:
		if c.WSURL == "" {
			return fmt.Errorf("%s - BRIDGE_WS_URL is required for the ws transport", logPrefix)
		}
	default:
		return fmt.Errorf("%s - BRIDGE_TRANSPORT must be %q or %q, got %q", logPrefix, TransportNATS, TransportWS, c.Transport)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - BRIDGE_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if _, err := widget.ParseStrategy(c.ContextStrategy); err != nil {
		return fmt.Errorf("%s - BRIDGE_CONTEXT_STRATEGY: %w", logPrefix, err)
	}
	return nil
}

// ValidateForHost checks required config when running the dev host.
func (c *Config) ValidateForHost() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - BRIDGE_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.RunMigrations && c.DatabaseURL == "" {
		return fmt.Errorf("%s - RUN_MIGRATIONS requires DATABASE_URL", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, ensure-db).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// SetupLogging installs a text slog handler on stdout at LOG_LEVEL.
func (c *Config) SetupLogging() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: c.SlogLevel()})))
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
