package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

var envVars = []string{
	"COMMS_URL", "SERVICE_NAME",
	"BRIDGE_TRANSPORT", "BRIDGE_WS_URL", "BRIDGE_HOST_SUBJECT", "BRIDGE_EVENT_SUBJECT",
	"WIDGET_ID", "BRIDGE_REQUEST_TIMEOUT", "BRIDGE_CONTEXT_STRATEGY", "BRIDGE_MANIFEST_FILE",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"BRIDGE_HTTP_ADDR", "HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "CONFIRM_DEFAULT", "LOG_LEVEL",
}

func clearEnv() {
	for _, env := range envVars {
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://127.0.0.1:4222" {
		t.Errorf("config:config_test - COMMSURL = %q, want %q", cfg.COMMSURL, "nats://127.0.0.1:4222")
	}
	if cfg.COMMSName != "widget-bridge" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "widget-bridge")
	}
	if cfg.Transport != TransportNATS {
		t.Errorf("config:config_test - Transport = %q, want %q", cfg.Transport, TransportNATS)
	}
	if cfg.HostSubject != "" || cfg.EventSubject != "" {
		t.Errorf("config:config_test - subjects should default to empty, got %q %q", cfg.HostSubject, cfg.EventSubject)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
	if cfg.ContextStrategy != "replace" {
		t.Errorf("config:config_test - ContextStrategy = %q, want replace", cfg.ContextStrategy)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("config:config_test - DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=false by default")
	}
	if !cfg.ConfirmDefault {
		t.Error("config:config_test - expected ConfirmDefault=true by default")
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("config:config_test - Addr = %q, want :8080", cfg.Addr())
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv()
	overrides := map[string]string{
		"COMMS_URL":               "nats://custom:4222",
		"SERVICE_NAME":            "clock-widget",
		"BRIDGE_TRANSPORT":        "ws",
		"BRIDGE_WS_URL":           "ws://host:9000/ws",
		"BRIDGE_HOST_SUBJECT":     "custom.host",
		"BRIDGE_EVENT_SUBJECT":    "custom.events",
		"WIDGET_ID":               "clock",
		"BRIDGE_REQUEST_TIMEOUT":  "3s",
		"BRIDGE_CONTEXT_STRATEGY": "merge",
		"BRIDGE_MANIFEST_FILE":    "/tmp/manifest.yaml",
		"DATABASE_URL":            "postgres://test@localhost/test",
		"RUN_MIGRATIONS":          "true",
		"BRIDGE_HTTP_ADDR":        "127.0.0.1:9090",
		"CONFIRM_DEFAULT":         "false",
		"LOG_LEVEL":               "debug",
	}
	for key, val := range overrides {
		os.Setenv(key, val)
	}
	defer clearEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://custom:4222" || cfg.COMMSName != "clock-widget" {
		t.Errorf("config:config_test - COMMS = %q %q", cfg.COMMSURL, cfg.COMMSName)
	}
	if cfg.Transport != TransportWS || cfg.WSURL != "ws://host:9000/ws" {
		t.Errorf("config:config_test - transport = %q %q", cfg.Transport, cfg.WSURL)
	}
	if cfg.HostSubject != "custom.host" || cfg.EventSubject != "custom.events" {
		t.Errorf("config:config_test - subjects = %q %q", cfg.HostSubject, cfg.EventSubject)
	}
	if cfg.WidgetID != "clock" {
		t.Errorf("config:config_test - WidgetID = %q, want clock", cfg.WidgetID)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 3s", cfg.RequestTimeout)
	}
	if cfg.ContextStrategy != "merge" {
		t.Errorf("config:config_test - ContextStrategy = %q, want merge", cfg.ContextStrategy)
	}
	if cfg.ManifestFile != "/tmp/manifest.yaml" {
		t.Errorf("config:config_test - ManifestFile = %q", cfg.ManifestFile)
	}
	if cfg.DatabaseURL != "postgres://test@localhost/test" || !cfg.RunMigrations {
		t.Errorf("config:config_test - database = %q %v", cfg.DatabaseURL, cfg.RunMigrations)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Errorf("config:config_test - Addr = %q", cfg.Addr())
	}
	if cfg.ConfirmDefault {
		t.Error("config:config_test - expected ConfirmDefault=false")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			COMMSURL:           "nats://127.0.0.1:4222",
			Transport:          TransportNATS,
			RequestTimeout:     time.Second,
			ContextStrategy:    "replace",
			HealthCheckTimeout: time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		check   func(*Config) error
		wantErr string
	}{
		{"widget ok", func(*Config) {}, (*Config).ValidateForWidget, ""},
		{"widget empty transport", func(c *Config) { c.Transport = "" }, (*Config).ValidateForWidget, ""},
		{"widget bad transport", func(c *Config) { c.Transport = "smoke" }, (*Config).ValidateForWidget, "BRIDGE_TRANSPORT"},
		{"widget ws without url", func(c *Config) { c.Transport = TransportWS }, (*Config).ValidateForWidget, "BRIDGE_WS_URL"},
		{"widget bad strategy", func(c *Config) { c.ContextStrategy = "append" }, (*Config).ValidateForWidget, "BRIDGE_CONTEXT_STRATEGY"},
		{"widget zero timeout", func(c *Config) { c.RequestTimeout = 0 }, (*Config).ValidateForWidget, "BRIDGE_REQUEST_TIMEOUT"},
		{"host ok", func(*Config) {}, (*Config).ValidateForHost, ""},
		{"host migrations without db", func(c *Config) { c.RunMigrations = true }, (*Config).ValidateForHost, "RUN_MIGRATIONS"},
		{"host zero health timeout", func(c *Config) { c.HealthCheckTimeout = 0 }, (*Config).ValidateForHost, "HEALTH_CHECK_TIMEOUT"},
		{"db missing url", func(*Config) {}, (*Config).ValidateForDB, "DATABASE_URL"},
		{"db ok", func(c *Config) { c.DatabaseURL = "postgres://x" }, (*Config).ValidateForDB, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := tt.check(c)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("config:config_test - unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("config:config_test - expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"loud":  slog.LevelInfo,
	}
	for level, want := range tests {
		c := &Config{LogLevel: level}
		if got := c.SlogLevel(); got != want {
			t.Errorf("config:config_test - SlogLevel(%q) = %v, want %v", level, got, want)
		}
	}
}
