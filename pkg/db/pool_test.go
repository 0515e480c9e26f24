package db

import (
	"context"
	"testing"
)

const poolTestPrefix = "db:pool_test"

func TestPoolConfig_Defaults(t *testing.T) {
	cfg, err := poolConfig("postgres://u:p@localhost:5432/widget_host?sslmode=disable")
	if err != nil {
		t.Fatalf("%s - poolConfig: %v", poolTestPrefix, err)
	}
	if cfg.MaxConns != maxConns || cfg.MinConns != minConns {
		t.Errorf("%s - conns = %d/%d, want %d/%d", poolTestPrefix, cfg.MinConns, cfg.MaxConns, minConns, maxConns)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != ApplicationName {
		t.Errorf("%s - application_name = %q, want %q", poolTestPrefix, got, ApplicationName)
	}
	if cfg.ConnConfig.Database != DefaultDatabase {
		t.Errorf("%s - database = %q", poolTestPrefix, cfg.ConnConfig.Database)
	}
}

func TestPoolConfig_URLOverrides(t *testing.T) {
	cfg, err := poolConfig("postgres://localhost/widget_host?pool_max_conns=3&application_name=clock-tests")
	if err != nil {
		t.Fatalf("%s - poolConfig: %v", poolTestPrefix, err)
	}
	if cfg.MaxConns != 3 {
		t.Errorf("%s - MaxConns = %d, want 3 from URL", poolTestPrefix, cfg.MaxConns)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != "clock-tests" {
		t.Errorf("%s - application_name = %q, want URL value", poolTestPrefix, got)
	}
}

func TestNewPool_BadURL(t *testing.T) {
	for _, u := range []string{"", "invalid://not-a-valid-database-url"} {
		pool, err := NewPool(context.Background(), u)
		if err == nil {
			pool.Close()
			t.Fatalf("%s - NewPool(%q) should fail", poolTestPrefix, u)
		}
		if pool != nil {
			t.Errorf("%s - expected nil pool on error", poolTestPrefix)
		}
	}
}
