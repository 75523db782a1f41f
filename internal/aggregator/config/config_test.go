package config

import (
	"os"
	"testing"
)

func TestLoad_AppliesDocumentedDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AggregatorListen != "0.0.0.0:50051" {
		t.Errorf("AggregatorListen = %q, want 0.0.0.0:50051", cfg.AggregatorListen)
	}
	if cfg.AdminListen != "0.0.0.0:9090" {
		t.Errorf("AdminListen = %q, want 0.0.0.0:9090", cfg.AdminListen)
	}
	if cfg.BufferSize != 10000 {
		t.Errorf("BufferSize = %d, want 10000", cfg.BufferSize)
	}
	if cfg.MaxMessageSizeMB != 16 {
		t.Errorf("MaxMessageSizeMB = %d, want 16", cfg.MaxMessageSizeMB)
	}
}

func TestLoad_AuthDisabledWithoutToken(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("AuthEnabled() = true, want false when APERTURE_AUTH_TOKEN unset")
	}
}

func TestLoad_AuthEnabledWhenTokenSet(t *testing.T) {
	os.Setenv("APERTURE_AUTH_TOKEN", "secret")
	defer os.Unsetenv("APERTURE_AUTH_TOKEN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("AuthEnabled() = false, want true when APERTURE_AUTH_TOKEN set")
	}
}

func TestLoad_ClickhouseConfiguredReflectsAnyVarSet(t *testing.T) {
	os.Setenv("APERTURE_CLICKHOUSE_ENDPOINT", "http://ch:8123")
	defer os.Unsetenv("APERTURE_CLICKHOUSE_ENDPOINT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.ClickhouseConfigured() {
		t.Error("ClickhouseConfigured() = false, want true when endpoint var is set")
	}
}
