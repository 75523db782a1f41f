package config

import (
	"os"
	"testing"
	"time"
)

type testAggregatorConfig struct {
	Listen         string        `env:"APERTURE_AGGREGATOR_LISTEN"`
	BufferSize     int           `env:"APERTURE_BUFFER_SIZE"`
	AuthToken      string        `env:"APERTURE_AUTH_TOKEN"`
	LowOverhead    bool          `env:"APERTURE_LOW_OVERHEAD"`
	GRPCTimeout    time.Duration `env:"APERTURE_GRPC_TIMEOUT_SECS"`
	MaxMessageSize uint32        `env:"APERTURE_MAX_MESSAGE_SIZE_MB"`
}

func TestLoadFromEnv_AggregatorConfig(t *testing.T) {
	envVars := map[string]string{
		"APERTURE_AGGREGATOR_LISTEN":  "127.0.0.1:50051",
		"APERTURE_BUFFER_SIZE":        "5000",
		"APERTURE_AUTH_TOKEN":         "s3cr3t",
		"APERTURE_LOW_OVERHEAD":       "true",
		"APERTURE_GRPC_TIMEOUT_SECS":  "45s",
		"APERTURE_MAX_MESSAGE_SIZE_MB": "16",
	}
	for key, value := range envVars {
		os.Setenv(key, value)
		defer os.Unsetenv(key)
	}

	var cfg testAggregatorConfig
	if err := LoadFromEnv(&cfg); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Listen != "127.0.0.1:50051" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, "127.0.0.1:50051")
	}
	if cfg.BufferSize != 5000 {
		t.Errorf("BufferSize = %d, want 5000", cfg.BufferSize)
	}
	if cfg.AuthToken != "s3cr3t" {
		t.Errorf("AuthToken = %q, want %q", cfg.AuthToken, "s3cr3t")
	}
	if !cfg.LowOverhead {
		t.Error("LowOverhead = false, want true")
	}
	if cfg.GRPCTimeout != 45*time.Second {
		t.Errorf("GRPCTimeout = %v, want 45s", cfg.GRPCTimeout)
	}
	if cfg.MaxMessageSize != 16 {
		t.Errorf("MaxMessageSize = %d, want 16", cfg.MaxMessageSize)
	}
}

func TestLoadFromEnv_MissingVarsLeaveZeroValue(t *testing.T) {
	os.Unsetenv("APERTURE_AGGREGATOR_LISTEN")
	os.Unsetenv("APERTURE_BUFFER_SIZE")

	var cfg testAggregatorConfig
	if err := LoadFromEnv(&cfg); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Listen != "" {
		t.Errorf("Listen = %q, want empty", cfg.Listen)
	}
	if cfg.BufferSize != 0 {
		t.Errorf("BufferSize = %d, want 0", cfg.BufferSize)
	}
}

func TestLoadFromEnv_InvalidDuration(t *testing.T) {
	os.Setenv("APERTURE_GRPC_TIMEOUT_SECS", "not-a-duration")
	defer os.Unsetenv("APERTURE_GRPC_TIMEOUT_SECS")

	var cfg testAggregatorConfig
	if err := LoadFromEnv(&cfg); err == nil {
		t.Error("LoadFromEnv() should fail with invalid duration")
	}
}

func TestLoadFromEnv_InvalidBool(t *testing.T) {
	os.Setenv("APERTURE_LOW_OVERHEAD", "not-a-bool")
	defer os.Unsetenv("APERTURE_LOW_OVERHEAD")

	var cfg testAggregatorConfig
	if err := LoadFromEnv(&cfg); err == nil {
		t.Error("LoadFromEnv() should fail with invalid bool")
	}
}
