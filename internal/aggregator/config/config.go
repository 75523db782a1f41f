// Package config defines the aggregator's runtime configuration surface
// (spec §6): listen addresses, buffer sizing, message size caps, auth,
// and the DuckDB store path.
package config

import (
	"fmt"
	"time"

	"github.com/aperture-systems/aperture/internal/config"
	"github.com/aperture-systems/aperture/internal/constants"
)

// Config is the aggregator's fully resolved runtime configuration,
// entirely environment-driven (the aggregator has no CLI flag surface
// beyond its subcommand name).
type Config struct {
	AggregatorListen string
	AdminListen      string
	BufferSize       int
	MaxMessageSizeMB int
	AuthToken        string
	StorePath        string
	GRPCTimeout      time.Duration
	LogFormat        string

	// ClickhouseEndpoint/Database/Password are read but unused: the
	// reference store is DuckDB (§4.7), not ClickHouse. They are kept so
	// an operator migrating from the original deployment doesn't see
	// silently-ignored env vars rejected as unknown. Load only records
	// them; cmd/aperture-aggregator logs a warning when
	// ClickhouseConfigured reports them set.
	ClickhouseEndpoint string
	ClickhouseDatabase string
	ClickhousePassword string
}

type envConfig struct {
	AggregatorListen   string `env:"APERTURE_AGGREGATOR_LISTEN"`
	AdminListen        string `env:"APERTURE_ADMIN_LISTEN"`
	BufferSize         int    `env:"APERTURE_BUFFER_SIZE"`
	MaxMessageSizeMB   int    `env:"APERTURE_MAX_MESSAGE_SIZE_MB"`
	AuthToken          string `env:"APERTURE_AUTH_TOKEN"`
	StorePath          string `env:"APERTURE_STORE_PATH"`
	GRPCTimeoutSecs    int    `env:"APERTURE_GRPC_TIMEOUT_SECS"`
	LogFormat          string `env:"APERTURE_LOG_FORMAT"`
	ClickhouseEndpoint string `env:"APERTURE_CLICKHOUSE_ENDPOINT"`
	ClickhouseDatabase string `env:"APERTURE_CLICKHOUSE_DATABASE"`
	ClickhousePassword string `env:"APERTURE_CLICKHOUSE_PASSWORD"`
}

// Load resolves a Config from environment variables, seeded with the
// spec's documented defaults.
func Load() (Config, error) {
	env := envConfig{
		AggregatorListen: constants.DefaultAggregatorListen,
		AdminListen:      constants.DefaultAdminListen,
		BufferSize:       10000,
		MaxMessageSizeMB: 16,
		StorePath:        constants.DefaultStorePath,
		GRPCTimeoutSecs:  int(constants.DefaultGRPCTimeout / time.Second),
		LogFormat:        "pretty",
	}
	if err := config.LoadFromEnv(&env); err != nil {
		return Config{}, fmt.Errorf("config: load environment: %w", err)
	}

	return Config{
		AggregatorListen:   env.AggregatorListen,
		AdminListen:        env.AdminListen,
		BufferSize:         env.BufferSize,
		MaxMessageSizeMB:   env.MaxMessageSizeMB,
		AuthToken:          env.AuthToken,
		StorePath:          env.StorePath,
		GRPCTimeout:        time.Duration(env.GRPCTimeoutSecs) * time.Second,
		LogFormat:          env.LogFormat,
		ClickhouseEndpoint: env.ClickhouseEndpoint,
		ClickhouseDatabase: env.ClickhouseDatabase,
		ClickhousePassword: env.ClickhousePassword,
	}, nil
}

// AuthEnabled reports whether Push/Query RPCs require a Bearer token.
func (c Config) AuthEnabled() bool {
	return c.AuthToken != ""
}

// ClickhouseConfigured reports whether any ClickHouse env var was set,
// so callers can log a one-time warning that it has no effect.
func (c Config) ClickhouseConfigured() bool {
	return c.ClickhouseEndpoint != "" || c.ClickhouseDatabase != "" || c.ClickhousePassword != ""
}
