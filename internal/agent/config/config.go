// Package config defines the agent's runtime configuration surface (spec
// §6): the CLI flags a profiling run is launched with, plus the
// environment variables that tune the streaming pusher and transport.
package config

import (
	"fmt"
	"time"

	"github.com/aperture-systems/aperture/internal/config"
	"github.com/aperture-systems/aperture/internal/constants"
)

// Mode selects which probe kinds an agent run collects.
type Mode string

const (
	ModeCPU     Mode = "cpu"
	ModeLock    Mode = "lock"
	ModeSyscall Mode = "syscall"
	ModeAll     Mode = "all"
)

func (m Mode) valid() bool {
	switch m {
	case ModeCPU, ModeLock, ModeSyscall, ModeAll:
		return true
	default:
		return false
	}
}

// maxSampleRateHz is the upper bound on --sample-rate (§6, §7 "Configuration" errors).
const maxSampleRateHz = 10000

// Config is the fully resolved configuration for one agent run: CLI flags
// layered over environment-tunable transport settings.
type Config struct {
	Mode          Mode
	PID           *int
	Duration      time.Duration
	SampleRateHz  int
	Output        string
	JSON          bool
	AggregatorURL string
	Verbose       bool

	// LowOverhead, when true, overrides SampleRateHz/PushInterval to the
	// APERTURE_LOW_OVERHEAD preset (49Hz sampling, 10s push) per §6.
	LowOverhead bool

	PushInterval     time.Duration
	GRPCTimeout      time.Duration
	MaxMessageSizeMB int
	LogFormat        string
	BPFMapPinDir     string
	AuthToken        string
}

type envConfig struct {
	LowOverhead      bool   `env:"APERTURE_LOW_OVERHEAD"`
	GRPCTimeoutSecs  int    `env:"APERTURE_GRPC_TIMEOUT_SECS"`
	MaxMessageSizeMB int    `env:"APERTURE_MAX_MESSAGE_SIZE_MB"`
	LogFormat        string `env:"APERTURE_LOG_FORMAT"`
	BPFMapPinDir     string `env:"APERTURE_BPF_MAP_PIN_DIR"`
	AuthToken        string `env:"APERTURE_AUTH_TOKEN"`
}

// Load resolves a Config from explicit CLI flag values plus environment
// overrides, validating everything up front per §7's "fail fast on
// startup" policy for configuration errors.
func Load(mode string, pid int, hasPID bool, duration string, sampleRateHz int, output string, jsonOut bool, aggregatorURL string, verbose bool) (Config, error) {
	m := Mode(mode)
	if !m.valid() {
		return Config{}, fmt.Errorf("config: invalid --mode %q (want cpu, lock, syscall, or all)", mode)
	}

	dur, err := time.ParseDuration(duration)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid --duration %q: %w", duration, err)
	}

	if sampleRateHz <= 0 {
		sampleRateHz = 99
	}
	if sampleRateHz > maxSampleRateHz {
		return Config{}, fmt.Errorf("config: --sample-rate %d exceeds the %d Hz limit", sampleRateHz, maxSampleRateHz)
	}

	env := envConfig{
		GRPCTimeoutSecs:  int(constants.DefaultGRPCTimeout / time.Second),
		MaxMessageSizeMB: 32,
		LogFormat:        "pretty",
		BPFMapPinDir:     constants.DefaultBPFMapPinDir,
	}
	if err := config.LoadFromEnv(&env); err != nil {
		return Config{}, fmt.Errorf("config: load environment overrides: %w", err)
	}

	cfg := Config{
		Mode:             m,
		Duration:         dur,
		SampleRateHz:     sampleRateHz,
		Output:           output,
		JSON:             jsonOut,
		AggregatorURL:    aggregatorURL,
		Verbose:          verbose,
		LowOverhead:      env.LowOverhead,
		PushInterval:     constants.DefaultPushInterval,
		GRPCTimeout:      time.Duration(env.GRPCTimeoutSecs) * time.Second,
		MaxMessageSizeMB: env.MaxMessageSizeMB,
		LogFormat:        env.LogFormat,
		BPFMapPinDir:     env.BPFMapPinDir,
		AuthToken:        env.AuthToken,
	}
	if hasPID {
		cfg.PID = &pid
	}
	if cfg.LowOverhead {
		cfg.SampleRateHz = 49
		cfg.PushInterval = constants.DefaultLowOverheadPushInterval
	}

	return cfg, nil
}

// OutputPath derives the per-kind output path for "all" mode (§6): e.g.
// "<output>.cpu.svg" when json is false, "<output>.cpu.txt" when true. In
// any other mode it returns Output unchanged.
func (c Config) OutputPath(kind Mode) string {
	if c.Mode != ModeAll {
		return c.Output
	}
	ext := "svg"
	if c.JSON {
		ext = "txt"
	}
	return fmt.Sprintf("%s.%s.%s", c.Output, kind, ext)
}

// ActiveModes returns the probe kinds this run collects: all three under
// ModeAll, or the single configured mode otherwise.
func (c Config) ActiveModes() []Mode {
	if c.Mode == ModeAll {
		return []Mode{ModeCPU, ModeLock, ModeSyscall}
	}
	return []Mode{c.Mode}
}
