// Package constants defines shared configuration constants and defaults.
package constants

import "time"

// Timeouts - Default timeout values.
const (
	// DefaultConnectTimeout is the pusher's gRPC dial timeout (§4.5).
	DefaultConnectTimeout = 5 * time.Second

	// DefaultGRPCTimeout is the default of both config structs'
	// GRPCTimeoutSecs, env-tunable via APERTURE_GRPC_TIMEOUT_SECS (§6). The
	// pusher does not apply it to Push calls.
	DefaultGRPCTimeout = 120 * time.Second

	// DefaultStoreFetchTimeout bounds the admin API's store lookup before
	// falling back to the in-memory buffer (§4.11, §5).
	DefaultStoreFetchTimeout = 5 * time.Second

	// DefaultHealthTimeout bounds readiness probe buffer access checks.
	DefaultHealthTimeout = 500 * time.Millisecond
)

// Intervals - Default interval values.
const (
	// DefaultPushInterval is the streaming pusher's initial interval (§4.5).
	DefaultPushInterval = 5 * time.Second

	// DefaultLowOverheadPushInterval applies when APERTURE_LOW_OVERHEAD=1 (§6).
	DefaultLowOverheadPushInterval = 10 * time.Second

	// MaxPushInterval is the adaptive backpressure interval cap (§4.5).
	MaxPushInterval = 30 * time.Second

	// DefaultStoreFlushInterval is the persistent store's background flush
	// timer (§4.7).
	DefaultStoreFlushInterval = 2 * time.Second

	// DefaultStoreFlushThreshold is the pending-row count that wakes the
	// store's background flusher early (§4.7).
	DefaultStoreFlushThreshold = 100
)

// Retention - Default retention periods.
const (
	// DefaultStoreTTL is the persistent batch store's row retention (§4.7, §6).
	DefaultStoreTTL = 90 * 24 * time.Hour
)

// Sampling - CPU profiling sampling rate defaults.
const (
	// DefaultSampleRateHz is the default CPU profiling frequency.
	DefaultSampleRateHz = 99

	// LowOverheadSampleRateHz applies when APERTURE_LOW_OVERHEAD=1 (§6).
	LowOverheadSampleRateHz = 49

	// MaxSampleRateHz is the agent CLI's upper bound on --sample-rate (§6).
	MaxSampleRateHz = 10000
)

// Sizing - buffer and message size defaults.
const (
	// DefaultBufferSize is the aggregator's in-memory ring buffer capacity,
	// env-tunable via APERTURE_BUFFER_SIZE (§6).
	DefaultBufferSize = 10000

	// MaxRingBufferCapacity caps the preallocated ring buffer regardless of
	// configured size (§4.6).
	MaxRingBufferCapacity = 4096

	// DefaultServerMaxMessageSizeMB is APERTURE_MAX_MESSAGE_SIZE_MB's server
	// default (§6).
	DefaultServerMaxMessageSizeMB = 16

	// DefaultAgentMaxMessageSizeMB is APERTURE_MAX_MESSAGE_SIZE_MB's agent
	// default (§6).
	DefaultAgentMaxMessageSizeMB = 32

	// MaxQueryLimit is the hard ceiling on store query result size (§4.7).
	MaxQueryLimit = 10000

	// MaxBufferQueryLimit is the hard ceiling on ring buffer query result
	// size (§4.6).
	MaxBufferQueryLimit = 1000
)

// BackpressureThreshold is the ring buffer utilization above which Push
// responses report backpressure=true (§4.6).
const BackpressureThreshold = 0.8

// AlertHistoryCapacity bounds the alert evaluator's fired-event ring (§4.12).
const AlertHistoryCapacity = 500
