// Package constants defines shared configuration constants and defaults.
package constants

var (
	// ConfigFile is the default name of an on-disk config overlay file.
	ConfigFile = "aperture.yaml"

	// DefaultDir is the default per-host state directory.
	DefaultDir = ".aperture"

	// DefaultStorePath is the default DuckDB-backed batch store path.
	DefaultStorePath = DefaultDir + "/" + "aggregator.duckdb"

	// DefaultAggregatorListen is the default gRPC listen address (APERTURE_AGGREGATOR_LISTEN).
	DefaultAggregatorListen = "0.0.0.0:50051"

	// DefaultAdminListen is the default admin HTTP listen address (APERTURE_ADMIN_LISTEN).
	DefaultAdminListen = "0.0.0.0:9090"

	// DefaultBPFMapPinDir is where the probe loader is expected to pin its
	// ring buffer maps (APERTURE_BPF_MAP_PIN_DIR).
	DefaultBPFMapPinDir = "/sys/fs/bpf/aperture"
)
