// Package config defines service configuration structures and loading hooks.
package config

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// PostgresDSN selects the Postgres store when set; empty runs the
	// in-memory store.
	PostgresDSN string `koanf:"postgres_dsn"`

	// SnapshotPath loads an initial in-memory snapshot when set, and is
	// where the ingest command writes its output.
	SnapshotPath string `koanf:"snapshot_path"`

	// ResultLimit caps every viewport tier's result set.
	ResultLimit int `koanf:"result_limit"`

	// LockWaitMS bounds row lock acquisition for cluster-wide edits.
	LockWaitMS int `koanf:"lock_wait_ms"`

	// CacheCapacity bounds the client clustering cache entry count.
	CacheCapacity int `koanf:"cache_capacity"`

	// CachePixelRadius is the screen-pixel clustering radius.
	CachePixelRadius float64 `koanf:"cache_pixel_radius"`

	// CacheDebounceMS is the quiet period before a clustering recompute.
	CacheDebounceMS int `koanf:"cache_debounce_ms"`

	// MetricsRefreshSeconds sets the gauge refresh interval.
	MetricsRefreshSeconds int `koanf:"metrics_refresh_seconds"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		ResultLimit:           750,
		LockWaitMS:            2000,
		CacheCapacity:         50,
		CachePixelRadius:      40,
		CacheDebounceMS:       500,
		MetricsRefreshSeconds: 15,
	}
}
