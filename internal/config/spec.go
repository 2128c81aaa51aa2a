// Package config defines kvs-server's configuration structure and
// loads it from defaults, a YAML file, and environment variables.
package config

import "time"

// ServerConfig is the root configuration for kvs-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Storage StorageSection `koanf:"storage"`
	Pool    PoolSection    `koanf:"pool"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures the TCP endpoint.
type ServerSection struct {
	Addr          string        `koanf:"addr"`
	RateLimit     float64       `koanf:"rate_limit"`      // requests/sec across all connections; 0 disables
	RateBurst     int           `koanf:"rate_burst"`
	ShutdownGrace time.Duration `koanf:"shutdown_grace"`
	MetricsAddr   string        `koanf:"metrics_addr"` // empty disables /metrics
}

// StorageSection configures the storage engine.
type StorageSection struct {
	DataDir             string `koanf:"data_dir"`
	Engine              string `koanf:"engine"` // "kvs", "sled", or "default"
	CompactionThreshold int    `koanf:"compaction_threshold"`
}

// PoolSection configures the worker pool dispatching connections.
type PoolSection struct {
	Kind    string `koanf:"kind"` // "naive" or "queue"
	Workers int    `koanf:"workers"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
