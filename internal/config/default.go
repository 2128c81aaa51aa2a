package config

import "time"

// Default configuration values.
const (
	DefaultAddr          = "127.0.0.1:4000"
	DefaultRateLimit      = 0.0
	DefaultRateBurst      = 0
	DefaultShutdownGrace  = 5 * time.Second
	DefaultMetricsAddr    = ""

	DefaultDataDir             = "data"
	DefaultEngine              = "default"
	DefaultCompactionThreshold = 10000

	DefaultPoolKind    = "queue"
	DefaultPoolWorkers = 4

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Addr:          DefaultAddr,
			RateLimit:     DefaultRateLimit,
			RateBurst:     DefaultRateBurst,
			ShutdownGrace: DefaultShutdownGrace,
			MetricsAddr:   DefaultMetricsAddr,
		},
		Storage: StorageSection{
			DataDir:             DefaultDataDir,
			Engine:              DefaultEngine,
			CompactionThreshold: DefaultCompactionThreshold,
		},
		Pool: PoolSection{
			Kind:    DefaultPoolKind,
			Workers: DefaultPoolWorkers,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
