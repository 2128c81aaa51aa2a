package config

import (
	"fmt"
	"os"
)

// Verify validates cfg, creating the storage directory if absent.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyPool(&cfg.Pool); err != nil {
		return err
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be >= 0")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	switch cfg.Engine {
	case "kvs", "sled", "default":
	default:
		return fmt.Errorf("storage.engine must be kvs, sled, or default, got %q", cfg.Engine)
	}
	if cfg.CompactionThreshold < 1 {
		return fmt.Errorf("storage.compaction_threshold must be at least 1")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

func verifyPool(cfg *PoolSection) error {
	switch cfg.Kind {
	case "naive", "queue":
	default:
		return fmt.Errorf("pool.kind must be naive or queue, got %q", cfg.Kind)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("pool.workers must be at least 1")
	}
	return nil
}
