// Package main provides the entry point for kvs-server, the TCP
// key-value store server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kvsd/kvs/internal/config"
	"github.com/kvsd/kvs/internal/engine"
	"github.com/kvsd/kvs/internal/handshake"
	"github.com/kvsd/kvs/internal/kvengine"
	"github.com/kvsd/kvs/internal/logengine"
	"github.com/kvsd/kvs/internal/naivepool"
	"github.com/kvsd/kvs/internal/pool"
	"github.com/kvsd/kvs/internal/queuepool"
	"github.com/kvsd/kvs/internal/server"
	"github.com/kvsd/kvs/internal/shutdown"
	"github.com/kvsd/kvs/internal/telemetry/logger"
	"github.com/kvsd/kvs/internal/telemetry/metric"
)

// Build information, set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr        = flag.String("addr", "", "TCP address to listen on (overrides config)")
		engineFlag  = flag.String("engine", "", "Storage engine: kvs, sled, or default (overrides config)")
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("kvs-server %s (commit: %s)\n", version, commit)
		return nil
	}

	cfg, err := loadConfig(*configFile, *addr, *engineFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	slogLogger := slog.Default()

	log.Info("starting kvs-server", "version", version, "commit", commit, "addr", cfg.Server.Addr)

	resolvedEngine, err := handshake.Resolve(cfg.Storage.DataDir, handshake.Engine(cfg.Storage.Engine))
	if err != nil {
		return fmt.Errorf("resolve engine: %w", err)
	}
	log.Info("resolved storage engine", "engine", resolvedEngine)

	registry := metric.NewRegistry()

	eng, err := openEngine(resolvedEngine, cfg, slogLogger, registry)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	workerPool, err := openPool(cfg, slogLogger, registry)
	if err != nil {
		return fmt.Errorf("open pool: %w", err)
	}

	srv := server.New(server.Config{
		Addr:        cfg.Server.Addr,
		Engine:      eng,
		Pool:        workerPool,
		Logger:      slogLogger,
		Metrics:     server.NewMetrics(registry),
		RateLimit:   cfg.Server.RateLimit,
		RateBurst:   cfg.Server.RateBurst,
		MetricsAddr: cfg.Server.MetricsAddr,
		Registry:    registry,
	})

	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownGrace)
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("closing storage engine")
		return eng.Close()
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("draining worker pool")
		return workerPool.Close()
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down server")
		return srv.Shutdown(ctx)
	})

	watcher, err := startConfigWatcher(cfg, *configFile, log, eng, srv)
	if err != nil {
		log.Warn("config watcher not started", "error", err)
	}
	if watcher != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			return watcher.Stop()
		})
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Error("server error", "error", err)
		}
	}()

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadConfig(configFile, addrOverride, engineOverride string) (*config.ServerConfig, error) {
	opts := []config.Option{}
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}

	loader := config.NewLoader(opts...)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}
	if engineOverride != "" {
		cfg.Storage.Engine = engineOverride
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openEngine(resolved handshake.Engine, cfg *config.ServerConfig, log *slog.Logger, registry *prometheus.Registry) (engine.Engine, error) {
	switch resolved {
	case handshake.EngineSled:
		h, err := kvengine.Open(cfg.Storage.DataDir, kvengine.DefaultBadgerConfig(), log)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		h, err := logengine.Open(logengine.Config{
			Dir:                 cfg.Storage.DataDir,
			CompactionThreshold: cfg.Storage.CompactionThreshold,
			Logger:              log,
			Metrics:             logengine.NewMetrics(registry),
		})
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

func openPool(cfg *config.ServerConfig, log *slog.Logger, registry *prometheus.Registry) (pool.Pool, error) {
	switch cfg.Pool.Kind {
	case "naive":
		return naivepool.New(uint32(cfg.Pool.Workers))
	default:
		return queuepool.New(uint32(cfg.Pool.Workers),
			queuepool.WithLogger(log),
			queuepool.WithMetrics(queuepool.NewMetrics(registry)),
		)
	}
}

// compactionThresholdSetter is implemented by engines whose compaction
// threshold can be changed on a running store (currently logengine).
type compactionThresholdSetter interface {
	SetCompactionThreshold(n int)
}

func startConfigWatcher(cfg *config.ServerConfig, configFile string, log logger.Logger, eng engine.Engine, srv *server.Server) (*config.Watcher, error) {
	if configFile == "" {
		return nil, nil
	}

	loader := config.NewLoader(config.WithConfigFile(configFile))
	watcher, err := config.NewWatcher(loader, cfg, config.WithWatcherLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(configFile); err != nil {
		return nil, err
	}
	watcher.OnChange(func(updated *config.ServerConfig) {
		logger.SetLevel(updated.Log.Level)

		if setter, ok := eng.(compactionThresholdSetter); ok {
			setter.SetCompactionThreshold(updated.Storage.CompactionThreshold)
		}
		srv.SetRateLimit(updated.Server.RateLimit, updated.Server.RateBurst)

		log.Info("configuration reloaded",
			"log_level", updated.Log.Level,
			"compaction_threshold", updated.Storage.CompactionThreshold,
			"rate_limit", updated.Server.RateLimit)
	})
	watcher.StartAsync()
	return watcher, nil
}
