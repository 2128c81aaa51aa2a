package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "KVS_"

// Loader loads configuration from a YAML file layered under
// environment variables, on top of Default().
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix overrides DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile sets the YAML file to load, if any.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// NewLoader builds a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{k: koanf.New("."), envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves a ServerConfig: Default(), then the YAML file (if
// set), then environment variables, each layer overriding the last.
func (l *Loader) Load() (*ServerConfig, error) {
	cfg := Default()
	if err := l.k.Load(structProvider(cfg), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", l.filePath, err)
		}
	}

	envTransform := func(s string) string {
		s = strings.TrimPrefix(s, l.envPrefix)
		s = strings.ToLower(s)
		// Only the first "_" separates section from field, so
		// KVS_STORAGE_DATA_DIR maps to storage.data_dir.
		return strings.Replace(s, "_", ".", 1)
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	out := &ServerConfig{}
	if err := l.k.Unmarshal("", out); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return out, nil
}

// structProviderFn adapts an already-populated *ServerConfig into a
// koanf.Provider so Default() can seed the same layer stack a file or
// env source would join.
type structProviderFn struct {
	cfg *ServerConfig
}

func structProvider(cfg *ServerConfig) structProviderFn {
	return structProviderFn{cfg: cfg}
}

func (p structProviderFn) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("config: struct provider does not support ReadBytes")
}

func (p structProviderFn) Read() (map[string]any, error) {
	flat := map[string]any{
		"server.addr":                  p.cfg.Server.Addr,
		"server.rate_limit":            p.cfg.Server.RateLimit,
		"server.rate_burst":            p.cfg.Server.RateBurst,
		"server.shutdown_grace":        p.cfg.Server.ShutdownGrace,
		"server.metrics_addr":          p.cfg.Server.MetricsAddr,
		"storage.data_dir":             p.cfg.Storage.DataDir,
		"storage.engine":               p.cfg.Storage.Engine,
		"storage.compaction_threshold": p.cfg.Storage.CompactionThreshold,
		"pool.kind":                    p.cfg.Pool.Kind,
		"pool.workers":                 p.cfg.Pool.Workers,
		"log.level":                    p.cfg.Log.Level,
		"log.format":                   p.cfg.Log.Format,
	}
	// koanf merges a provider's map as given, so the dotted keys are
	// nested into per-section maps to match the file and env layers.
	nested := map[string]any{}
	for key, val := range flat {
		section, field, _ := strings.Cut(key, ".")
		m, ok := nested[section].(map[string]any)
		if !ok {
			m = map[string]any{}
			nested[section] = m
		}
		m[field] = val
	}
	return nested, nil
}
