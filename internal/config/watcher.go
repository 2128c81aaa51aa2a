package config

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the config file for changes and reloads the subset
// of settings that are safe to change on a running server: log level,
// compaction threshold, and rate limit. storage.engine and
// storage.data_dir are pinned at startup by the engine-selection
// handshake and are never reloaded here even if the file changes them.
type Watcher struct {
	watcher  *fsnotify.Watcher
	loader   *Loader
	mu       sync.RWMutex
	current  *ServerConfig
	onChange []func(*ServerConfig)
	done     chan struct{}
	logger   *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the watcher's logger. Defaults to slog.Default().
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher builds a Watcher over the file loader loads from.
// initial is the config already resolved by loader.Load().
func NewWatcher(loader *Loader, initial *ServerConfig, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher: fw,
		loader:  loader,
		current: initial,
		done:    make(chan struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch starts watching path's directory, since editors typically
// replace a file rather than writing it in place.
func (w *Watcher) Watch(path string) error {
	dir := filepath.Dir(path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.logger.Debug("config watcher watching directory", "dir", dir)
	return nil
}

// OnChange registers a callback invoked with the new config after a
// hot-reloadable field changes.
func (w *Watcher) OnChange(fn func(*ServerConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Start blocks, reloading and diffing on every write/create event,
// until Stop is called.
func (w *Watcher) Start() {
	w.logger.Info("config watcher started")
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// StartAsync runs Start in a goroutine.
func (w *Watcher) StartAsync() { go w.Start() }

// Stop halts the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) reload() {
	fresh, err := w.loader.Load()
	if err != nil {
		w.logger.Error("config reload failed, keeping previous config", "error", err)
		return
	}

	w.mu.Lock()
	prev := w.current
	// Pinned fields carry over from the running config regardless of
	// what the file now says — only the handshake may change them.
	fresh.Storage.Engine = prev.Storage.Engine
	fresh.Storage.DataDir = prev.Storage.DataDir
	w.current = fresh
	callbacks := append([]func(*ServerConfig){}, w.onChange...)
	w.mu.Unlock()

	if fresh.Log.Level == prev.Log.Level &&
		fresh.Storage.CompactionThreshold == prev.Storage.CompactionThreshold &&
		fresh.Server.RateLimit == prev.Server.RateLimit {
		return
	}

	w.logger.Info("config reloaded",
		"log_level", fresh.Log.Level,
		"compaction_threshold", fresh.Storage.CompactionThreshold,
		"rate_limit", fresh.Server.RateLimit)
	for _, cb := range callbacks {
		cb(fresh)
	}
}
