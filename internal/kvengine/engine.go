package kvengine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/kvsd/kvs/internal/engine"
	"github.com/kvsd/kvs/internal/kverrors"
)

// StoreDirName is the directory name opened under a store root, fixed
// by the on-disk contract so an external tool probing a store
// directory can tell which engine produced it.
const StoreDirName = "sled.db"

// BadgerConfig configures the underlying Badger options.
type BadgerConfig struct {
	CacheSize               int64
	ValueLogFileSize        int64
	NumMemtables            int
	NumLevelZeroTables      int
	NumLevelZeroTablesStall int
	SyncWrites              bool
	DetectConflicts         bool
	GCInterval              time.Duration
	GCThreshold             float64
}

// DefaultBadgerConfig returns conservative defaults suitable for a
// single-node store.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		NumMemtables:            5,
		NumLevelZeroTables:      5,
		NumLevelZeroTablesStall: 10,
		SyncWrites:              true,
		DetectConflicts:         false,
		GCInterval:              10 * time.Minute,
		GCThreshold:             0.5,
	}
}

// Handle adapts an open Badger database to engine.Engine.
type Handle struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

var _ engine.Engine = (*Handle)(nil)

// Open opens (or creates) a Badger store at <dir>/StoreDirName.
func Open(dir string, cfg BadgerConfig, logger *slog.Logger) (*Handle, error) {
	if dir == "" {
		return nil, kverrors.New(kverrors.StringError, "kvengine: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	path := dir + "/" + StoreDirName
	opts := badger.DefaultOptions(path)
	opts.Logger = &badgerLogger{logger: logger}
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}
	if cfg.NumLevelZeroTables > 0 {
		opts.NumLevelZeroTables = cfg.NumLevelZeroTables
	}
	if cfg.NumLevelZeroTablesStall > 0 {
		opts.NumLevelZeroTablesStall = cfg.NumLevelZeroTablesStall
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.DetectConflicts = cfg.DetectConflicts

	db, err := badger.Open(opts)
	if err != nil {
		return nil, kverrors.IOErr("kvengine: open badger db", err)
	}

	if cfg.GCInterval <= 0 {
		cfg.GCInterval = DefaultBadgerConfig().GCInterval
	}
	if cfg.GCThreshold <= 0 {
		cfg.GCThreshold = DefaultBadgerConfig().GCThreshold
	}

	h := &Handle{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go h.gcLoop()

	logger.Info("kvengine store opened", "path", path)
	return h, nil
}

// Set stores value for key.
func (h *Handle) Set(key, value string) error {
	err := h.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return kverrors.IOErr("kvengine: set", err)
	}
	return nil
}

// Get returns the current value for key.
func (h *Handle) Get(key string) (string, bool, error) {
	var value []byte
	err := h.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", false, kverrors.IOErr("kvengine: get", err)
	}
	if value == nil {
		return "", false, nil
	}
	return string(value), true, nil
}

// Remove deletes key. It returns a KeyNotFound-kind error if key was
// already absent — Badger's Delete is silent on a missing key, so the
// presence check happens first under the same transaction.
func (h *Handle) Remove(key string) error {
	err := h.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return kverrors.ErrKeyNotFound
			}
			return err
		}
		return txn.Delete([]byte(key))
	})
	if err != nil {
		if kverrors.Is(err, kverrors.KeyNotFound) {
			return err
		}
		return kverrors.IOErr("kvengine: remove", err)
	}
	return nil
}

// Clone returns another handle backed by the same Badger database.
// Badger's *DB is already safe for concurrent use by many goroutines,
// so Clone shares the pointer directly.
func (h *Handle) Clone() engine.Engine {
	return &Handle{db: h.db, cfg: h.cfg, logger: h.logger, stopCh: h.stopCh, doneCh: h.doneCh}
}

// Close stops background GC and closes the database. Calling Close on
// a clone closes the shared database for every other clone too — the
// caller that owns the last reference is responsible for calling it.
func (h *Handle) Close() error {
	select {
	case <-h.stopCh:
	default:
		close(h.stopCh)
		<-h.doneCh
	}
	if err := h.db.Close(); err != nil {
		return kverrors.IOErr("kvengine: close", err)
	}
	return nil
}

// gcLoop periodically reclaims value-log space.
func (h *Handle) gcLoop() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				err := h.db.RunValueLogGC(h.cfg.GCThreshold)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						h.logger.Error("kvengine gc failed", "error", err)
					}
					break
				}
			}
		case <-h.stopCh:
			return
		}
	}
}

// badgerLogger adapts *slog.Logger to Badger's logging interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
