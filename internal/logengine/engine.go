package logengine

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"

	"github.com/kvsd/kvs/internal/cmap"
	"github.com/kvsd/kvs/internal/engine"
	"github.com/kvsd/kvs/internal/kverrors"
	"github.com/kvsd/kvs/internal/protocol"
)

// LogFileName is the single append-only log file inside a store
// directory.
const LogFileName = "log.json"

// BackupFileName is the sibling file compaction rewrites into before
// renaming it over LogFileName.
const BackupFileName = "log.backup.json"

// DefaultCompactionThreshold is the compaction counter value that
// triggers a compaction. The counter restarts at 1 after each
// compaction, so one runs every threshold-1 successful mutations.
const DefaultCompactionThreshold = 10000

// DefaultShardCount is the default index shard count.
const DefaultShardCount = cmap.DefaultShardCount

// Config configures a log engine store.
type Config struct {
	// Dir is the store directory; created if absent.
	Dir string

	// CompactionThreshold is the compaction counter value that triggers
	// a compaction (see DefaultCompactionThreshold). Zero uses
	// DefaultCompactionThreshold.
	CompactionThreshold int

	// ShardCount is the number of index shards. Zero uses
	// DefaultShardCount; must be a power of two.
	ShardCount int

	// Logger receives structured open/compaction/GC log lines. Nil
	// uses slog.Default().
	Logger *slog.Logger

	// Metrics, if non-nil, receives operation counters.
	Metrics *Metrics
}

// core is the state shared by every Clone of an engine handle: the
// index, the log file, and the compaction counter. Exactly one core
// exists per open store; Handle.Clone shares the pointer, never
// copies it.
type core struct {
	dir string

	index *cmap.Map[int64]

	// appendMu guards the file append plus the matching index update
	// as one atomic unit under Lock, and the index lookup plus file
	// read as one atomic unit under RLock — so compact, which also
	// takes Lock, can never run between a Set/Remove's append and its
	// index update, or between a Get's index lookup and its file
	// read. Holding the lock across both halves (not just the I/O)
	// is what makes the offsets each Set/Remove writes into the
	// index, and each Get reads out of it, always valid against
	// whichever file is currently open. Splitting this from the
	// per-shard index locks still keeps all log mutations in a single
	// total write order, since every mutation passes through it.
	appendMu sync.RWMutex
	file     *os.File
	fileSize int64

	// segHash is an incremental digest of the current log file's
	// bytes, updated as records are appended and rebuilt whenever
	// compaction rewrites the file. It backs Stats' integrity check,
	// not any security property.
	segHash hash.Hash

	compactionThreshold atomic.Int32
	compactionCount     atomic.Int32

	refs atomic.Int32

	logger  *slog.Logger
	metrics *Metrics
}

// Handle is a cheaply cloneable reference to a shared log engine
// store. It implements engine.Engine.
type Handle struct {
	c *core
}

// Open opens (or creates) a log engine store rooted at cfg.Dir. It
// replays the existing log into memory, then immediately compacts —
// bounding startup state and verifying the directory is writable.
func Open(cfg Config) (*Handle, error) {
	if cfg.Dir == "" {
		return nil, kverrors.New(kverrors.StringError, "logengine: dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	threshold := cfg.CompactionThreshold
	if threshold <= 0 {
		threshold = DefaultCompactionThreshold
	}

	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, kverrors.IOErr("logengine: create store dir", err)
	}

	path := filepath.Join(cfg.Dir, LogFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, kverrors.IOErr("logengine: open log file", err)
	}

	c := &core{
		dir:     cfg.Dir,
		index:   cmap.NewWithShards[int64](cfg.ShardCount),
		file:    f,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	c.compactionThreshold.Store(int32(threshold))
	c.refs.Store(1)

	if err := c.replay(); err != nil {
		f.Close()
		return nil, err
	}
	if err := c.rebuildSegHash(); err != nil {
		f.Close()
		return nil, err
	}

	h := &Handle{c: c}
	if err := h.compact(); err != nil {
		f.Close()
		return nil, err
	}

	c.logger.Info("logengine store opened", "dir", cfg.Dir, "keys", c.index.Count())
	return h, nil
}

// replay rebuilds the index by scanning the log from offset 0. A
// Set{K,·} sets index[K] to the record's start offset; a Rm{K}
// removes K from the index — tombstones are not kept in memory,
// absence suffices.
func (c *core) replay() error {
	stat, err := c.file.Stat()
	if err != nil {
		return kverrors.IOErr("logengine: stat log file", err)
	}
	size := stat.Size()
	c.fileSize = size

	return scanLog(c.file, size, func(off int64, cmd protocol.Command) error {
		switch cmd.Op {
		case protocol.OpSet:
			c.index.Set(cmd.Key, off)
		case protocol.OpRm:
			c.index.Delete(cmd.Key)
		default:
			return kverrors.Sered("logengine: log contains a non-Set/Rm record", nil)
		}
		return nil
	})
}

// rebuildSegHash recomputes segHash from the current file contents.
// Called once at Open and again after compaction rewrites the file;
// in between, appendAt folds each new frame in incrementally instead
// of rehashing the whole segment.
func (c *core) rebuildSegHash() error {
	h, err := blake2b.New256(nil)
	if err != nil {
		return kverrors.Sered("logengine: init segment hash", err)
	}
	if _, err := io.Copy(h, io.NewSectionReader(c.file, 0, c.fileSize)); err != nil {
		return kverrors.IOErr("logengine: hash log segment", err)
	}
	c.segHash = h
	return nil
}

// Stats reports a point-in-time snapshot of the store.
type Stats struct {
	Keys            int
	LogSizeBytes    int64
	SegmentChecksum string
}

// Stats returns the current key count, log size, and a blake2b digest
// of the log segment's bytes — an integrity aid for operators
// comparing store state across backups, not a security property.
func (h *Handle) Stats() Stats {
	c := h.c
	c.appendMu.RLock()
	defer c.appendMu.RUnlock()
	return Stats{
		Keys:            c.index.Count(),
		LogSizeBytes:    c.fileSize,
		SegmentChecksum: hex.EncodeToString(c.segHash.Sum(nil)),
	}
}

// Clone returns another handle to the same underlying store.
func (h *Handle) Clone() engine.Engine {
	h.c.refs.Add(1)
	return &Handle{c: h.c}
}

var _ engine.Engine = (*Handle)(nil)

// Set persists key=value and makes it immediately visible to Get. The
// append and the index update happen under one held lock, so a
// concurrent compact can never observe the record in the log without
// the index pointing at it, or vice versa.
func (h *Handle) Set(key, value string) error {
	c := h.c
	frame, err := encodeRecord(protocol.NewSet(key, value))
	if err != nil {
		return err
	}

	c.appendMu.Lock()
	off, err := c.appendAt(frame)
	if err != nil {
		c.appendMu.Unlock()
		return err
	}
	c.index.Set(key, off)
	c.appendMu.Unlock()

	if c.metrics != nil {
		c.metrics.Sets.Inc()
	}
	return h.maybeCompact()
}

// Get returns the current value for key, if any. The index lookup and
// the file read happen under one held lock, so a compact that renames
// the log out from under us can't land between them and leave off
// pointing at the wrong file.
func (h *Handle) Get(key string) (string, bool, error) {
	c := h.c

	c.appendMu.RLock()
	off, ok := c.index.Get(key)
	if !ok {
		c.appendMu.RUnlock()
		if c.metrics != nil {
			c.metrics.Gets.Inc()
		}
		return "", false, nil
	}
	cmd, err := readRecordAt(c.file, off)
	c.appendMu.RUnlock()
	if err != nil {
		return "", false, err
	}
	if cmd.Op != protocol.OpSet {
		return "", false, kverrors.New(kverrors.UnexpectedCommandType,
			fmt.Sprintf("logengine: index points at a %s record, not Set", cmd.Op))
	}

	if c.metrics != nil {
		c.metrics.Gets.Inc()
	}
	return cmd.Value, true, nil
}

// Remove deletes key. It fails with a KeyNotFound-kind error if key
// was already absent. The existence check, append, and index delete
// all happen under one held lock for the same reason as Set.
func (h *Handle) Remove(key string) error {
	c := h.c

	c.appendMu.Lock()
	if _, ok := c.index.Get(key); !ok {
		c.appendMu.Unlock()
		return kverrors.ErrKeyNotFound
	}
	frame, err := encodeRecord(protocol.NewRm(key))
	if err != nil {
		c.appendMu.Unlock()
		return err
	}
	if _, err := c.appendAt(frame); err != nil {
		c.appendMu.Unlock()
		return err
	}
	c.index.Delete(key)
	c.appendMu.Unlock()

	if c.metrics != nil {
		c.metrics.Removes.Inc()
	}
	return h.maybeCompact()
}

// appendAt writes frame at the current end of the log and folds it
// into segHash. The caller must already hold appendMu.Lock.
func (c *core) appendAt(frame []byte) (int64, error) {
	off := c.fileSize
	n, err := c.file.WriteAt(frame, off)
	if err != nil {
		return 0, kverrors.IOErr("logengine: append record", err)
	}
	c.fileSize += int64(n)
	c.segHash.Write(frame)
	return off, nil
}

// maybeCompact bumps the compaction counter and compacts once it
// reaches the configured threshold, then resets the counter to 1.
func (h *Handle) maybeCompact() error {
	c := h.c
	if c.compactionCount.Add(1) < c.compactionThreshold.Load() {
		return nil
	}
	return h.compact()
}

// SetCompactionThreshold updates the number of mutations between
// compactions for a running store. Takes effect on the next call that
// would otherwise trip the old threshold; n <= 0 is ignored.
func (h *Handle) SetCompactionThreshold(n int) {
	if n <= 0 {
		return
	}
	h.c.compactionThreshold.Store(int32(n))
}

// compact rewrites the log to hold exactly one Set per live key and
// no Rm records, then swaps it in with a rename. It holds the append
// lock and every index shard lock for its duration: concurrent
// readers/writers block until it completes, which is acceptable
// because compaction is rare relative to individual operations.
func (h *Handle) compact() error {
	c := h.c

	c.appendMu.Lock()
	defer c.appendMu.Unlock()

	unlockShards := c.index.LockAll()
	defer unlockShards()

	backupPath := filepath.Join(c.dir, BackupFileName)
	backup, err := os.OpenFile(backupPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return kverrors.IOErr("logengine: create compaction backup", err)
	}

	type rebuilt struct {
		key string
		off int64
	}
	var fresh []rebuilt
	var writeErr error
	var backupSize int64

	c.index.EachLocked(func(key string, off int64) {
		if writeErr != nil {
			return
		}
		cmd, err := readRecordAt(c.file, off)
		if err != nil {
			writeErr = err
			return
		}
		setCmd := protocol.NewSet(key, cmd.Value)
		frame, err := encodeRecord(setCmd)
		if err != nil {
			writeErr = err
			return
		}
		n, err := backup.WriteAt(frame, backupSize)
		if err != nil {
			writeErr = kverrors.IOErr("logengine: write compaction backup", err)
			return
		}
		fresh = append(fresh, rebuilt{key: key, off: backupSize})
		backupSize += int64(n)
	})
	if writeErr != nil {
		backup.Close()
		os.Remove(backupPath)
		return writeErr
	}

	if err := backup.Sync(); err != nil {
		backup.Close()
		os.Remove(backupPath)
		return kverrors.IOErr("logengine: sync compaction backup", err)
	}
	if err := backup.Close(); err != nil {
		os.Remove(backupPath)
		return kverrors.IOErr("logengine: close compaction backup", err)
	}

	if err := c.file.Close(); err != nil {
		return kverrors.IOErr("logengine: close old log before rename", err)
	}

	logPath := filepath.Join(c.dir, LogFileName)
	if err := os.Rename(backupPath, logPath); err != nil {
		return kverrors.IOErr("logengine: rename compaction backup over log", err)
	}

	newFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return kverrors.IOErr("logengine: reopen compacted log", err)
	}
	c.file = newFile
	c.fileSize = backupSize
	if err := c.rebuildSegHash(); err != nil {
		return err
	}

	// Every shard lock is still held, so the rebuilt entries are grouped
	// by shard and swapped in with Reset rather than Set.
	rebuiltShards := make([]map[string]int64, c.index.ShardCount())
	for i := range rebuiltShards {
		rebuiltShards[i] = map[string]int64{}
	}
	for _, r := range fresh {
		rebuiltShards[c.index.ShardIndex(r.key)][r.key] = r.off
	}
	for i, items := range rebuiltShards {
		c.index.Reset(i, items)
	}

	c.compactionCount.Store(1)

	if c.metrics != nil {
		c.metrics.Compactions.Inc()
		c.metrics.LogSizeBytes.Set(float64(backupSize))
		c.metrics.IndexKeys.Set(float64(len(fresh)))
	}
	c.logger.Info("logengine compaction complete", "dir", c.dir, "live_keys", len(fresh))

	return nil
}

// Close releases this handle. The underlying log file is closed only
// when the last outstanding handle (from Open or Clone) is closed.
func (h *Handle) Close() error {
	c := h.c
	if c.refs.Add(-1) > 0 {
		return nil
	}

	c.appendMu.Lock()
	defer c.appendMu.Unlock()
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	if err != nil && err != io.ErrClosedPipe {
		return kverrors.IOErr("logengine: close log file", err)
	}
	c.logger.Info("logengine store closed", "dir", c.dir)
	return nil
}
