// Package cmap provides a concurrency-sharded string-keyed map, used
// by the log engine's in-memory index to split a single index lock
// into a per-shard lock plus a separate append lock.
package cmap

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShardCount is the default number of shards (must be a power
// of two so shard selection is a mask, not a modulo).
const DefaultShardCount = 16

// Map is a concurrency-safe string-keyed map sharded by a murmur3 hash
// of the key, reducing contention versus one map + one mutex.
type Map[V any] struct {
	shards    []*shard[V]
	shardMask uint32
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// New creates a Map with the default shard count.
func New[V any]() *Map[V] {
	return NewWithShards[V](DefaultShardCount)
}

// NewWithShards creates a Map with the given shard count. A count that
// is not a positive power of two falls back to DefaultShardCount.
func NewWithShards[V any](shardCount int) *Map[V] {
	if shardCount <= 0 || shardCount&(shardCount-1) != 0 {
		shardCount = DefaultShardCount
	}
	m := &Map[V]{
		shards:    make([]*shard[V], shardCount),
		shardMask: uint32(shardCount - 1),
	}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shardFor(key string) *shard[V] {
	h := murmur3.Sum32([]byte(key))
	return m.shards[h&m.shardMask]
}

// Get retrieves the value stored for key.
func (m *Map[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Set stores value for key.
func (m *Map[V]) Set(key string, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

// Delete removes key, if present.
func (m *Map[V]) Delete(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Count returns the total number of entries across all shards.
func (m *Map[V]) Count() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Reset atomically replaces the contents of shard i with fresh, given
// a full rebuild (used by compaction, which holds every shard lock).
func (m *Map[V]) Reset(i int, items map[string]V) {
	m.shards[i].items = items
}

// ShardCount returns the number of shards.
func (m *Map[V]) ShardCount() int {
	return len(m.shards)
}

// LockAll locks every shard (in fixed index order, to avoid deadlock
// against concurrent LockAll callers) and returns an unlock function.
// Used by compaction, which must see a consistent snapshot of the
// whole index while it rewrites the log.
func (m *Map[V]) LockAll() (unlock func()) {
	for _, s := range m.shards {
		s.mu.Lock()
	}
	return func() {
		for i := len(m.shards) - 1; i >= 0; i-- {
			m.shards[i].mu.Unlock()
		}
	}
}

// EachLocked iterates all entries while every shard lock is held by
// the caller (see LockAll). fn must not call back into the Map.
func (m *Map[V]) EachLocked(fn func(key string, value V)) {
	for _, s := range m.shards {
		for k, v := range s.items {
			fn(k, v)
		}
	}
}

// ShardIndex exposes which shard key belongs to, so compaction can
// group rebuilt entries by shard before calling Reset.
func (m *Map[V]) ShardIndex(key string) int {
	h := murmur3.Sum32([]byte(key))
	return int(h & m.shardMask)
}
