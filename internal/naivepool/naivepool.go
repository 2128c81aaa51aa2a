// Package naivepool implements pool.Pool by spawning a fresh goroutine
// for every task — not actually a pool, but the simplest possible
// conforming implementation, useful as a baseline to compare against
// queuepool.
package naivepool

import "github.com/kvsd/kvs/internal/pool"

// Pool spawns one goroutine per task and ignores the requested worker
// count entirely.
type Pool struct{}

var _ pool.Pool = (*Pool)(nil)

// New returns a Pool. workers is accepted for interface compatibility
// with queuepool.New but has no effect.
func New(workers uint32) (pool.Pool, error) {
	return &Pool{}, nil
}

// Spawn runs task on a new goroutine.
func (p *Pool) Spawn(task func()) {
	go task()
}

// Close is a no-op: naivepool tracks no goroutines to wait on.
func (p *Pool) Close() error {
	return nil
}
