// Package queuepool implements pool.Pool as a fixed number of workers
// draining a single shared, unbounded queue. A worker whose task
// panics is replaced by a freshly spawned worker before it exits, so
// the live worker count stays constant for the life of the pool.
package queuepool

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kvsd/kvs/internal/pool"
)

// Metrics holds the Prometheus instruments a Pool reports through. A
// nil *Metrics disables instrumentation.
type Metrics struct {
	WorkersLive prometheus.Gauge
	TasksTotal  prometheus.Counter
	PanicsTotal prometheus.Counter
}

// NewMetrics builds a Metrics and registers it with registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		WorkersLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kvs",
			Subsystem: "pool",
			Name:      "workers_live",
			Help:      "Number of worker goroutines currently running.",
		}),
		TasksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvs",
			Subsystem: "pool",
			Name:      "tasks_total",
			Help:      "Total tasks executed by the pool.",
		}),
		PanicsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvs",
			Subsystem: "pool",
			Name:      "panics_total",
			Help:      "Total task panics recovered and replaced.",
		}),
	}
	registry.MustRegister(m.WorkersLive, m.TasksTotal, m.PanicsTotal)
	return m
}

// Pool is a fixed-size shared-queue worker pool.
type Pool struct {
	tasks   *unboundedQueue
	logger  *slog.Logger
	metrics *Metrics

	closeOnce sync.Once
}

var _ pool.Pool = (*Pool)(nil)

// Option configures a Pool at construction.
type Option func(*Pool)

// WithLogger sets the logger workers report lifecycle events to.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// WithMetrics wires a Metrics into the pool.
func WithMetrics(m *Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// New creates a Pool and immediately spawns workers live workers.
func New(workers uint32, opts ...Option) (pool.Pool, error) {
	p := &Pool{
		tasks:  newUnboundedQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := uint32(0); i < workers; i++ {
		p.startWorker()
	}
	return p, nil
}

// Spawn enqueues task and returns immediately. The queue has no
// capacity limit, so Spawn never blocks on worker availability — it
// only ever waits on the queue's internal mutex, held just long
// enough to append one entry.
func (p *Pool) Spawn(task func()) {
	p.tasks.Push(task)
}

// Close stops accepting new tasks and wakes every worker blocked
// waiting for one. Tasks already queued still run: workers drain the
// queue before exiting. Close returns without waiting for queued or
// in-flight tasks to finish.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.tasks.Close()
	})
	return nil
}

// startWorker launches a worker goroutine draining p.tasks. If the
// task it runs panics, the worker spawns its replacement before
// exiting, so the pool's live worker count never drops.
func (p *Pool) startWorker() {
	if p.metrics != nil {
		p.metrics.WorkersLive.Inc()
	}
	go p.runWorker()
}

func (p *Pool) runWorker() {
	defer func() {
		if r := recover(); r != nil {
			if p.metrics != nil {
				p.metrics.PanicsTotal.Inc()
				p.metrics.WorkersLive.Dec()
			}
			p.logger.Error("queuepool worker recovered from task panic, respawning", "panic", r)
			p.startWorker()
			return
		}
		if p.metrics != nil {
			p.metrics.WorkersLive.Dec()
		}
	}()

	for {
		task, ok := p.tasks.Pop()
		if !ok {
			break
		}
		task()
		if p.metrics != nil {
			p.metrics.TasksTotal.Inc()
		}
	}
	p.logger.Debug("queuepool worker exiting: queue closed and drained")
}

// unboundedQueue is a FIFO task queue with no capacity limit, backed
// by a mutex and condition variable rather than a channel — Go's
// channels are always capacity-bounded, even unbuffered ones, so
// there's no chan-based way to let producers run ahead of consumers
// without limit. Push never blocks; Pop blocks until a task is
// available or the queue is closed and drained.
type unboundedQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
}

func newUnboundedQueue() *unboundedQueue {
	q := &unboundedQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *unboundedQueue) Push(task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, task)
	q.cond.Signal()
}

func (q *unboundedQueue) Pop() (task func(), ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	task = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return task, true
}

func (q *unboundedQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
