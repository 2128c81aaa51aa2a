package logengine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instruments a store reports through
// while it is open. A nil *Metrics disables instrumentation entirely.
type Metrics struct {
	Sets         prometheus.Counter
	Gets         prometheus.Counter
	Removes      prometheus.Counter
	Compactions  prometheus.Counter
	LogSizeBytes prometheus.Gauge
	IndexKeys    prometheus.Gauge
}

// NewMetrics builds a Metrics and registers it with registry. Call
// once per store; pass the result to Config.Metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvs",
			Subsystem: "logengine",
			Name:      "sets_total",
			Help:      "Total Set operations completed.",
		}),
		Gets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvs",
			Subsystem: "logengine",
			Name:      "gets_total",
			Help:      "Total Get operations completed.",
		}),
		Removes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvs",
			Subsystem: "logengine",
			Name:      "removes_total",
			Help:      "Total Remove operations completed.",
		}),
		Compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvs",
			Subsystem: "logengine",
			Name:      "compactions_total",
			Help:      "Total compaction passes run.",
		}),
		LogSizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kvs",
			Subsystem: "logengine",
			Name:      "log_size_bytes",
			Help:      "Size of the log file after the last compaction.",
		}),
		IndexKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kvs",
			Subsystem: "logengine",
			Name:      "index_keys",
			Help:      "Number of live keys after the last compaction.",
		}),
	}

	registry.MustRegister(
		m.Sets,
		m.Gets,
		m.Removes,
		m.Compactions,
		m.LogSizeBytes,
		m.IndexKeys,
	)
	return m
}
