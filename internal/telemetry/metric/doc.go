// Package metric provides the Prometheus registry and HTTP handler
// kvs-server exposes at /metrics. Individual subsystems (logengine,
// queuepool, server) own their own instruments and register them
// against the shared *prometheus.Registry built here.
package metric
