// Package server implements the kvs-server TCP accept loop: one
// goroutine accepts connections and dispatches each to a pool.Pool,
// which runs a single request/response exchange against an
// engine.Engine. Optional server-wide rate limiting and a
// Prometheus /metrics endpoint are wired in alongside it.
package server
