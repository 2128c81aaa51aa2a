package server

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/kvsd/kvs/internal/engine"
	"github.com/kvsd/kvs/internal/kverrors"
	"github.com/kvsd/kvs/internal/pool"
	"github.com/kvsd/kvs/internal/protocol"
	"github.com/kvsd/kvs/internal/telemetry/metric"
)

// Metrics holds the Prometheus instruments a Server reports through.
type Metrics struct {
	ConnectionsTotal prometheus.Counter
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	RateLimited      prometheus.Counter
}

// NewMetrics builds a Metrics and registers it with registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvs", Subsystem: "server", Name: "connections_total",
			Help: "Total TCP connections accepted.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvs", Subsystem: "server", Name: "requests_total",
			Help: "Total requests handled, by command and outcome.",
		}, []string{"op", "ok"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kvs", Subsystem: "server", Name: "request_duration_seconds",
			Help:    "Time to handle one request end to end.",
			Buckets: prometheus.DefBuckets,
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvs", Subsystem: "server", Name: "rate_limited_total",
			Help: "Connections rejected by the rate limiter.",
		}),
	}
	registry.MustRegister(m.ConnectionsTotal, m.RequestsTotal, m.RequestDuration, m.RateLimited)
	return m
}

// Config configures a Server.
type Config struct {
	Addr    string
	Engine  engine.Engine
	Pool    pool.Pool
	Logger  *slog.Logger
	Metrics *Metrics

	// RateLimit is the max requests/sec accepted across all
	// connections; zero disables limiting. RateBurst bounds the
	// instantaneous burst size.
	RateLimit float64
	RateBurst int

	// MetricsAddr, if non-empty, serves Prometheus metrics on a
	// separate HTTP listener (e.g. ":9090").
	MetricsAddr string
	Registry    *prometheus.Registry
}

// Server accepts TCP connections and dispatches each one to Pool for
// a single request/response exchange against Engine.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	limiter  atomic.Pointer[rate.Limiter]
	listener net.Listener

	metricsServer *http.Server

	mu     sync.Mutex
	closed bool
}

// New builds a Server. It does not start listening.
func New(cfg Config) *Server {
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}

	s := &Server{cfg: cfg, logger: l}
	s.SetRateLimit(cfg.RateLimit, cfg.RateBurst)
	return s
}

// SetRateLimit replaces the server's rate limit live. limit <= 0
// disables limiting entirely. If a limiter is already running, its
// rate and burst are adjusted in place with SetLimit/SetBurst rather
// than swapped out, so in-flight Wait calls see the new values
// immediately instead of racing a pointer replacement.
func (s *Server) SetRateLimit(limit float64, burst int) {
	if limit <= 0 {
		s.limiter.Store(nil)
		return
	}
	if burst <= 0 {
		burst = int(limit)
		if burst < 1 {
			burst = 1
		}
	}
	if existing := s.limiter.Load(); existing != nil {
		existing.SetLimit(rate.Limit(limit))
		existing.SetBurst(burst)
		return
	}
	s.limiter.Store(rate.NewLimiter(rate.Limit(limit), burst))
}

// ListenAndServe binds cfg.Addr and accepts connections until
// Shutdown is called, returning nil in that case.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return kverrors.IOErr("server: listen", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	if s.cfg.MetricsAddr != "" && s.cfg.Registry != nil {
		s.startMetricsServer()
	}

	s.logger.Info("server listening", "addr", s.cfg.Addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.ConnectionsTotal.Inc()
		}
		s.cfg.Pool.Spawn(func() { s.handleConnection(conn) })
	}
}

func (s *Server) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metric.Handler(s.cfg.Registry))
	s.metricsServer = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// Shutdown closes the listener so Accept unblocks with net.ErrClosed,
// and stops the metrics HTTP server if one was started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	if s.metricsServer != nil {
		s.metricsServer.Shutdown(ctx)
	}
	return err
}

// handleConnection reads exactly one Command, applies it to the
// engine, and writes exactly one Response, per the one-shot
// request/response exchange a connection carries.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	connID := newConnID()
	log := s.logger.With("conn_id", connID)
	start := time.Now()

	if limiter := s.limiter.Load(); limiter != nil {
		if err := limiter.Wait(context.Background()); err != nil {
			log.Warn("rate limiter wait failed", "error", err)
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.RateLimited.Inc()
			}
			return
		}
	}

	cmd, err := protocol.ReadCommand(conn)
	if err != nil {
		log.Debug("read command failed", "error", err)
		return
	}
	log.Debug("received command", "command", cmd.String())

	resp := s.dispatch(cmd)

	if err := protocol.WriteResponse(conn, resp); err != nil {
		log.Warn("write response failed", "error", err)
	}

	if s.cfg.Metrics != nil {
		ok := "true"
		if !resp.OK {
			ok = "false"
		}
		s.cfg.Metrics.RequestsTotal.WithLabelValues(cmd.Op.String(), ok).Inc()
		s.cfg.Metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}
}

func (s *Server) dispatch(cmd protocol.Command) protocol.Response {
	switch cmd.Op {
	case protocol.OpSet:
		if err := s.cfg.Engine.Set(cmd.Key, cmd.Value); err != nil {
			return protocol.ErrResponse(err.Error())
		}
		return protocol.OKResponse("")

	case protocol.OpGet:
		value, found, err := s.cfg.Engine.Get(cmd.Key)
		if err != nil {
			return protocol.ErrResponse(err.Error())
		}
		if !found {
			return protocol.OKResponse(protocol.KeyNotFoundInfo)
		}
		return protocol.OKResponse(value)

	case protocol.OpRm:
		if err := s.cfg.Engine.Remove(cmd.Key); err != nil {
			return protocol.ErrResponse(err.Error())
		}
		return protocol.OKResponse("")

	default:
		return protocol.ErrResponse("unknown command")
	}
}

func newConnID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "unknown"
	}
	return id.String()
}
