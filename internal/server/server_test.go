package server

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/kvsd/kvs/internal/logengine"
	"github.com/kvsd/kvs/internal/naivepool"
	"github.com/kvsd/kvs/internal/protocol"
)

func startTestServer(t *testing.T) (addr string, shutdown func()) {
	t.Helper()

	eng, err := logengine.Open(logengine.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("logengine.Open: %v", err)
	}
	p, err := naivepool.New(0)
	if err != nil {
		t.Fatalf("naivepool.New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	s := New(Config{Engine: eng, Pool: p})
	s.listener = ln

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			p.Spawn(func() { s.handleConnection(conn) })
		}
	}()

	return ln.Addr().String(), func() {
		s.Shutdown(context.Background())
		eng.Close()
		p.Close()
	}
}

func roundTrip(t *testing.T, addr string, cmd protocol.Command) protocol.Response {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		t.Fatalf("encode command: %v", err)
	}
	var resp protocol.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestSetThenGet(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	resp := roundTrip(t, addr, protocol.NewSet("k", "v"))
	if !resp.OK {
		t.Fatalf("Set failed: %+v", resp)
	}

	resp = roundTrip(t, addr, protocol.NewGet("k"))
	if !resp.OK || resp.Info != "v" {
		t.Fatalf("Get = %+v, want OK with info=v", resp)
	}
}

func TestGetMissingKey(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	resp := roundTrip(t, addr, protocol.NewGet("missing"))
	if !resp.OK || resp.Info != protocol.KeyNotFoundInfo {
		t.Fatalf("Get missing = %+v, want OK with KeyNotFoundInfo", resp)
	}
}

func TestRemoveMissingKeyFails(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	resp := roundTrip(t, addr, protocol.NewRm("missing"))
	if resp.OK || resp.Info != "Key not found" {
		t.Fatalf("Rm missing = %+v, want failure with 'Key not found'", resp)
	}
}

func TestSetRateLimitAdjustsLiveLimiter(t *testing.T) {
	s := New(Config{RateLimit: 1, RateBurst: 1})
	if s.limiter.Load() == nil {
		t.Fatal("expected a limiter from RateLimit > 0 at construction")
	}

	s.SetRateLimit(1000, 1000)
	if burst := s.limiter.Load().Burst(); burst != 1000 {
		t.Fatalf("Burst = %d, want 1000 after SetRateLimit", burst)
	}

	s.SetRateLimit(0, 0)
	if s.limiter.Load() != nil {
		t.Fatal("expected SetRateLimit(0, 0) to disable limiting")
	}

	s.SetRateLimit(5, 5)
	if s.limiter.Load() == nil {
		t.Fatal("expected SetRateLimit to re-enable limiting from disabled")
	}
}

func TestRemoveExistingKey(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	roundTrip(t, addr, protocol.NewSet("k", "v"))
	resp := roundTrip(t, addr, protocol.NewRm("k"))
	if !resp.OK {
		t.Fatalf("Rm = %+v, want success", resp)
	}

	resp = roundTrip(t, addr, protocol.NewGet("k"))
	if !resp.OK || resp.Info != protocol.KeyNotFoundInfo {
		t.Fatalf("Get after Rm = %+v, want not found", resp)
	}
}
