package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kvsd/kvs/internal/kverrors"
	"github.com/kvsd/kvs/internal/logengine"
	"github.com/kvsd/kvs/internal/naivepool"
	"github.com/kvsd/kvs/internal/server"
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
	addr = ln.Addr().String()
	ln.Close()

	s := server.New(server.Config{Engine: eng, Pool: p, Addr: addr})
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ListenAndServe()
	}()

	// Give the listener a moment to bind before the first dial.
	for i := 0; i < 100; i++ {
		if conn, err := net.DialTimeout("tcp", addr, 10*time.Millisecond); err == nil {
			conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return addr, func() {
		s.Shutdown(context.Background())
		<-done
		eng.Close()
		p.Close()
	}
}

func TestSetGetRm(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	c := New(addr)

	if err := c.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	value, found, err := c.Get("k")
	if err != nil || !found || value != "v" {
		t.Fatalf("Get = (%q, %v, %v), want (v, true, nil)", value, found, err)
	}

	_, found, err = c.Get("missing")
	if err != nil || found {
		t.Fatalf("Get missing = (_, %v, %v), want (_, false, nil)", found, err)
	}

	if err := c.Rm("k"); err != nil {
		t.Fatalf("Rm: %v", err)
	}

	err = c.Rm("k")
	if !kverrors.Is(err, kverrors.KeyNotFound) {
		t.Fatalf("Rm missing key err = %v, want KeyNotFound", err)
	}
}

func TestOverwrite(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	c := New(addr)

	if err := c.Set("k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set("k", "v2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, found, err := c.Get("k")
	if err != nil || !found || value != "v2" {
		t.Fatalf("Get = (%q, %v, %v), want (v2, true, nil)", value, found, err)
	}
}
