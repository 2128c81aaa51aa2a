package naivepool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSpawnRunsTask(t *testing.T) {
	p, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var ran atomic.Bool
	p.Spawn(func() {
		ran.Store(true)
		wg.Done()
	})

	c := make(chan struct{})
	go func() { wg.Wait(); close(c) }()
	select {
	case <-c:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for task")
	}
	if !ran.Load() {
		t.Fatal("task did not run")
	}
}

func TestConcurrentSpawns(t *testing.T) {
	p, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	var count atomic.Int64
	for i := 0; i < n; i++ {
		p.Spawn(func() {
			count.Add(1)
			wg.Done()
		})
	}

	c := make(chan struct{})
	go func() { wg.Wait(); close(c) }()
	select {
	case <-c:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks")
	}
	if count.Load() != n {
		t.Fatalf("count = %d, want %d", count.Load(), n)
	}
}
