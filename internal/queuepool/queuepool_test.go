package queuepool

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

	var done sync.WaitGroup
	done.Add(1)
	var ran atomic.Bool
	p.Spawn(func() {
		ran.Store(true)
		done.Done()
	})

	waitOrTimeout(t, &done, time.Second)
	if !ran.Load() {
		t.Fatal("task did not run")
	}
}

func TestFIFOPerSubmitter(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	var mu sync.Mutex
	var order []int
	var done sync.WaitGroup
	done.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		p.Spawn(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			done.Done()
		})
	}

	waitOrTimeout(t, &done, time.Second)
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want sequential 0..4", order)
		}
	}
}

func TestWorkerSurvivesPanic(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	var done sync.WaitGroup
	done.Add(1)
	p.Spawn(func() {
		panic("boom")
	})

	// the panicking task's replacement worker should still pick up
	// and run this second task.
	var ran atomic.Bool
	p.Spawn(func() {
		ran.Store(true)
		done.Done()
	})

	waitOrTimeout(t, &done, 2*time.Second)
	if !ran.Load() {
		t.Fatal("pool did not recover after a task panic")
	}
}

func TestSpawnDoesNotBlockWhenWorkersAreBusy(t *testing.T) {
	p, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	block := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	for i := 0; i < 2; i++ {
		p.Spawn(func() {
			started.Done()
			<-block
		})
	}
	waitOrTimeout(t, &started, time.Second)

	// both workers are now parked on block; queuing far more tasks
	// than workers must still return immediately.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			p.Spawn(func() {})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Spawn blocked while all workers were busy")
	}

	close(block)
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	c := make(chan struct{})
	go func() {
		wg.Wait()
		close(c)
	}()
	select {
	case <-c:
	case <-time.After(d):
		t.Fatal("timed out waiting for tasks to complete")
	}
}
