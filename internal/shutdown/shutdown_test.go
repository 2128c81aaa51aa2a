package shutdown

import (
	"context"
	"testing"
	"time"
)

func TestHooksRunInReverseOrder(t *testing.T) {
	h := NewHandler(time.Second)

	var order []int
	h.OnShutdown(func(ctx context.Context) error {
		order = append(order, 1)
		return nil
	})
	h.OnShutdown(func(ctx context.Context) error {
		order = append(order, 2)
		return nil
	})

	if err := h.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("order = %v, want [2 1]", order)
	}
}

func TestDoneClosesAfterRun(t *testing.T) {
	h := NewHandler(time.Second)
	h.Run()
	select {
	case <-h.Done():
	default:
		t.Fatal("Done channel not closed after Run")
	}
}

func TestRunReturnsLastError(t *testing.T) {
	h := NewHandler(time.Second)
	want := context.DeadlineExceeded
	h.OnShutdown(func(ctx context.Context) error { return nil })
	h.OnShutdown(func(ctx context.Context) error { return want })

	if err := h.Run(); err != want {
		t.Fatalf("Run() = %v, want %v", err, want)
	}
}
