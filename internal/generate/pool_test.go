package generate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestSubmitQueueFull(t *testing.T) {
	p := NewPool(1, 2, slog.Default(), func(ctx context.Context, jobID string) {})

	// Pool is not started; the queue fills to capacity.
	if err := p.Submit("job-1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit("job-2"); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit("job-3"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if p.Queued() != 2 {
		t.Errorf("queued = %d, want 2", p.Queued())
	}
}

func TestPoolProcessesSubmittedJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{}, 4)

	p := NewPool(2, 8, slog.Default(), func(ctx context.Context, jobID string) {
		mu.Lock()
		seen[jobID] = true
		mu.Unlock()
		done <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go p.Start(ctx)

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := p.Submit(id); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 4 {
		t.Errorf("processed = %v", seen)
	}
}
