package recognition

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSemaphore_AcquireRelease(t *testing.T) {
	sem := NewSemaphore(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := sem.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
	if sem.Count() != 2 {
		t.Errorf("Count: got %d, want 2", sem.Count())
	}
	if sem.TryAcquire() {
		t.Error("TryAcquire should fail when all permits are held")
	}

	sem.Release()
	sem.Release()
	if sem.Count() != 0 {
		t.Errorf("Count after release: got %d, want 0", sem.Count())
	}
}

func TestSemaphore_FIFO(t *testing.T) {
	sem := NewSemaphore(1)
	ctx := context.Background()
	if err := sem.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	const n = 5
	order := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := sem.Acquire(ctx); err != nil {
				t.Errorf("waiter %d: %v", id, err)
				return
			}
			order <- id
			sem.Release()
		}(i)
		// Enqueue strictly one after another.
		waitUntil(t, "waiter to queue", func() bool { return sem.Waiting() == i+1 })
	}

	sem.Release()
	wg.Wait()
	close(order)

	want := 0
	for got := range order {
		if got != want {
			t.Fatalf("waiter released out of order: got %d, want %d", got, want)
		}
		want++
	}
	if want != n {
		t.Fatalf("released %d waiters, want %d", want, n)
	}
	if sem.Count() != 0 || sem.Waiting() != 0 {
		t.Errorf("final state: count=%d waiting=%d", sem.Count(), sem.Waiting())
	}
}

func TestSemaphore_ReleaseHandsPermitToWaiter(t *testing.T) {
	sem := NewSemaphore(1)
	ctx := context.Background()
	_ = sem.Acquire(ctx)

	acquired := make(chan struct{})
	go func() {
		_ = sem.Acquire(ctx)
		close(acquired)
	}()
	waitUntil(t, "waiter to queue", func() bool { return sem.Waiting() == 1 })

	sem.Release()
	<-acquired
	if sem.Count() != 1 {
		t.Errorf("permit should move to the waiter: count=%d", sem.Count())
	}
	// A newcomer cannot take the handed-over permit.
	if sem.TryAcquire() {
		t.Error("TryAcquire must not succeed while the waiter holds the permit")
	}
	sem.Release()
}

func TestSemaphore_CancelledWaiter(t *testing.T) {
	sem := NewSemaphore(1)
	_ = sem.Acquire(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- sem.Acquire(ctx) }()
	waitUntil(t, "waiter to queue", func() bool { return sem.Waiting() == 1 })

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sem.Waiting() != 0 {
		t.Errorf("cancelled waiter still queued: %d", sem.Waiting())
	}
	if sem.Count() != 1 {
		t.Errorf("Count: got %d, want 1", sem.Count())
	}

	sem.Release()
	if sem.Count() != 0 {
		t.Errorf("Count after release: got %d, want 0", sem.Count())
	}
}

func TestSemaphore_CountNeverExceedsMax(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		workers int
	}{
		{"single permit", 1, 20},
		{"pool of three", 3, 50},
		{"more permits than workers", 8, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sem := NewSemaphore(tt.max)
			var active, peak int32
			var wg sync.WaitGroup
			for i := 0; i < tt.workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 10; j++ {
						if err := sem.Acquire(context.Background()); err != nil {
							t.Error(err)
							return
						}
						cur := atomic.AddInt32(&active, 1)
						for {
							p := atomic.LoadInt32(&peak)
							if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
								break
							}
						}
						if c := sem.Count(); c > tt.max || c < 0 {
							t.Errorf("count out of range: %d", c)
						}
						time.Sleep(50 * time.Microsecond)
						atomic.AddInt32(&active, -1)
						sem.Release()
					}
				}()
			}
			wg.Wait()

			if int(peak) > tt.max {
				t.Errorf("peak concurrency %d exceeds max %d", peak, tt.max)
			}
			if sem.Count() != 0 {
				t.Errorf("permits leaked: %d", sem.Count())
			}
		})
	}
}

func TestSemaphore_ReleaseWithoutAcquirePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on unbalanced Release")
		}
	}()
	NewSemaphore(1).Release()
}
