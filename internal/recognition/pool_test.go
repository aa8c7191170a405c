package recognition

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	werrors "github.com/wuwabuilds/scan-worker/internal/errors"
	"github.com/wuwabuilds/scan-worker/internal/imaging"
	"github.com/wuwabuilds/scan-worker/internal/regions"
)

type fakeEngine struct {
	id         int
	delay      time.Duration
	active     *int32
	peak       *int32
	busy       int32
	closed     int32
	closedBusy int32 // Close calls made while a recognition was running
	text       string
	lastOpt    Options
	mu         sync.Mutex
}

func (f *fakeEngine) Recognize(ctx context.Context, image []byte, opts Options) (string, error) {
	if !atomic.CompareAndSwapInt32(&f.busy, 0, 1) {
		return "", errors.New("engine used concurrently")
	}
	defer atomic.StoreInt32(&f.busy, 0)

	if f.active != nil {
		cur := atomic.AddInt32(f.active, 1)
		defer atomic.AddInt32(f.active, -1)
		for {
			p := atomic.LoadInt32(f.peak)
			if cur <= p || atomic.CompareAndSwapInt32(f.peak, p, cur) {
				break
			}
		}
	}
	f.mu.Lock()
	f.lastOpt = opts
	f.mu.Unlock()
	time.Sleep(f.delay)
	return f.text, nil
}

func (f *fakeEngine) Close() error {
	if atomic.LoadInt32(&f.busy) == 1 {
		atomic.AddInt32(&f.closedBusy, 1)
	}
	atomic.AddInt32(&f.closed, 1)
	return nil
}

type fakeFactory struct {
	calls       int32
	failFor     int32 // the first failFor calls fail
	delay       time.Duration
	release     chan struct{} // when set, build waits for it
	engineDelay time.Duration
	engines     []*fakeEngine
	mu          sync.Mutex
	active      int32
	peak        int32
	text        string
}

func (f *fakeFactory) build(ctx context.Context) (Engine, error) {
	n := atomic.AddInt32(&f.calls, 1)
	time.Sleep(f.delay)
	if f.release != nil {
		<-f.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= f.failFor {
		return nil, errors.New("tessdata missing")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delay := f.engineDelay
	if delay == 0 {
		delay = 2 * time.Millisecond
	}
	e := &fakeEngine{
		id:     len(f.engines),
		delay:  delay,
		active: &f.active,
		peak:   &f.peak,
		text:   f.text,
	}
	f.engines = append(f.engines, e)
	return e, nil
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func newTestPool(size int, f *fakeFactory) *Pool {
	p := NewPool(size, f.build, nil)
	p.SetPreprocessing(imaging.Options{})
	return p
}

func TestPool_EnsureStartedOnce(t *testing.T) {
	f := &fakeFactory{delay: 10 * time.Millisecond}
	pool := newTestPool(3, f)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pool.EnsureStarted(context.Background()); err != nil {
				t.Errorf("EnsureStarted: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&f.calls); got != 3 {
		t.Errorf("factory calls: got %d, want 3 (one per slot)", got)
	}
	if err := pool.EnsureStarted(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&f.calls); got != 3 {
		t.Errorf("started pool re-initialized: %d calls", got)
	}
}

func TestPool_InitFailureIsRetryable(t *testing.T) {
	f := &fakeFactory{failFor: 1}
	pool := newTestPool(2, f)

	err := pool.EnsureStarted(context.Background())
	if err == nil {
		t.Fatal("expected init error")
	}
	if werrors.CodeOf(err) != werrors.ErrorEngineInitFailed {
		t.Errorf("error code: got %q, want %q", werrors.CodeOf(err), werrors.ErrorEngineInitFailed)
	}
	if !werrors.IsRetryable(err) {
		t.Error("engine init failure should be retryable")
	}

	// The engine that did start is released on failure.
	for _, e := range f.engines {
		if atomic.LoadInt32(&e.closed) != 1 {
			t.Errorf("engine %d not closed after failed start", e.id)
		}
	}

	rect := regions.Rect{Width: 10, Height: 10}
	if _, err := pool.Recognize(context.Background(), testImage(), rect, Options{}); err == nil {
		t.Error("Recognize should fail on an unstarted pool")
	}

	if err := pool.EnsureStarted(context.Background()); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	f := &fakeFactory{text: "Jiyan"}
	pool := newTestPool(3, f)
	if err := pool.EnsureStarted(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	img := testImage()
	rect := regions.Rect{Top: 0, Left: 0, Width: 32, Height: 16}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, err := pool.Recognize(context.Background(), img, rect, Options{})
			if err != nil {
				t.Errorf("Recognize: %v", err)
				return
			}
			if text != "Jiyan" {
				t.Errorf("text: got %q", text)
			}
		}()
	}
	wg.Wait()

	if peak := atomic.LoadInt32(&f.peak); peak > 3 {
		t.Errorf("peak concurrent recognitions %d exceeds pool size 3", peak)
	}
	if pool.Semaphore().Count() != 0 {
		t.Errorf("permits leaked: %d", pool.Semaphore().Count())
	}
}

func TestPool_PassesOptions(t *testing.T) {
	f := &fakeFactory{}
	pool := newTestPool(1, f)
	if err := pool.EnsureStarted(context.Background()); err != nil {
		t.Fatal(err)
	}

	opts := Options{Whitelist: "0123456789"}
	if _, err := pool.Recognize(context.Background(), testImage(), regions.Rect{Width: 8, Height: 8}, opts); err != nil {
		t.Fatal(err)
	}
	if f.engines[0].lastOpt != opts {
		t.Errorf("options: got %+v, want %+v", f.engines[0].lastOpt, opts)
	}
}

func TestPool_EmptyRect(t *testing.T) {
	f := &fakeFactory{}
	pool := newTestPool(1, f)
	_ = pool.EnsureStarted(context.Background())

	if _, err := pool.Recognize(context.Background(), testImage(), regions.Rect{Width: 0, Height: 5}, Options{}); err == nil {
		t.Error("expected error for empty rect")
	}
	if pool.Semaphore().Count() != 0 {
		t.Error("empty rect must not hold a permit")
	}
}

func TestPool_CloseReleasesEngines(t *testing.T) {
	f := &fakeFactory{}
	pool := newTestPool(3, f)
	if err := pool.EnsureStarted(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := pool.Close(); err != nil {
		t.Fatal(err)
	}
	for _, e := range f.engines {
		if atomic.LoadInt32(&e.closed) != 1 {
			t.Errorf("engine %d closed %d times, want 1", e.id, e.closed)
		}
	}

	if _, err := pool.Recognize(context.Background(), testImage(), regions.Rect{Width: 4, Height: 4}, Options{}); err == nil {
		t.Error("Recognize after Close should fail until restarted")
	}

	if err := pool.EnsureStarted(context.Background()); err != nil {
		t.Fatalf("restart after Close: %v", err)
	}
	if got := atomic.LoadInt32(&f.calls); got != 6 {
		t.Errorf("factory calls after restart: got %d, want 6", got)
	}
}

func TestPool_CloseWaitsForBusyEngine(t *testing.T) {
	f := &fakeFactory{engineDelay: 100 * time.Millisecond}
	pool := newTestPool(1, f)
	if err := pool.EnsureStarted(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := pool.Recognize(context.Background(), testImage(), regions.Rect{Width: 8, Height: 8}, Options{})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := pool.Close(); err != nil {
		t.Fatal(err)
	}
	e := f.engines[0]
	if atomic.LoadInt32(&e.closed) != 0 {
		t.Fatal("Close terminated an engine that was still recognizing")
	}

	if err := <-done; err != nil {
		t.Fatalf("running recognition failed: %v", err)
	}
	if got := atomic.LoadInt32(&e.closed); got != 1 {
		t.Errorf("engine closed %d times after release, want 1", got)
	}
	if got := atomic.LoadInt32(&e.closedBusy); got != 0 {
		t.Errorf("engine closed %d times while busy", got)
	}
	if pool.Semaphore().Count() != 0 {
		t.Errorf("permits leaked: %d", pool.Semaphore().Count())
	}
}

func TestPool_CloseDuringStartDiscardsEngines(t *testing.T) {
	f := &fakeFactory{release: make(chan struct{})}
	pool := newTestPool(2, f)

	started := make(chan error, 1)
	go func() { started <- pool.EnsureStarted(context.Background()) }()

	for atomic.LoadInt32(&f.calls) < 2 {
		time.Sleep(time.Millisecond)
	}
	if err := pool.Close(); err != nil {
		t.Fatal(err)
	}
	close(f.release)

	if err := <-started; err == nil {
		t.Error("a start overtaken by Close should report an error")
	}
	for _, e := range f.engines {
		if atomic.LoadInt32(&e.closed) != 1 {
			t.Errorf("engine %d from discarded start not closed", e.id)
		}
	}
	if _, err := pool.Recognize(context.Background(), testImage(), regions.Rect{Width: 4, Height: 4}, Options{}); err == nil {
		t.Error("pool came back to life after Close")
	}

	f.release = nil
	if err := pool.EnsureStarted(context.Background()); err != nil {
		t.Fatalf("restart after discarded start: %v", err)
	}
}

func TestPool_StartIgnoresCallerCancellation(t *testing.T) {
	f := &fakeFactory{}
	pool := newTestPool(2, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pool.EnsureStarted(ctx); err != nil {
		t.Fatalf("cancelled caller failed the shared start: %v", err)
	}
	defer pool.Close()
	if got := len(f.engines); got != 2 {
		t.Errorf("engines built: got %d, want 2", got)
	}
}
