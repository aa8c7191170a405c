package recognition

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// Semaphore is a counting semaphore that hands permits to waiters in FIFO order.
//
// A caller is queued only when no permit is free; Release passes its permit
// directly to the oldest waiter, so count never exceeds max and a late
// arrival can never jump the queue.
type Semaphore struct {
	mu      sync.Mutex
	max     int
	count   int
	waiters list.List // of chan struct{}
}

// NewSemaphore creates a semaphore with max permits.
func NewSemaphore(max int) *Semaphore {
	if max < 1 {
		panic(fmt.Sprintf("recognition: semaphore max must be positive, got %d", max))
	}
	return &Semaphore{max: max}
}

// Acquire blocks until a permit is held or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.count < s.max && s.waiters.Len() == 0 {
		s.count++
		s.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	elem := s.waiters.PushBack(ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-ready:
			// Granted while cancelling; give the permit back.
			s.mu.Unlock()
			s.Release()
		default:
			s.waiters.Remove(elem)
			s.mu.Unlock()
		}
		return ctx.Err()
	}
}

// TryAcquire takes a permit without blocking and reports whether it succeeded.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count < s.max && s.waiters.Len() == 0 {
		s.count++
		return true
	}
	return false
}

// Release returns a permit. If anyone is waiting, the oldest waiter receives
// it and count is unchanged.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		panic("recognition: semaphore released more than acquired")
	}
	if front := s.waiters.Front(); front != nil {
		s.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	s.count--
}

// Count returns the number of permits currently held.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Waiting returns the number of queued callers.
func (s *Semaphore) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Len()
}

// Max returns the permit capacity.
func (s *Semaphore) Max() int {
	return s.max
}
