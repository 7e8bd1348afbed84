package middleware

import (
	"sync"
	"time"
)

// Semaphore provides bounded concurrency control per key (principal id).
// It backs the C5 per-principal concurrent-requests cap (§4.5.3b): the
// caller acquires before the handler executes and releases on every exit
// path (normal, error, cancelled). The limit is supplied per call, since
// it is the caller's tier concurrency cap and varies per principal.
type Semaphore struct {
	mu    sync.Mutex
	semas map[string]chan struct{}
}

func NewSemaphore() *Semaphore {
	return &Semaphore{semas: make(map[string]chan struct{})}
}

// Acquire attempts to acquire a slot for key (capacity limit) within
// timeout. The caller must call Release when done, on every exit path.
func (s *Semaphore) Acquire(key string, limit int, timeout time.Duration) bool {
	if limit <= 0 {
		limit = 1
	}
	s.mu.Lock()
	ch, ok := s.semas[key]
	if !ok {
		ch = make(chan struct{}, limit)
		s.semas[key] = ch
	}
	s.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Release releases a slot for key. Safe to call even if Acquire was never
// called for key (a no-op in that case).
func (s *Semaphore) Release(key string) {
	s.mu.Lock()
	ch, ok := s.semas[key]
	s.mu.Unlock()

	if ok {
		select {
		case <-ch:
		default:
		}
	}
}

// ActiveCount returns the number of active requests for key.
func (s *Semaphore) ActiveCount(key string) int {
	s.mu.Lock()
	ch, ok := s.semas[key]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return len(ch)
}
