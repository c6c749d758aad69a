package syncx

import "sync"

// Semaphore is a counting semaphore with Wait (P) / Post (V), grounded on
// nsd/sema.c's Ns_SemaInit/Ns_SemaWait/Ns_SemaPost. Unlike a buffered
// channel, Post can raise the count by more than one in a single call,
// matching Ns_SemaPost's count argument.
type Semaphore struct {
	mu    sync.Mutex
	cond  *CondVar
	count int
}

// NewSemaphore returns a semaphore initialized to count.
func NewSemaphore(count int) *Semaphore {
	s := &Semaphore{count: count}
	s.cond = NewCondVar(&s.mu)
	return s
}

// Wait blocks until the count is positive, then decrements it by one.
func (s *Semaphore) Wait() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
	s.mu.Unlock()
}

// Post increments the count by n and wakes any waiters.
func (s *Semaphore) Post(n int) {
	s.mu.Lock()
	s.count += n
	s.mu.Unlock()
	s.cond.Broadcast()
}
