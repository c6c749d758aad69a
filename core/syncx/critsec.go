package syncx

import "sync"

// CriticalSection is a recursive lock: the owning goroutine may re-enter
// without deadlocking, matching cs.c's Ns_CsEnter/Ns_CsLeave which counts
// reentrant acquisitions by the same thread. Go has no portable way to
// identify "the calling goroutine" the way pthreads identifies a thread, so
// callers pass an explicit token (a goroutine-scoped value, e.g. a worker
// id) that stands in for thread identity.
type CriticalSection struct {
	mu    sync.Mutex
	cond  *CondVar
	owner interface{}
	depth int
}

// NewCriticalSection returns a ready-to-use recursive lock.
func NewCriticalSection() *CriticalSection {
	cs := &CriticalSection{}
	cs.cond = NewCondVar(&cs.mu)
	return cs
}

// Enter acquires the section for token. Re-entering with the same token
// nests rather than blocking; a different token blocks until Leave brings
// the depth to zero.
func (cs *CriticalSection) Enter(token interface{}) {
	cs.mu.Lock()
	for cs.depth > 0 && cs.owner != token {
		cs.cond.Wait()
	}
	cs.owner = token
	cs.depth++
	cs.mu.Unlock()
}

// Leave releases one level of nesting for token. It panics if token does
// not own the section, matching the original's assertion that only the
// owning thread may leave.
func (cs *CriticalSection) Leave(token interface{}) {
	cs.mu.Lock()
	if cs.depth == 0 || cs.owner != token {
		cs.mu.Unlock()
		panic("syncx: Leave called by non-owner")
	}
	cs.depth--
	if cs.depth == 0 {
		cs.owner = nil
		cs.mu.Unlock()
		cs.cond.Broadcast()
		return
	}
	cs.mu.Unlock()
}
