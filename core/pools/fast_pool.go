package pools

import "sync"

// FastPool is a zero-overhead object pool without statistics tracking,
// for hot paths that reuse a single struct type (e.g. scheduler jobs)
// where BufferPool's tiered-size bookkeeping would be wasted work.
type FastPool struct {
	pool sync.Pool
}

// NewFastPool creates a fast pool without any overhead
func NewFastPool(newFunc func() any) *FastPool {
	return &FastPool{
		pool: sync.Pool{
			New: newFunc,
		},
	}
}

// Get acquires an object from the pool
func (fp *FastPool) Get() any {
	return fp.pool.Get()
}

// Put returns an object to the pool
func (fp *FastPool) Put(obj any) {
	if obj != nil {
		fp.pool.Put(obj)
	}
}
