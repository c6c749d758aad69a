// Package cls implements per-connection local storage: a set of typed slots
// a connection's handler pipeline can use to stash values for the lifetime
// of one request, with cleanup callbacks run when the connection is
// recycled. It is grounded on nsd/cls.c, but trades the fixed
// [NS_CONN_MAXCLS]void* array for a growable map keyed by an allocator
// counter (Design Note: "fixed CLS array -> growable map"), while keeping
// the cleanup retry-up-to-5-times loop and "only the owning goroutine
// touches it" invariant unchanged.
package cls

import "sync"

// Key identifies one CLS slot, returned by Alloc.
type Key int

type cleanupFunc func(value interface{})

var (
	registryMu sync.Mutex
	nextKey    Key = 1
	cleanups       = map[Key]cleanupFunc{}
)

// Alloc reserves the next CLS key and registers its cleanup callback,
// analogous to Ns_ClsAlloc. cleanup may be nil if the value needs no
// teardown.
func Alloc(cleanup func(value interface{})) Key {
	registryMu.Lock()
	defer registryMu.Unlock()
	k := nextKey
	nextKey++
	cleanups[k] = cleanup
	return k
}

// Storage is one connection's CLS slot set. A Storage value must not be
// shared across goroutines: only the goroutine serving the connection may
// call Set/Get/Cleanup on it, matching the original's per-thread contract.
type Storage struct {
	values map[Key]interface{}
}

// New returns an empty Storage ready for use by one connection.
func New() *Storage {
	return &Storage{values: make(map[Key]interface{})}
}

// Set stores value under key, overwriting any previous value without
// running its cleanup (matching Ns_ClsSet, which has no notion of
// replacing an existing value safely — callers that need that must clean
// up the old value themselves first).
func (s *Storage) Set(key Key, value interface{}) {
	s.values[key] = value
}

// Get returns the value stored under key, or nil if unset.
func (s *Storage) Get(key Key) interface{} {
	return s.values[key]
}

// Cleanup runs every slot's cleanup callback and clears the slot. Because a
// cleanup callback can itself set new CLS values (e.g. to chain teardown),
// the whole pass repeats whenever at least one cleanup ran, up to 5 times,
// exactly as NsClsCleanup does.
func (s *Storage) Cleanup() {
	tries := 0
	for {
		retry := false
		for key, value := range s.values {
			if value == nil {
				continue
			}
			registryMu.Lock()
			fn := cleanups[key]
			registryMu.Unlock()
			delete(s.values, key)
			if fn != nil {
				fn(value)
				retry = true
			}
		}
		tries++
		if !retry || tries >= 5 {
			return
		}
	}
}
