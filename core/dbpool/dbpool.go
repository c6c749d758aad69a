// Package dbpool implements a pooled database handle checkout/release
// layer (§4.4): a fixed number of handles per named pool, exclusive
// acquisition serialized behind a single waiting flag, staleness checks
// on idle time and handle age, and a Bounce operation that closes every
// idle handle and marks checked-out ones stale. It is grounded on nsd/dbinit.c's Pool/Handle design,
// adapted onto gorm.io/gorm connections (grounded on nabbar-golib's
// database/gorm package) instead of the original's driver vtable.
package dbpool

import (
	"time"

	"github.com/pkg/errors"

	"github.com/corehttpd/corehttpd/core/syncx"
)

// ErrTimeout is returned by Checkout when wait elapses before a handle
// becomes available, the Go analogue of NS_TIMEOUT.
var ErrTimeout = errors.New("dbpool: timed out waiting for handle")

// ErrPoolTooSmall is returned by CheckoutN without blocking when the pool
// has fewer handles total than requested, the Go analogue of dbinit.c's
// "failed to get N handles from a db pool of only M handles" rejection.
var ErrPoolTooSmall = errors.New("dbpool: pool has fewer handles than requested")

// ErrAlreadyOwned is returned when owner already holds one or more handles
// checked out from this pool, the Go analogue of dbinit.c's ngotTls check
// ("thread already owns N handles from pool"). A pool never lets the same
// owner hold two handles at once, even across separate Checkout calls.
var ErrAlreadyOwned = errors.New("dbpool: owner already holds a handle from this pool")

// Handle is one database connection managed by a Pool. Connected/Connect/
// Close mirror the original's lazy-connect Handle; MarkStale lets a Pool
// force disconnection on release without the caller knowing about
// connection internals.
type Handle interface {
	Connected() bool
	Connect() error
	Close() error
	MarkStale()
	IsMarkedStale() bool
}

// Opener constructs a fresh, not-yet-connected Handle for a pool (e.g.
// a GormHandle bound to one DSN).
type Opener func() Handle

type node struct {
	h        Handle
	next     *node
	opened   time.Time // tOpen: when Connect last succeeded
	accessed time.Time // tAccess: when the handle was last released
	owner    any       // checked-out owner identity, cleared on Release
}

// Config holds one pool's sizing and staleness knobs, matching the §6 DB
// pool configuration keys.
type Config struct {
	Connections int // total handles in the pool
	MaxIdle     time.Duration
	MaxOpen     time.Duration
}

// Pool is one named database handle pool: up to Connections handles,
// checked out exclusively (one acquiring goroutine at a time, matching
// the original's single `waiting` flag) and returned to a singly linked
// free list, connected handles pushed to the front and disconnected ones
// appended to the back so a caller is more likely to receive one already
// connected.
type Pool struct {
	name   string
	cfg    Config
	opener Opener

	lock     *syncx.NamedMutex
	waitCond *syncx.CondVar // serializes acquiring goroutines
	getCond  *syncx.CondVar // signaled when a handle becomes available
	waiting  bool
	nhandles int
	first    *node
	last     *node

	outstanding map[Handle]*node // checked-out handles, keyed by Handle
	owners      map[any]int      // owner identity -> count of handles currently held
}

// New returns a Pool with cfg.Connections handles, all initially
// disconnected, built via opener on first Connect.
func New(name string, cfg Config, opener Opener, registry *syncx.Registry) *Pool {
	if cfg.Connections <= 0 {
		cfg.Connections = 2
	}
	p := &Pool{
		name:        name,
		cfg:         cfg,
		opener:      opener,
		lock:        registry.New("dbpool:" + name),
		nhandles:    cfg.Connections,
		outstanding: make(map[Handle]*node),
		owners:      make(map[any]int),
	}
	p.waitCond = syncx.NewCondVar(p.lock)
	p.getCond = syncx.NewCondVar(p.lock)

	for i := 0; i < cfg.Connections; i++ {
		p.returnNode(&node{h: opener()})
	}
	return p
}

// Checkout returns one handle owned by owner, blocking until one is free
// or deadline passes. owner identifies the calling thread of control (a
// goroutine-local token, not necessarily a goroutine ID) and must be
// comparable; the same owner cannot hold two handles from one pool at
// once (ErrAlreadyOwned). Callers must Release every handle they Checkout.
// Checkout is CheckoutN with nwant=1, exactly as the original's single-
// handle getter is implemented in terms of its multi-handle one.
func (p *Pool) Checkout(owner any, deadline time.Time) (Handle, error) {
	hs, err := p.CheckoutN(owner, 1, deadline)
	if err != nil {
		return nil, err
	}
	return hs[0], nil
}

// CheckoutN returns exactly nwant handles owned by owner, all connected,
// or none at all: a deadline timeout, a failed Connect, or nwant
// exceeding the pool's total handle count releases every handle already
// popped before returning an error (all-or-nothing acquisition), matching
// Ns_DbPoolTimedGetMultipleHandles.
func (p *Pool) CheckoutN(owner any, nwant int, deadline time.Time) ([]Handle, error) {
	if nwant <= 0 {
		nwant = 1
	}

	p.lock.Lock()

	if nwant > p.nhandles {
		p.lock.Unlock()
		return nil, errors.Wrapf(ErrPoolTooSmall, "dbpool %s: want %d of %d handles", p.name, nwant, p.nhandles)
	}
	if p.owners[owner] > 0 {
		p.lock.Unlock()
		return nil, errors.Wrapf(ErrAlreadyOwned, "dbpool %s", p.name)
	}

	for p.waiting {
		if !p.waitCond.TimedWait(deadline) {
			p.lock.Unlock()
			return nil, ErrTimeout
		}
	}
	p.waiting = true

	nodes := make([]*node, 0, nwant)
	for len(nodes) < nwant {
		for p.first == nil {
			if !p.getCond.TimedWait(deadline) {
				for _, n := range nodes {
					p.returnNode(n)
				}
				p.waiting = false
				p.waitCond.Broadcast()
				p.lock.Unlock()
				return nil, ErrTimeout
			}
		}
		if p.first != nil {
			n := p.first
			p.first = n.next
			if p.last == n {
				p.last = nil
			}
			n.next = nil
			nodes = append(nodes, n)
		}
	}

	p.waiting = false
	p.waitCond.Broadcast()

	for _, n := range nodes {
		if p.isStale(n) {
			n.h.Close()
		}
	}
	var connectErr error
	for _, n := range nodes {
		if !n.h.Connected() {
			if err := n.h.Connect(); err != nil {
				connectErr = err
				break
			}
			n.opened = time.Now()
		}
	}
	if connectErr != nil {
		for _, n := range nodes {
			p.returnNode(n)
		}
		p.getCond.Broadcast()
		p.lock.Unlock()
		return nil, errors.Wrapf(connectErr, "dbpool %s: connect", p.name)
	}

	handles := make([]Handle, 0, len(nodes))
	for _, n := range nodes {
		n.owner = owner
		p.attach(n)
		handles = append(handles, n.h)
	}
	p.owners[owner] += len(nodes)
	p.lock.Unlock()
	return handles, nil
}

// attach records which node backs a checked-out Handle, since gorm
// handles don't carry pool bookkeeping fields the way the original's
// Handle struct embedded Pool/list pointers directly.
func (p *Pool) attach(n *node) {
	p.outstanding[n.h] = n
}

// Release returns h to its pool, signaling any goroutine waiting for a
// handle and freeing its owner to acquire from this pool again. A handle
// marked stale is closed instead of being reused.
func (p *Pool) Release(h Handle) {
	p.lock.Lock()
	n, ok := p.outstanding[h]
	if !ok {
		p.lock.Unlock()
		return
	}
	delete(p.outstanding, h)

	if owner := n.owner; owner != nil {
		p.owners[owner]--
		if p.owners[owner] <= 0 {
			delete(p.owners, owner)
		}
		n.owner = nil
	}

	if h.IsMarkedStale() || p.isStale(n) {
		h.Close()
	} else {
		n.accessed = time.Now()
	}
	p.returnNode(n)
	p.getCond.Broadcast()
	p.lock.Unlock()
}

// returnNode pushes a connected handle to the front of the free list and
// appends a disconnected one to the back, matching ReturnHandle exactly.
func (p *Pool) returnNode(n *node) {
	if p.first == nil {
		p.first, p.last = n, n
		n.next = nil
	} else if n.h.Connected() {
		n.next = p.first
		p.first = n
	} else {
		p.last.next = n
		n.next = nil
		p.last = n
	}
}

func (p *Pool) isStale(n *node) bool {
	if !n.h.Connected() {
		return false
	}
	now := time.Now()
	if p.cfg.MaxIdle > 0 && now.Sub(n.accessed) > p.cfg.MaxIdle && !n.accessed.IsZero() {
		return true
	}
	if p.cfg.MaxOpen > 0 && now.Sub(n.opened) > p.cfg.MaxOpen {
		return true
	}
	return n.h.IsMarkedStale()
}

// Bounce force-closes every idle handle in the pool; outstanding
// (checked-out) handles are marked stale so Release closes them instead
// of returning them to the free list, matching Ns_DbBouncePool.
func (p *Pool) Bounce() {
	p.lock.Lock()
	n := p.first
	p.first, p.last = nil, nil
	for n != nil {
		nxt := n.next
		n.h.Close()
		n.next = nil
		p.returnNode(n)
		n = nxt
	}
	for _, n := range p.outstanding {
		n.h.MarkStale()
	}
	p.lock.Unlock()
}

// Name returns the pool's registry name.
func (p *Pool) Name() string { return p.name }

// sweep closes every free, connected handle that has gone stale, the Go
// analogue of CheckPool's periodic idle-connection trim. Outstanding
// handles are left alone; staleness is re-checked on their own Release.
func (p *Pool) sweep() {
	p.lock.Lock()
	defer p.lock.Unlock()

	var kept, stale []*node
	for n := p.first; n != nil; {
		nxt := n.next
		n.next = nil
		if p.isStale(n) {
			stale = append(stale, n)
		} else {
			kept = append(kept, n)
		}
		n = nxt
	}
	p.first, p.last = nil, nil
	for _, n := range kept {
		p.returnNode(n)
	}
	for _, n := range stale {
		n.h.Close()
		p.returnNode(n)
	}
}

// StartSweep runs sweep every interval until stop is closed, reclaiming
// idle connections that exceeded MaxIdle/MaxOpen without waiting for a
// caller to Checkout them.
func (p *Pool) StartSweep(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.sweep()
			case <-stop:
				return
			}
		}
	}()
}
