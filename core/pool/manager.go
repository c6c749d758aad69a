package pool

import (
	"bufio"

	"github.com/pkg/errors"

	"github.com/corehttpd/corehttpd/core/driver"
	"github.com/corehttpd/corehttpd/core/router"
)

var errNoPool = errors.New("pool: no default pool registered")

// Manager owns the full set of named pools and performs pool selection for
// newly accepted connections: per §4.1, the routing lookup is
// urlspecific_get(server, method, url, poolid); if nothing matches, the
// default pool is used. The designated error pool receives only
// connections with no parseable request line; a connection that a pool
// tags overflow in QueueConn stays in that pool and is not rerouted.
type Manager struct {
	pools       map[string]*Pool
	routes      *router.Router[string]
	defaultPool string
	errorPool   string
}

// NewManager returns an empty Manager. defaultPool and errorPool name pools
// that must be registered with Register before Dispatch is called.
func NewManager(defaultPool, errorPool string) *Manager {
	return &Manager{
		pools:       make(map[string]*Pool),
		routes:      router.New[string](),
		defaultPool: defaultPool,
		errorPool:   errorPool,
	}
}

// Register adds a pool under its own name.
func (m *Manager) Register(p *Pool) {
	m.pools[p.Name()] = p
}

// Route associates a method+pattern with a pool name, using the same
// radix-tree matcher as per-pool request handlers.
func (m *Manager) Route(method, pattern, poolName string) {
	m.routes.Add(method, pattern, poolName)
}

// Pool returns a registered pool by name.
func (m *Manager) Pool(name string) (*Pool, bool) {
	p, ok := m.pools[name]
	return p, ok
}

// bufferedConn wraps a driver.Conn so the pool-selection peek at the
// request line doesn't lose already-buffered bytes when the connection is
// later queued to a worker.
type bufferedConn struct {
	driver.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) { return b.r.Read(p) }

// Dispatch peeks the request line of an accepted connection to select a
// pool, then queues it there. A connection that fails to produce a
// parseable request line at all is routed to the error pool, matching the
// original's OVERFLOW-forces-error-pool rule generalized to "can't route
// it, don't drop it silently".
func (m *Manager) Dispatch(c driver.Conn) error {
	br := bufio.NewReaderSize(c, 4096)
	br.Peek(1) // wait for the first bytes, then look only at what arrived
	peek, _ := br.Peek(br.Buffered())
	method, path := peekRequestLine(peek)

	bc := &bufferedConn{Conn: c, r: br}

	poolName, _, ok := m.routes.Find(method, path)
	if !ok {
		poolName = m.defaultPool
	}
	if method == "" {
		poolName = m.errorPool
	}

	p, ok := m.pools[poolName]
	if !ok {
		p, ok = m.pools[m.defaultPool]
		if !ok {
			return errNoPool
		}
	}
	return p.QueueConn(bc)
}

func peekRequestLine(data []byte) (method, path string) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			data = data[:i]
			break
		}
	}
	sp1 := indexByte(data, ' ')
	if sp1 < 0 {
		return "", ""
	}
	rest := data[sp1+1:]
	sp2 := indexByte(rest, ' ')
	if sp2 < 0 {
		return string(data[:sp1]), string(rest)
	}
	return string(data[:sp1]), string(rest[:sp2])
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
