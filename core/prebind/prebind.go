// Package prebind implements the pre-bound privileged-port registry:
// sockets opened before the process drops root privileges, looked up by
// address when a driver starts listening. Grounded on nsd/binder.c
// (NsInitBinder/NsPreBind/NsSockGetBound), replacing its Tcl hash table
// keyed by sockaddr_in with a map keyed by the Go "host:port" string.
package prebind

import (
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Registry holds sockets bound ahead of time and not yet claimed by a
// driver.
type Registry struct {
	mu   sync.Mutex
	bind map[string]net.Listener
}

// NewRegistry returns an empty registry, the Go equivalent of
// NsInitBinder.
func NewRegistry() *Registry {
	return &Registry{bind: make(map[string]net.Listener)}
}

// PreBind parses a comma-separated `[addr:]port` list (the pre-bind
// configuration surface) and binds each entry, the equivalent of
// NsPreBind's PreBind(args) pass over the -b argument.
func (r *Registry) PreBind(spec string) error {
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if err := r.bindOne(entry); err != nil {
			return errors.Wrapf(err, "prebind: %s", entry)
		}
	}
	return nil
}

func (r *Registry) bindOne(entry string) error {
	addr := entry
	if !strings.Contains(entry, ":") {
		if _, err := strconv.Atoi(entry); err != nil {
			return errors.Errorf("invalid port %q", entry)
		}
		addr = ":" + entry
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.bind[normalize(l.Addr().String())] = l
	r.mu.Unlock()
	return nil
}

// Take removes and returns the pre-bound listener for addr, the Go
// equivalent of NsSockGetBound. ok is false if nothing was pre-bound
// there.
func (r *Registry) Take(addr string) (l net.Listener, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalize(addr)
	l, ok = r.bind[key]
	if ok {
		delete(r.bind, key)
	}
	return l, ok
}

// CloseAll closes every listener that was never claimed, for clean
// shutdown when a configured pre-bind entry ends up unused.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, l := range r.bind {
		l.Close()
		delete(r.bind, k)
	}
}

func normalize(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, port)
}
