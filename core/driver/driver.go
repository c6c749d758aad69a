// Package driver defines the connection transport abstraction that the
// connection lifecycle engine (core/pool) reads and writes through. The
// original exposed drivers as an opaque void* plus a fixed C callback
// table; Go expresses the same capability set as an interface (Design
// Note: "opaque void* driver -> driver.Driver interface"), letting the
// core stay transport-agnostic while TCPDriver (net.Listener, the default)
// and H2CDriver (wraps golang.org/x/net/http2/h2c) both satisfy it.
package driver

import "context"

// Driver is a connection transport. Implementations must be safe for use
// from a single goroutine at a time — the pool worker that owns a
// connection is the only caller.
type Driver interface {
	// Init prepares the driver to serve accepted connections (e.g.
	// allocating per-listener state). It is called once, before Accept.
	Init(ctx context.Context) error

	// Accept blocks until a new connection arrives and returns a Conn
	// bound to it.
	Accept(ctx context.Context) (Conn, error)

	// Close shuts down the listening side of the driver. In-flight Conns
	// are unaffected.
	Close() error

	// Name identifies the driver for logging and metrics labels (e.g.
	// "tcp", "h2c").
	Name() string
}

// Conn is one accepted connection. Read/Write/Close mirror net.Conn;
// Detach, Sockfd, Peer*, Host/Port/Location, SendFd and SendFile are the
// capabilities the original exposed through its driver callback table.
type Conn interface {
	Read(b []byte) (n int, err error)
	Write(b []byte) (n int, err error)
	Close() error

	// Detach hands the underlying descriptor to the caller (e.g. the
	// keep-alive waiter) and stops the Conn from managing its lifecycle;
	// a detached Conn must not be used again.
	Detach() (fd int, err error)

	// Sockfd returns the raw file descriptor without detaching it, for
	// registration with a poller.
	Sockfd() int

	// Peer returns the remote address.
	Peer() string
	// PeerPort returns the remote port.
	PeerPort() int

	// Host, Port, and Location describe the local listening endpoint
	// (Location is the "scheme://host:port" form used to build
	// self-referential redirects).
	Host() string
	Port() int
	Location() string

	// SendFd transfers an open file descriptor to another process over
	// this connection's underlying socket (used for graceful restart
	// handoff); drivers that can't support fd-passing return
	// ErrNotSupported.
	SendFd(fd int) error

	// SendFile writes count bytes of the file at path starting at offset
	// directly to the connection, using a zero-copy transfer where the
	// platform supports it.
	SendFile(path string, offset int64, count int) (written int, err error)
}

// ErrNotSupported is returned by capability methods a driver cannot
// implement on its transport (e.g. SendFd over h2c).
type notSupportedError string

func (e notSupportedError) Error() string { return string(e) }

// ErrNotSupported indicates the called capability has no meaning for this
// driver.
const ErrNotSupported = notSupportedError("driver: capability not supported")
