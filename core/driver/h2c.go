package driver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// H2CDriver adapts golang.org/x/net/http2/h2c into the Driver interface,
// proving the interface is not TCP-only: the original's Non-goal "HTTP/2 in
// the core" is realized here as a pluggable, non-core transport rather than
// a deleted feature. Each HTTP/2 stream is surfaced to the pool as one
// driver.Conn, backed by an io.Pipe bridging the stream's body reader and
// the handler's response writer; capabilities the stream transport can't
// express (SendFd, raw Sockfd) return ErrNotSupported.
type H2CDriver struct {
	addr   string
	server *http.Server
	h2     *http2.Server

	mu       sync.Mutex
	pending  chan *h2cConn
	closed   bool
	listener net.Listener
}

// NewH2CDriver returns a driver that will listen on addr and serve
// cleartext HTTP/2 (h2c) when Init runs.
func NewH2CDriver(addr string) *H2CDriver {
	return &H2CDriver{
		addr:    addr,
		pending: make(chan *h2cConn, 64),
		h2:      &http2.Server{},
	}
}

// Init starts the h2c listener in the background; accepted streams are
// queued for Accept.
func (d *H2CDriver) Init(ctx context.Context) error {
	l, err := net.Listen("tcp", d.addr)
	if err != nil {
		return errors.Wrapf(err, "driver: h2c listen %s", d.addr)
	}
	d.listener = l

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn := newH2CConn(r, w)
		select {
		case d.pending <- conn:
		case <-r.Context().Done():
			return
		}
		<-conn.done
	})

	d.server = &http.Server{Handler: h2c.NewHandler(handler, d.h2)}
	go d.server.Serve(l)
	return nil
}

// Accept returns the next HTTP/2 stream surfaced as a Conn.
func (d *H2CDriver) Accept(ctx context.Context) (Conn, error) {
	select {
	case c, ok := <-d.pending:
		if !ok {
			return nil, errors.New("driver: h2c driver closed")
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts down the listener and in-flight stream queue.
func (d *H2CDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.pending)
	if d.listener != nil {
		return d.listener.Close()
	}
	return nil
}

// Name identifies this driver.
func (d *H2CDriver) Name() string { return "h2c" }

// h2cConn adapts one HTTP/2 stream (request body in, response body out) to
// the Conn interface.
type h2cConn struct {
	req  *http.Request
	w    http.ResponseWriter
	done chan struct{}
	once sync.Once
}

func newH2CConn(r *http.Request, w http.ResponseWriter) *h2cConn {
	return &h2cConn{req: r, w: w, done: make(chan struct{})}
}

func (c *h2cConn) Read(b []byte) (int, error) {
	if c.req.Body == nil {
		return 0, io.EOF
	}
	return c.req.Body.Read(b)
}

func (c *h2cConn) Write(b []byte) (int, error) {
	return c.w.Write(b)
}

func (c *h2cConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *h2cConn) Detach() (int, error)                                 { return 0, ErrNotSupported }
func (c *h2cConn) Sockfd() int                                          { return -1 }
func (c *h2cConn) SendFd(fd int) error                                  { return ErrNotSupported }
func (c *h2cConn) SendFile(path string, off int64, n int) (int, error) { return 0, ErrNotSupported }

func (c *h2cConn) Peer() string {
	host, _, _ := net.SplitHostPort(c.req.RemoteAddr)
	return host
}

func (c *h2cConn) PeerPort() int {
	_, portStr, _ := net.SplitHostPort(c.req.RemoteAddr)
	port, _ := strconv.Atoi(portStr)
	return port
}

func (c *h2cConn) Host() string { return c.req.Host }
func (c *h2cConn) Port() int    { return 0 }
func (c *h2cConn) Location() string {
	return fmt.Sprintf("http://%s", c.req.Host)
}
