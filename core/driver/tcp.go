package driver

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
)

// TCPDriver is the default Driver: a plain TCP listener accepted with
// net.Listener, grounded on the teacher's engine accept loop but
// generalized from a single-event-loop epoll reader to the pool model's
// "each accepted Conn is handed to a worker goroutine" contract. It also
// optionally accepts a pre-bound listener (core/prebind) instead of
// calling net.Listen itself, so privileged ports can be bound before
// dropping privileges.
type TCPDriver struct {
	addr     string
	listener net.Listener
}

// NewTCPDriver returns a driver that will listen on addr when Init runs.
func NewTCPDriver(addr string) *TCPDriver {
	return &TCPDriver{addr: addr}
}

// NewTCPDriverFromListener wraps an already-bound listener (typically
// produced by core/prebind before privileges are dropped).
func NewTCPDriverFromListener(l net.Listener) *TCPDriver {
	return &TCPDriver{listener: l}
}

// Init binds the listener if one wasn't supplied at construction.
func (d *TCPDriver) Init(ctx context.Context) error {
	if d.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", d.addr)
	if err != nil {
		return errors.Wrapf(err, "driver: listen %s", d.addr)
	}
	d.listener = l
	return nil
}

// Accept blocks for the next connection.
func (d *TCPDriver) Accept(ctx context.Context) (Conn, error) {
	c, err := d.listener.Accept()
	if err != nil {
		return nil, errors.Wrap(err, "driver: accept")
	}
	tcp, ok := c.(*net.TCPConn)
	if !ok {
		return &tcpConn{Conn: c}, nil
	}
	return &tcpConn{Conn: tcp, tcp: tcp}, nil
}

// Close stops accepting new connections.
func (d *TCPDriver) Close() error {
	if d.listener == nil {
		return nil
	}
	return d.listener.Close()
}

// Name identifies this driver.
func (d *TCPDriver) Name() string { return "tcp" }

// tcpConn adapts a net.Conn to the driver.Conn capability set, exposing
// the raw descriptor for the keep-alive waiter's poller and for
// zero-copy sendfile.
type tcpConn struct {
	net.Conn
	tcp *net.TCPConn
}

func (c *tcpConn) rawFile() (*os.File, error) {
	if c.tcp == nil {
		return nil, ErrNotSupported
	}
	return c.tcp.File()
}

// Detach duplicates the underlying descriptor and returns it, after which
// the original net.Conn should no longer be used by the caller for I/O —
// exactly the handoff the keep-alive waiter performs when it takes a
// connection off a worker's hands.
func (c *tcpConn) Detach() (int, error) {
	f, err := c.rawFile()
	if err != nil {
		return 0, err
	}
	return int(f.Fd()), nil
}

func (c *tcpConn) Sockfd() int {
	if c.tcp == nil {
		return -1
	}
	raw, err := c.tcp.SyscallConn()
	if err != nil {
		return -1
	}
	fd := -1
	raw.Control(func(s uintptr) { fd = int(s) })
	return fd
}

func (c *tcpConn) Peer() string {
	host, _, _ := net.SplitHostPort(c.Conn.RemoteAddr().String())
	return host
}

func (c *tcpConn) PeerPort() int {
	_, portStr, _ := net.SplitHostPort(c.Conn.RemoteAddr().String())
	port, _ := strconv.Atoi(portStr)
	return port
}

func (c *tcpConn) Host() string {
	host, _, _ := net.SplitHostPort(c.Conn.LocalAddr().String())
	return host
}

func (c *tcpConn) Port() int {
	_, portStr, _ := net.SplitHostPort(c.Conn.LocalAddr().String())
	port, _ := strconv.Atoi(portStr)
	return port
}

func (c *tcpConn) Location() string {
	return fmt.Sprintf("http://%s", c.Conn.LocalAddr().String())
}

func (c *tcpConn) SendFd(fd int) error {
	f, err := c.rawFile()
	if err != nil {
		return err
	}
	defer f.Close()
	rights := syscall.UnixRights(fd)
	return syscall.Sendmsg(int(f.Fd()), nil, rights, nil, 0)
}

// SendFile writes count bytes of the file at path starting at offset
// directly to the socket using the sendfile(2) syscall, falling back to a
// copy through the Conn for conn types that expose no TCP descriptor.
func (c *tcpConn) SendFile(path string, offset int64, count int) (int, error) {
	connFile, err := c.rawFile()
	if err != nil {
		src, oerr := os.Open(path)
		if oerr != nil {
			return 0, oerr
		}
		defer src.Close()
		n, cerr := io.Copy(c.Conn, io.NewSectionReader(src, offset, int64(count)))
		return int(n), cerr
	}
	defer connFile.Close()

	src, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	written := 0
	off := offset
	connFd := int(connFile.Fd())
	srcFd := int(src.Fd())
	for written < count {
		n, err := syscall.Sendfile(connFd, srcFd, &off, count-written)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EINTR {
				continue
			}
			return written, err
		}
		if n == 0 {
			break
		}
		written += n
	}
	return written, nil
}
