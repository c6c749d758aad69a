package keepalive

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/corehttpd/corehttpd/core/driver"
)

type recordingRequeuer struct {
	mu  sync.Mutex
	got []driver.Conn
	ch  chan driver.Conn
}

func newRecordingRequeuer() *recordingRequeuer {
	return &recordingRequeuer{ch: make(chan driver.Conn, 8)}
}

func (r *recordingRequeuer) Dispatch(c driver.Conn) error {
	r.mu.Lock()
	r.got = append(r.got, c)
	r.mu.Unlock()
	r.ch <- c
	return nil
}

func acceptedPair(t *testing.T) (server driver.Conn, client net.Conn) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := driver.NewTCPDriverFromListener(l)
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	clientDone := make(chan net.Conn, 1)
	go func() {
		c, err := net.DialTimeout("tcp", l.Addr().String(), time.Second)
		if err != nil {
			t.Errorf("dial: %v", err)
			return
		}
		clientDone <- c
	}()

	c, err := d.Accept(context.Background())
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	client = <-clientDone
	return c, client
}

func TestWaiterRequeuesOnReadable(t *testing.T) {
	rq := newRecordingRequeuer()
	w := New(16, rq)

	server, client := acceptedPair(t)
	defer client.Close()

	w.Offer(server, time.Now().Add(5*time.Second))

	client.Write([]byte("GET / HTTP/1.1\r\n\r\n"))

	select {
	case got := <-rq.ch:
		if got != server {
			t.Error("expected the same conn to be requeued")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for requeue")
	}
}

func TestWaiterClosesOnDeadline(t *testing.T) {
	rq := newRecordingRequeuer()
	w := New(16, rq)

	server, client := acceptedPair(t)
	defer client.Close()

	w.Offer(server, time.Now().Add(30*time.Millisecond))

	buf := make([]byte, 1)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, err := client.Read(buf)
	if n != 0 || err == nil {
		t.Fatalf("expected EOF after deadline close, got n=%d err=%v", n, err)
	}
}

func TestWaiterShutdownClosesParked(t *testing.T) {
	rq := newRecordingRequeuer()
	w := New(16, rq)

	server, client := acceptedPair(t)
	defer client.Close()

	w.Offer(server, time.Now().Add(5*time.Second))
	time.Sleep(20 * time.Millisecond)

	if err := w.Shutdown(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	buf := make([]byte, 1)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, err := client.Read(buf)
	if n != 0 || err == nil {
		t.Fatalf("expected EOF after shutdown, got n=%d err=%v", n, err)
	}
}

func TestWaiterOfferRejectsAfterShutdown(t *testing.T) {
	rq := newRecordingRequeuer()
	w := New(16, rq)
	w.Shutdown(time.Now().Add(time.Second))

	server, client := acceptedPair(t)
	defer client.Close()
	defer server.Close()

	w.Offer(server, time.Now().Add(time.Second))

	buf := make([]byte, 1)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, err := client.Read(buf)
	if n != 0 || err == nil {
		t.Fatalf("expected offered conn to be closed immediately, got n=%d err=%v", n, err)
	}
}
