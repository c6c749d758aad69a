// Package keepalive implements the keep-alive waiter (§4.2): a single
// event loop holding idle HTTP/1.0-style keep-alive sockets, detecting
// readability or timeout, and either re-queuing readable ones to their
// originating pool or closing them. It is grounded on nsd/keepalive.c's
// slab-of-slots-plus-self-pipe-trigger design, reusing the teacher's
// core/poller package as the select/poll-equivalent multiplexer instead of
// reimplementing epoll/kqueue here.
package keepalive

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/corehttpd/corehttpd/core/driver"
	"github.com/corehttpd/corehttpd/core/poller"
)

// ErrFull is returned by Offer when every slot is occupied.
var ErrFull = errors.New("keepalive: slab full")

// ErrShutdown is returned by Offer once shutdown has been requested.
var ErrShutdown = errors.New("keepalive: shutting down")

// Requeuer re-dispatches a connection that became readable while parked,
// handing it back to pool selection (§4.1) wrapped as a new unit of work
// — the Go analogue of QueueConn(driver, state) in the waiter loop.
type Requeuer interface {
	Dispatch(c driver.Conn) error
}

type slot struct {
	conn     driver.Conn
	fd       int
	deadline time.Time
}

// Waiter is the keep-alive event loop. A zero-value Waiter is not usable;
// use New.
type Waiter struct {
	maxSlots int
	requeue  Requeuer

	mu       sync.Mutex
	waiting  []*slot
	active   map[int]*slot
	occupied int
	shutdown bool
	running  bool

	p        poller.Poller
	triggerR int
	triggerW int
	stopped  chan struct{}
}

// New returns a Waiter with room for maxSlots parked connections,
// dispatching readable connections back through requeue. New applies no
// default of its own; app.EnableKeepAlive and serve's --keepalive-slots
// both default to 1024 slots, not FD_SETSIZE - 256.
func New(maxSlots int, requeue Requeuer) *Waiter {
	return &Waiter{
		maxSlots: maxSlots,
		requeue:  requeue,
		active:   make(map[int]*slot),
		stopped:  make(chan struct{}),
	}
}

// Offer parks c until it becomes readable or idleDeadline passes. It
// implements pool.KeepAliveSink so a Pool can hand off a connection
// directly after a clean keep-alive response.
func (w *Waiter) Offer(c driver.Conn, idleDeadline time.Time) {
	if err := w.offer(c, idleDeadline); err != nil {
		c.Close()
	}
}

func (w *Waiter) offer(c driver.Conn, idleDeadline time.Time) error {
	fd := c.Sockfd()
	if fd < 0 {
		return errors.New("keepalive: driver does not support detach/sockfd")
	}

	w.mu.Lock()
	if w.shutdown {
		w.mu.Unlock()
		return ErrShutdown
	}
	if w.occupied >= w.maxSlots {
		w.mu.Unlock()
		return ErrFull
	}
	w.occupied++
	w.waiting = append(w.waiting, &slot{conn: c, fd: fd, deadline: idleDeadline})

	needStart := !w.running
	if needStart {
		w.running = true
	}
	w.mu.Unlock()

	if needStart {
		if err := w.start(); err != nil {
			w.mu.Lock()
			w.occupied--
			w.running = false
			w.mu.Unlock()
			return err
		}
		return nil
	}
	w.trigger()
	return nil
}

func (w *Waiter) start() error {
	p, err := poller.NewPoller()
	if err != nil {
		return errors.Wrap(err, "keepalive: create poller")
	}
	r, wfd, err := newSelfPipe()
	if err != nil {
		p.Close()
		return errors.Wrap(err, "keepalive: create trigger pipe")
	}
	w.p = p
	w.triggerR = r
	w.triggerW = wfd
	if err := w.p.Add(w.triggerR); err != nil {
		return errors.Wrap(err, "keepalive: watch trigger")
	}
	go w.loop()
	return nil
}

func (w *Waiter) trigger() {
	w.mu.Lock()
	wfd := w.triggerW
	w.mu.Unlock()
	if wfd > 0 {
		writeTrigger(wfd)
	}
}

// Shutdown asks the waiter loop to close every parked connection and
// exit, blocking until it does or deadline passes.
func (w *Waiter) Shutdown(deadline time.Time) error {
	w.mu.Lock()
	if !w.running {
		w.shutdown = true
		w.mu.Unlock()
		return nil
	}
	w.shutdown = true
	w.mu.Unlock()
	w.trigger()

	select {
	case <-w.stopped:
		return nil
	case <-time.After(time.Until(deadline)):
		return errors.New("keepalive: shutdown deadline exceeded")
	}
}

// loop is the waiter's single event loop: splice waiting into active,
// compute the earliest deadline, wait for readability or that deadline,
// then requeue readable slots and close timed-out ones.
func (w *Waiter) loop() {
	defer close(w.stopped)
	defer w.p.Close()

	for {
		w.mu.Lock()
		for _, s := range w.waiting {
			w.active[s.fd] = s
			w.p.Add(s.fd)
		}
		w.waiting = w.waiting[:0]
		shutdown := w.shutdown
		w.mu.Unlock()

		if shutdown {
			w.closeAllActive()
			return
		}

		timeoutMs := w.earliestTimeoutMs()
		ready, err := w.p.Wait(timeoutMs)
		if err != nil {
			continue
		}

		now := time.Now()
		w.mu.Lock()
		if containsFd(ready, w.triggerR) {
			drainTrigger(w.triggerR)
		}
		readySet := make(map[int]bool, len(ready))
		for _, fd := range ready {
			readySet[fd] = true
		}
		delete(readySet, w.triggerR)

		var toRequeue []*slot
		for fd, s := range w.active {
			switch {
			case readySet[fd]:
				toRequeue = append(toRequeue, s)
				delete(w.active, fd)
				w.p.Remove(fd)
			case now.After(s.deadline):
				s.conn.Close()
				delete(w.active, fd)
				w.p.Remove(fd)
				w.occupied--
			}
		}
		w.mu.Unlock()

		for _, s := range toRequeue {
			if err := w.requeue.Dispatch(s.conn); err != nil {
				s.conn.Close()
			}
			w.mu.Lock()
			w.occupied--
			w.mu.Unlock()
		}
	}
}

func containsFd(fds []int, target int) bool {
	for _, fd := range fds {
		if fd == target {
			return true
		}
	}
	return false
}

func (w *Waiter) earliestTimeoutMs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.active) == 0 {
		return -1
	}
	var earliest time.Time
	for _, s := range w.active {
		if earliest.IsZero() || s.deadline.Before(earliest) {
			earliest = s.deadline
		}
	}
	ms := time.Until(earliest).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return int(ms)
}

func (w *Waiter) closeAllActive() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for fd, s := range w.active {
		s.conn.Close()
		w.p.Remove(fd)
		delete(w.active, fd)
		w.occupied--
	}
	for _, s := range w.waiting {
		s.conn.Close()
		w.occupied--
	}
	w.waiting = nil
}
