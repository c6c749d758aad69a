// Package scheduler implements a container/heap-backed min-heap of
// one-shot, periodic, daily, and weekly jobs, grounded on
// original_source/nsd/tclsched.c's ns_after/ns_schedule_proc/
// ns_schedule_daily/ns_schedule_weekly commands: a job either fires once
// (-once) or reschedules itself after running, and either runs inline on
// the scheduler's own loop goroutine or is handed its own goroutine
// (-thread) so a long-running job doesn't delay the rest of the queue.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidTime is returned by ScheduleDaily/ScheduleWeekly for an
// out-of-range hour, minute, or weekday, the Go analogue of tclsched.c's
// "invalid hour/minute/day" registration-time rejection.
var ErrInvalidTime = errors.New("scheduler: invalid hour, minute, or weekday")

// kind identifies how a job recomputes its next run time.
type kind int

const (
	kindOnce kind = iota
	kindInterval
	kindDaily
	kindWeekly
)

// Job is one scheduled unit of work. Fn runs either on the scheduler's
// loop goroutine or its own goroutine, per Thread.
type Job struct {
	id       int
	kind     kind
	next     time.Time
	interval time.Duration
	hour     int
	minute   int
	weekday  time.Weekday
	once     bool
	thread   bool
	fn       func()
	canceled bool
	paused   bool // Ns_Pause/Ns_Resume: suppress the next firing without removing the job
	skip     bool // set/cleared per runDue pass; true if this firing is the suppressed one
	index    int  // heap index, maintained by container/heap
}

// ID returns the job's scheduler-assigned identifier.
func (j *Job) ID() int { return j.id }

type jobHeap []*Job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].next.Before(h[j].next) }
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *jobHeap) Push(x any) {
	j := x.(*Job)
	j.index = len(*h)
	*h = append(*h, j)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}

// Scheduler runs scheduled jobs on a single loop goroutine that sleeps
// until the next job's deadline, wakes, runs every job that's now due,
// reschedules the repeating ones, and sleeps again.
type Scheduler struct {
	mu      sync.Mutex
	heap    jobHeap
	byID    map[int]*Job
	nextID  int
	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

// New returns a Scheduler with its loop goroutine already running.
func New() *Scheduler {
	s := &Scheduler{
		byID:    make(map[int]*Job),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	heap.Init(&s.heap)
	go s.loop()
	return s
}

// After schedules fn to run once, delay from now, the Go analogue of
// ns_after.
func (s *Scheduler) After(delay time.Duration, fn func()) int {
	return s.add(&Job{kind: kindOnce, next: time.Now().Add(delay), once: true, fn: fn})
}

// ScheduleProc schedules fn to run every interval. If once is true, the
// job fires a single time instead of repeating; if thread is true, each
// firing runs on its own goroutine instead of the scheduler's loop.
func (s *Scheduler) ScheduleProc(interval time.Duration, once, thread bool, fn func()) int {
	return s.add(&Job{
		kind: kindInterval, interval: interval, next: time.Now().Add(interval),
		once: once, thread: thread, fn: fn,
	})
}

// ScheduleDaily schedules fn to run at hour:minute every day. hour must be
// in [0,23] and minute in [0,59]; an out-of-range value is rejected at
// registration instead of being silently normalized by time.Date.
func (s *Scheduler) ScheduleDaily(hour, minute int, once, thread bool, fn func()) (int, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, ErrInvalidTime
	}
	j := &Job{kind: kindDaily, hour: hour, minute: minute, once: once, thread: thread, fn: fn}
	j.next = nextDaily(time.Now(), hour, minute)
	return s.add(j), nil
}

// ScheduleWeekly schedules fn to run at hour:minute on weekday every week.
// weekday must be in [0,6] (time.Sunday..time.Saturday), hour in [0,23],
// and minute in [0,59].
func (s *Scheduler) ScheduleWeekly(weekday time.Weekday, hour, minute int, once, thread bool, fn func()) (int, error) {
	if weekday < time.Sunday || weekday > time.Saturday || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, ErrInvalidTime
	}
	j := &Job{kind: kindWeekly, weekday: weekday, hour: hour, minute: minute, once: once, thread: thread, fn: fn}
	j.next = nextWeekly(time.Now(), weekday, hour, minute)
	return s.add(j), nil
}

func (s *Scheduler) add(j *Job) int {
	s.mu.Lock()
	s.nextID++
	j.id = s.nextID
	s.byID[j.id] = j
	heap.Push(&s.heap, j)
	s.mu.Unlock()
	s.poke()
	return j.id
}

// Cancel removes a scheduled job. It reports whether the job was found.
func (s *Scheduler) Cancel(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok {
		return false
	}
	j.canceled = true
	delete(s.byID, id)
	if j.index >= 0 {
		heap.Remove(&s.heap, j.index)
	}
	return true
}

// Pause suppresses a job's next firing without removing it from the
// schedule: a periodic job is still popped and re-inserted for its next
// run when due, but its callback is not invoked. It reports whether the
// job was found. Pausing a job already mid-run affects only the
// following fire, the Go analogue of Ns_Pause.
func (s *Scheduler) Pause(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok {
		return false
	}
	j.paused = true
	return true
}

// Resume clears a pending pause so the job's next firing runs normally
// again, the Go analogue of Ns_Resume.
func (s *Scheduler) Resume(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok {
		return false
	}
	j.paused = false
	return true
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Shutdown stops the loop goroutine. Jobs already dispatched to their own
// goroutine (thread == true) are not waited on.
func (s *Scheduler) Shutdown() {
	close(s.stop)
	<-s.stopped
}

func (s *Scheduler) loop() {
	defer close(s.stopped)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		var wait time.Duration
		if s.heap.Len() == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.heap[0].next)
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-s.stop:
			return
		case <-s.wake:
			continue
		case <-timer.C:
			s.runDue()
		}
	}
}

func (s *Scheduler) runDue() {
	now := time.Now()
	var due []*Job

	s.mu.Lock()
	for s.heap.Len() > 0 && !s.heap[0].next.After(now) {
		j := heap.Pop(&s.heap).(*Job)
		due = append(due, j)
	}
	for _, j := range due {
		j.skip = j.paused
		j.paused = false // a pause decision affects only the following fire
		if j.once {
			delete(s.byID, j.id)
		} else {
			j.next = nextRun(j, now)
			heap.Push(&s.heap, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		if j.canceled || j.skip {
			continue
		}
		if j.thread {
			go j.fn()
		} else {
			j.fn()
		}
	}
}

func nextRun(j *Job, from time.Time) time.Time {
	switch j.kind {
	case kindInterval:
		return from.Add(j.interval)
	case kindDaily:
		return nextDaily(from, j.hour, j.minute)
	case kindWeekly:
		return nextWeekly(from, j.weekday, j.hour, j.minute)
	default:
		return from.Add(time.Hour)
	}
}

func nextDaily(from time.Time, hour, minute int) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func nextWeekly(from time.Time, weekday time.Weekday, hour, minute int) time.Time {
	next := nextDaily(from, hour, minute)
	for next.Weekday() != weekday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
