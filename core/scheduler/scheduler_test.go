package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestAfterRunsOnce(t *testing.T) {
	s := New()
	defer s.Shutdown()

	var n int32
	s.After(10*time.Millisecond, func() { atomic.AddInt32(&n, 1) })

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&n); got != 1 {
		t.Fatalf("expected 1 run, got %d", got)
	}
}

func TestScheduleProcRepeats(t *testing.T) {
	s := New()
	defer s.Shutdown()

	var n int32
	s.ScheduleProc(15*time.Millisecond, false, false, func() { atomic.AddInt32(&n, 1) })

	time.Sleep(120 * time.Millisecond)
	if got := atomic.LoadInt32(&n); got < 2 {
		t.Fatalf("expected at least 2 runs, got %d", got)
	}
}

func TestScheduleProcOnceFiresOnlyOnce(t *testing.T) {
	s := New()
	defer s.Shutdown()

	var n int32
	s.ScheduleProc(10*time.Millisecond, true, false, func() { atomic.AddInt32(&n, 1) })

	time.Sleep(120 * time.Millisecond)
	if got := atomic.LoadInt32(&n); got != 1 {
		t.Fatalf("expected exactly 1 run, got %d", got)
	}
}

func TestCancelPreventsRun(t *testing.T) {
	s := New()
	defer s.Shutdown()

	var n int32
	id := s.After(20*time.Millisecond, func() { atomic.AddInt32(&n, 1) })
	if !s.Cancel(id) {
		t.Fatal("expected Cancel to find the job")
	}

	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt32(&n); got != 0 {
		t.Fatalf("expected canceled job not to run, got %d runs", got)
	}
}

func TestNextDailyRollsToTomorrow(t *testing.T) {
	from := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	next := nextDaily(from, 1, 0)
	if next.Day() != 2 || next.Hour() != 1 {
		t.Fatalf("expected rollover to day 2 at 01:00, got %v", next)
	}
}

func TestNextWeeklyPicksCorrectDay(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) // Thursday
	next := nextWeekly(from, time.Monday, 9, 0)
	if next.Weekday() != time.Monday {
		t.Fatalf("expected next Monday, got %v", next.Weekday())
	}
	if !next.After(from) {
		t.Fatalf("expected next run after from, got %v", next)
	}
}

func TestPauseSuppressesNextFireOnly(t *testing.T) {
	s := New()
	defer s.Shutdown()

	var n int32
	id := s.ScheduleProc(30*time.Millisecond, false, false, func() { atomic.AddInt32(&n, 1) })
	if !s.Pause(id) {
		t.Fatal("expected Pause to find the job")
	}

	time.Sleep(40 * time.Millisecond)
	if got := atomic.LoadInt32(&n); got != 0 {
		t.Fatalf("expected no runs while paused, got %d", got)
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&n); got < 1 {
		t.Fatalf("expected job to resume firing after its one suppressed tick, got %d", got)
	}
}

func TestResumeClearsPendingPause(t *testing.T) {
	s := New()
	defer s.Shutdown()

	var n int32
	id := s.ScheduleProc(15*time.Millisecond, false, false, func() { atomic.AddInt32(&n, 1) })
	s.Pause(id)
	if !s.Resume(id) {
		t.Fatal("expected Resume to find the job")
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&n); got < 1 {
		t.Fatalf("expected at least 1 run after resume, got %d", got)
	}
}

func TestScheduleDailyRejectsOutOfRangeHour(t *testing.T) {
	s := New()
	defer s.Shutdown()

	if _, err := s.ScheduleDaily(24, 0, false, false, func() {}); err != ErrInvalidTime {
		t.Fatalf("expected ErrInvalidTime for hour=24, got %v", err)
	}
	if _, err := s.ScheduleDaily(12, 60, false, false, func() {}); err != ErrInvalidTime {
		t.Fatalf("expected ErrInvalidTime for minute=60, got %v", err)
	}
	if _, err := s.ScheduleDaily(12, 0, false, false, func() {}); err != nil {
		t.Fatalf("expected valid hour/minute to register, got %v", err)
	}
}

func TestScheduleWeeklyRejectsOutOfRangeWeekday(t *testing.T) {
	s := New()
	defer s.Shutdown()

	if _, err := s.ScheduleWeekly(time.Weekday(7), 0, 0, false, false, func() {}); err != ErrInvalidTime {
		t.Fatalf("expected ErrInvalidTime for weekday=7, got %v", err)
	}
	if _, err := s.ScheduleWeekly(time.Monday, 9, 0, false, false, func() {}); err != nil {
		t.Fatalf("expected valid weekday/hour/minute to register, got %v", err)
	}
}

func TestScheduleThreadRunsOffLoop(t *testing.T) {
	s := New()
	defer s.Shutdown()

	done := make(chan struct{})
	s.ScheduleProc(10*time.Millisecond, true, true, func() {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("threaded job never ran")
	}
}
