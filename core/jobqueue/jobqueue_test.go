package jobqueue

import (
	"testing"
	"time"

	"github.com/corehttpd/corehttpd/core/scripting"
)

func TestSubmitAndWaitReturnsResult(t *testing.T) {
	m := NewManager()
	q, err := m.CreateQueue("default", 2, scripting.NewEchoEngine())
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}

	id, err := q.Submit("hello")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	j, err := q.Wait(id, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	result, evalErr := j.Result()
	if evalErr != nil {
		t.Fatalf("unexpected eval error: %v", evalErr)
	}
	if result != "hello" {
		t.Fatalf("expected echoed result, got %q", result)
	}
	if j.Status() != Done {
		t.Fatalf("expected Done status, got %v", j.Status())
	}
}

func TestCreateQueueRejectsDuplicateName(t *testing.T) {
	m := NewManager()
	if _, err := m.CreateQueue("q", 1, scripting.NewEchoEngine()); err != nil {
		t.Fatalf("create queue: %v", err)
	}
	if _, err := m.CreateQueue("q", 1, scripting.NewEchoEngine()); err != ErrQueueExists {
		t.Fatalf("expected ErrQueueExists, got %v", err)
	}
}

func TestQueueGrowsThreadsUpToMax(t *testing.T) {
	m := NewManager()
	q, _ := m.CreateQueue("default", 3, scripting.NewEchoEngine())

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := q.Submit("block")
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, id)
	}

	for _, id := range ids {
		if _, err := q.Wait(id, time.Now().Add(time.Second)); err != nil {
			t.Fatalf("wait %s: %v", id, err)
		}
	}

	q.mu.Lock()
	threads := q.nThreads
	q.mu.Unlock()
	if threads == 0 || threads > 3 {
		t.Fatalf("expected between 1 and 3 worker threads, got %d", threads)
	}
}

func TestCancelQueuedJob(t *testing.T) {
	m := NewManager()
	q, _ := m.CreateQueue("default", 1, scripting.NewEchoEngine())

	id, _ := q.Submit("first")
	q.Wait(id, time.Now().Add(time.Second))

	q.mu.Lock()
	q.stopping = false
	q.pending = append(q.pending, &Job{ID: "fake", done: make(chan struct{})})
	q.jobs["fake"] = q.pending[len(q.pending)-1]
	q.mu.Unlock()

	if !q.Cancel("fake") {
		t.Fatal("expected Cancel to succeed on a queued job")
	}
	j, err := q.Wait("fake", time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("wait on canceled job: %v", err)
	}
	if j.Status() != Canceled {
		t.Fatalf("expected Canceled status, got %v", j.Status())
	}
}

func TestShutdownDrainsWorkers(t *testing.T) {
	m := NewManager()
	q, _ := m.CreateQueue("default", 2, scripting.NewEchoEngine())

	q.Submit("a")
	q.Submit("b")

	if err := q.Shutdown(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
