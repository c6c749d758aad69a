package prebind

import "testing"

func TestPreBindAndTake(t *testing.T) {
	r := NewRegistry()
	if err := r.PreBind("0"); err != nil {
		t.Fatalf("PreBind: %v", err)
	}

	var boundAddr string
	r.mu.Lock()
	for k := range r.bind {
		boundAddr = k
	}
	r.mu.Unlock()

	l, ok := r.Take(boundAddr)
	if !ok {
		t.Fatalf("expected to find pre-bound listener for %s", boundAddr)
	}
	defer l.Close()

	if _, ok := r.Take(boundAddr); ok {
		t.Error("expected Take to remove the entry")
	}
}

func TestTakeMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Take("127.0.0.1:9"); ok {
		t.Error("expected no pre-bound listener for an unbound address")
	}
}

func TestCloseAll(t *testing.T) {
	r := NewRegistry()
	if err := r.PreBind("0,0"); err != nil {
		t.Fatalf("PreBind: %v", err)
	}
	r.CloseAll()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.bind) != 0 {
		t.Errorf("expected registry to be empty after CloseAll, got %d entries", len(r.bind))
	}
}
