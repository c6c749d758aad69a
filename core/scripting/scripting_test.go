package scripting

import (
	"context"
	"testing"
)

func TestEchoEngineEval(t *testing.T) {
	e := NewEchoEngine()
	result, err := e.Eval(context.Background(), "ns_return 200 text/plain ok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ns_return 200 text/plain ok" {
		t.Errorf("expected echo of input, got %q", result)
	}
	if len(e.Calls) != 1 {
		t.Errorf("expected 1 recorded call, got %d", len(e.Calls))
	}
}

func TestEchoEngineAllocCounts(t *testing.T) {
	e := NewEchoEngine()
	e.Allocate()
	e.Allocate()
	e.Deallocate()

	allocs, deallocs := e.Counts()
	if allocs != 2 || deallocs != 1 {
		t.Errorf("expected (2,1), got (%d,%d)", allocs, deallocs)
	}
}
