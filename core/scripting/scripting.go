// Package scripting defines the narrow boundary through which the job
// queue and connection-serving path reach a script interpreter. The
// interpreter itself — Tcl in the original, anything with an Eval-shaped
// API here — stays an external collaborator; this package only fixes the
// interface and ships an in-repo test double so the rest of the module can
// be exercised without a real language runtime.
package scripting

import (
	"context"
	"sync"
)

// Engine evaluates a script body and returns its result or an error. Eval
// must be safe to call concurrently from independent job queue workers;
// an Engine that isn't should serialize internally.
type Engine interface {
	// Eval runs script and returns its textual result.
	Eval(ctx context.Context, script string) (result string, err error)
	// Name identifies the engine for logging and metrics labels.
	Name() string
}

// EchoEngine is a test double: it returns its input unchanged after
// recording the call, and counts how many interpreter "allocations" and
// "deallocations" a caller has asked it to track — standing in for the
// original's per-thread Tcl interpreter checkout/release bookkeeping
// without needing the interpreter itself.
type EchoEngine struct {
	Calls   []string
	allocs  int
	deallocs int
	mu      sync.Mutex // serializes Eval's append to Calls
}

// NewEchoEngine returns a ready-to-use EchoEngine.
func NewEchoEngine() *EchoEngine { return &EchoEngine{} }

// Eval records script and returns it verbatim.
func (e *EchoEngine) Eval(ctx context.Context, script string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, script)
	return script, nil
}

// Name identifies this engine in logs and metrics.
func (e *EchoEngine) Name() string { return "echo" }

// Allocate records an interpreter checkout.
func (e *EchoEngine) Allocate() { e.allocs++ }

// Deallocate records an interpreter release.
func (e *EchoEngine) Deallocate() { e.deallocs++ }

// Counts returns the number of Allocate/Deallocate calls recorded so far.
func (e *EchoEngine) Counts() (allocs, deallocs int) { return e.allocs, e.deallocs }
