package controller

import (
	"sync"

	"github.com/olegsinavski/SMARTS/pkg/core"
)

// Future resolves to an agent action. Result blocks until the worker
// resolves it; there is no timeout, so a stalled controller stalls the
// tick rather than letting the simulation run ahead of its agents.
type Future struct {
	done chan struct{}

	once   sync.Once
	action core.AgentAction
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(action core.AgentAction, err error) {
	f.once.Do(func() {
		f.action = action
		f.err = err
		close(f.done)
	})
}

// Result blocks until the future resolves.
func (f *Future) Result() (core.AgentAction, error) {
	<-f.done
	return f.action, f.err
}

// ActionResult is either an already-resolved action (a reserved one-shot
// override) or a pending future. Action fan-out consumes both uniformly.
type ActionResult struct {
	ready  bool
	action core.AgentAction
	future *Future
}

// Ready wraps an action that needs no controller round trip.
func Ready(action core.AgentAction) ActionResult {
	return ActionResult{ready: true, action: action}
}

// Pending wraps an outstanding controller request.
func Pending(f *Future) ActionResult {
	return ActionResult{future: f}
}

// IsReady reports whether the result carries a reserved action.
func (r ActionResult) IsReady() bool { return r.ready }

// Wait returns the action, blocking on the future when pending.
func (r ActionResult) Wait() (core.AgentAction, error) {
	if r.ready {
		return r.action, nil
	}
	return r.future.Result()
}
