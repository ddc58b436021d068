// Package controller supplies social-agent computation handles. Each handle
// runs its policy in a dedicated worker goroutine; Act returns a future the
// lifecycle manager resolves during action fan-out.
//
// There is no mid-flight cancellation: a request, once issued, either
// resolves or the handle is terminated at teardown.
package controller

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/olegsinavski/SMARTS/pkg/core"
)

// Pool hands out controller handles.
type Pool struct {
	log zerolog.Logger

	mu      sync.Mutex
	handles []*Handle
	closed  bool
}

// NewPool creates a controller pool.
func NewPool(log zerolog.Logger) *Pool {
	return &Pool{log: log.With().Str("component", "controller-pool").Logger()}
}

// Acquire returns a fresh handle. The handle's worker starts once Start is
// called with an agent spec.
func (p *Pool) Acquire() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := &Handle{
		log:      p.log,
		requests: make(chan actRequest, 1),
		quit:     make(chan struct{}),
	}
	p.handles = append(p.handles, h)
	return h
}

// Destroy terminates every handle the pool has handed out.
func (p *Pool) Destroy() {
	p.mu.Lock()
	handles := p.handles
	p.handles = nil
	p.closed = true
	p.mu.Unlock()

	for _, h := range handles {
		h.Terminate()
	}
}

type actRequest struct {
	obs    core.AgentObservation
	future *Future
}

// Handle drives one social agent's policy computation.
type Handle struct {
	log      zerolog.Logger
	requests chan actRequest
	quit     chan struct{}

	mu      sync.Mutex
	started bool
	policy  Policy
}

// Start boots the worker with the policy named by the agent spec.
func (h *Handle) Start(spec core.AgentSpec) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return fmt.Errorf("controller handle already started")
	}

	policy, err := policyFor(spec)
	if err != nil {
		return err
	}
	h.policy = policy
	h.started = true

	go h.run()
	return nil
}

func (h *Handle) run() {
	for {
		select {
		case req := <-h.requests:
			action, err := h.policy.Act(req.obs)
			req.future.resolve(action, err)
		case <-h.quit:
			return
		}
	}
}

// Act submits this tick's observation and returns a future for the action.
func (h *Handle) Act(obs core.AgentObservation) *Future {
	f := newFuture()

	h.mu.Lock()
	started := h.started
	h.mu.Unlock()
	if !started {
		f.resolve(core.AgentAction{}, fmt.Errorf("controller handle not started"))
		return f
	}

	select {
	case h.requests <- actRequest{obs: obs, future: f}:
	case <-h.quit:
		f.resolve(core.AgentAction{}, fmt.Errorf("controller handle terminated"))
	}
	return f
}

// Terminate stops the worker. Safe to call more than once.
func (h *Handle) Terminate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.quit:
	default:
		close(h.quit)
	}
	h.started = false
}
