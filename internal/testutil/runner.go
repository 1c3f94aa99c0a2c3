// Package testutil provides deterministic collaborator doubles for
// engine tests: a scripted async runner and a minimal formula evaluator.
package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/tabula/internal/engine"
)

// ScriptedRunner is a CodeRunner double. Dispatches are captured rather
// than executed; the test later feeds results back through
// Engine.CompleteAsync using the captured transaction ids.
type ScriptedRunner struct {
	mu       sync.Mutex
	requests []engine.RunRequest
	failWith error
}

// NewScriptedRunner creates a runner that accepts every dispatch.
func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{}
}

// FailWith makes every subsequent Dispatch return err, simulating an
// unavailable interpreter. Pass nil to restore acceptance.
func (r *ScriptedRunner) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

// Dispatch implements engine.CodeRunner.
func (r *ScriptedRunner) Dispatch(req engine.RunRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.requests = append(r.requests, req)
	return nil
}

// Requests returns the dispatches captured so far.
func (r *ScriptedRunner) Requests() []engine.RunRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.RunRequest, len(r.requests))
	copy(out, r.requests)
	return out
}

// Last returns the most recent dispatch.
func (r *ScriptedRunner) Last() (engine.RunRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		return engine.RunRequest{}, fmt.Errorf("no dispatches captured")
	}
	return r.requests[len(r.requests)-1], nil
}
