// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package instance implements one service-provider execution bound to a
// journal step and, optionally, a snapshot (spec.md §3, §4.2). Rather than
// the source's InstanceCore/Process.Instance/Action.Instance class
// hierarchy, each variant is its own small struct embedding a shared Core
// and plugging in the one or two behaviors it differs on (spec.md §9).
package instance

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/OCR4all/ocr4all-app-sub002/internal/journal"
	"github.com/OCR4all/ocr4all-app-sub002/internal/provider"
	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshot"
)

// State is the Instance lifecycle state, sharing Job's alphabet.
type State string

const (
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateCanceled    State = "canceled"
	StateInterrupted State = "interrupted"
)

// Instance is the common contract every variant implements.
type Instance interface {
	State() State
	Created() time.Time
	Start() (time.Time, bool)
	End() (time.Time, bool)
	Step() *journal.Step
	// Execute runs the instance; a no-op unless currently initialized.
	Execute(ctx context.Context)
	// Cancel is a no-op if already terminal.
	Cancel()
}

// Core holds the fields and transitions shared by every variant.
type Core struct {
	mu       sync.RWMutex
	state    State
	created  time.Time
	start    time.Time
	end      time.Time
	hasStart bool
	hasEnd   bool
	step     *journal.Step

	cancelFn func()
	cancelMu sync.Mutex // guards cancelFn assignment/invocation
}

// newCore initializes a Core in the initialized state bound to step.
func newCore(step *journal.Step) Core {
	return Core{state: StateInitialized, created: time.Now(), step: step}
}

func (c *Core) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Core) Created() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.created
}

func (c *Core) Start() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.start, c.hasStart
}

func (c *Core) End() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.end, c.hasEnd
}

func (c *Core) Step() *journal.Step {
	return c.step
}

// beginRunning transitions initialized -> running and stamps start. Returns
// false if the instance was not in the initialized state.
func (c *Core) beginRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInitialized {
		return false
	}
	c.state = StateRunning
	c.start = time.Now()
	c.hasStart = true
	return true
}

// finishTerminal sets a terminal state and stamps end, unless the instance
// was already canceled (cancellation wins a race with normal completion).
func (c *Core) finishTerminal(s State) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCanceled {
		return c.state
	}
	c.state = s
	c.end = time.Now()
	c.hasEnd = true
	return c.state
}

// isTerminal reports whether the current state is absorbing.
func (c *Core) isTerminal() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case StateCompleted, StateCanceled, StateInterrupted:
		return true
	default:
		return false
	}
}

// wasRunning reports whether the instance reached the running state, used
// to decide whether a cancellation needs to invoke processor.Cancel().
func (c *Core) wasRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasStart
}

// cancel is the shared Cancel() body: a no-op if terminal, else sets
// canceled/end and, if a cancel hook was registered (the instance reached
// running), spawns a detached goroutine to invoke it. Exceptions from the
// hook are swallowed, per spec.md §4.2/§6.
func (c *Core) cancel() {
	c.mu.Lock()
	if c.state == StateCompleted || c.state == StateCanceled || c.state == StateInterrupted {
		c.mu.Unlock()
		return
	}
	c.state = StateCanceled
	c.end = time.Now()
	c.hasEnd = true
	wasRunning := c.hasStart
	c.mu.Unlock()

	c.cancelMu.Lock()
	hook := c.cancelFn
	c.cancelMu.Unlock()
	if wasRunning && hook != nil {
		go func() {
			defer func() { _ = recover() }()
			hook()
		}()
	}
}

// setCancelHook registers the function a detached cancellation task should
// invoke (typically processor.Cancel).
func (c *Core) setCancelHook(fn func()) {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	c.cancelFn = fn
}

// callback adapts Core+variant state into a provider.Callback.
type callback struct {
	step     *journal.Step
	lockable bool
	onLock   func(comment string)
}

func (cb *callback) UpdatedProgress(f float64)      { cb.step.SetProgress(f) }
func (cb *callback) UpdatedStandardOutput(s string) { cb.step.SetStandardOutput(s) }
func (cb *callback) UpdatedStandardError(s string)  { cb.step.SetStandardError(s) }
func (cb *callback) LockSnapshot(comment string) {
	if !cb.lockable {
		cb.step.AddNote("lock request ignored: instance is not snapshot-lockable")
		return
	}
	if cb.onLock != nil {
		cb.onLock(comment)
	}
}

// runProcessor executes p to completion. A returned error or a recovered
// panic both map to "interrupted" with the failure recorded in the
// journal note (spec.md §6, §7); a panic additionally records its stack.
func runProcessor(ctx context.Context, step *journal.Step, p provider.Processor, cb provider.Callback, fw provider.Framework, args provider.ModelArgument) provider.State {
	var result provider.State
	var err error
	var panicked bool

	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				step.AddNote(fmt.Sprintf("processor panicked: %v\n%s", r, debug.Stack()))
			}
		}()
		result, err = p.Execute(ctx, cb, fw, args)
	}()

	if panicked {
		return provider.StateInterrupted
	}
	if err != nil {
		step.AddNote(err.Error())
		return provider.StateInterrupted
	}
	if result == "" {
		step.AddNote("processor returned no state")
		return provider.StateInterrupted
	}
	return result
}
