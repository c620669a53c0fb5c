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

// Package job implements the schedulable Job abstraction and its variants
// (spec.md §3, §4.3). Rather than the source's Job←Process←Task/Workflow
// class hierarchy, one Core struct carries the fields and transitions every
// variant shares, and each variant plugs in the small set of behaviors it
// differs on — a dependency predicate, a target-pool category, an execute
// body, and an optional cancel forwarder — as plain function values
// (spec.md §9).
package job

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/OCR4all/ocr4all-app-sub002/internal/journal"
	"github.com/OCR4all/ocr4all-app-sub002/internal/pool"
)

// State is the Job lifecycle state (spec.md §3): initialized -> scheduled ->
// running -> {completed, canceled, interrupted}.
type State string

const (
	StateInitialized State = "initialized"
	StateScheduled   State = "scheduled"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateCanceled    State = "canceled"
	StateInterrupted State = "interrupted"
)

// IsTerminal reports whether s is one of the absorbing terminal states.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateCanceled, StateInterrupted:
		return true
	default:
		return false
	}
}

// Mode is a job's co-running contract.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// ExecuteFunc runs a job's body to completion and returns its outcome. It
// must return one of StateCompleted/StateCanceled/StateInterrupted; Core
// maps a panic or an empty return to StateInterrupted.
type ExecuteFunc func(ctx context.Context, c *Core) State

// DependFunc returns the subset of candidates c must wait for.
type DependFunc func(c *Core, candidates []*Core) []*Core

// Job is the handle callers and the scheduler hold. Every variant
// constructor in this package returns a *Core satisfying it.
type Job interface {
	ID() int
	State() State
	Mode() Mode
	Created() time.Time
	Start() (time.Time, bool)
	End() (time.Time, bool)
	ShortDescription() string
	TargetName() string
	Category() pool.Category
	WorkspacePool() string
	ExecuteRight() bool
	SpecialRight() bool
	Journal() *journal.Journal
	Depend(candidates []*Core) []*Core
	BeginRunning() bool
	Execute(ctx context.Context) State
	Cancel()
}

// Core holds the fields and transitions shared by every variant.
type Core struct {
	mu      sync.RWMutex
	id      int
	mode    Mode
	state   State
	created time.Time
	start   time.Time
	end     time.Time
	hasStart bool
	hasEnd   bool

	shortDescription string
	targetName       string
	category         pool.Category
	workspacePool    string
	groupKey         string
	owner            string
	trainingModelID  string

	executeRight bool
	specialRight bool

	journal *journal.Journal

	executeFn ExecuteFunc
	dependFn  DependFunc

	cancelMu sync.Mutex
	cancelFn func()

	checkpointMu  sync.Mutex
	checkpoint    any
	hasCheckpoint bool
}

// Checkpointer is implemented by every Core, reporting the furthest
// progress marker its execute body recorded before interruption (spec.md
// §5's "Checkpoint-shaped resume hook"). Only Workflow currently records
// one; other variants always report ok=false.
type Checkpointer interface {
	Checkpoint() (any, bool)
}

// Config bundles a Core's fixed construction parameters. Variant
// constructors (NewTask, NewWorkflow, ...) fill this in and set executeFn/
// dependFn themselves.
type Config struct {
	Mode             Mode
	ShortDescription string
	TargetName       string
	Category         pool.Category
	WorkspacePool    string
	// GroupKey, when non-empty, makes this job mutually dependent with any
	// other scheduled/running job sharing the same key (spec.md §4.3's
	// "groups by project"/"groups by sandbox", generalized to one string).
	GroupKey     string
	ExecuteRight bool
	SpecialRight bool
	Steps        int
}

// newCore builds a Core in the initialized state, id 0 (not under
// scheduler control).
func newCore(cfg Config, executeFn ExecuteFunc, dependFn DependFunc) *Core {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeParallel
	}
	return &Core{
		mode:             mode,
		state:            StateInitialized,
		created:          time.Now(),
		shortDescription: cfg.ShortDescription,
		targetName:       cfg.TargetName,
		category:         cfg.Category,
		workspacePool:    cfg.WorkspacePool,
		groupKey:         cfg.GroupKey,
		executeRight:     cfg.ExecuteRight,
		specialRight:     cfg.SpecialRight,
		journal:          journal.New(cfg.Steps),
		executeFn:        executeFn,
		dependFn:         dependFn,
	}
}

func (c *Core) ID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// ClaimID assigns id iff the job is not yet under scheduler control,
// transitioning initialized -> scheduled. Returns false if already claimed.
// Called by the scheduler as part of Schedule.
func (c *Core) ClaimID(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id != 0 {
		return false
	}
	c.id = id
	c.state = StateScheduled
	return true
}

func (c *Core) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Core) Mode() Mode { return c.mode }

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

func (c *Core) ShortDescription() string { return c.shortDescription }
func (c *Core) TargetName() string       { return c.targetName }
func (c *Core) Category() pool.Category  { return c.category }
func (c *Core) WorkspacePool() string    { return c.workspacePool }
func (c *Core) ExecuteRight() bool       { return c.executeRight }
func (c *Core) SpecialRight() bool       { return c.specialRight }
func (c *Core) Journal() *journal.Journal { return c.journal }
func (c *Core) GroupKey() string         { return c.groupKey }
func (c *Core) Owner() string            { return c.owner }
func (c *Core) TrainingModelID() string  { return c.trainingModelID }

// Depend returns the subset of candidates c must wait for.
func (c *Core) Depend(candidates []*Core) []*Core {
	if c.dependFn == nil {
		return nil
	}
	return c.dependFn(c, candidates)
}

// BeginRunning transitions scheduled -> running and stamps start. Called by
// the scheduler as part of dispatch, before submitting to a pool. A job that
// was never handed to the scheduler (id never claimed) may also begin
// running directly from initialized, so tests and standalone callers can
// drive a Job without a scheduler in front of it.
func (c *Core) BeginRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateScheduled && c.state != StateInitialized {
		return false
	}
	c.state = StateRunning
	c.start = time.Now()
	c.hasStart = true
	return true
}

// finishTerminal sets a terminal state and stamps end, unless the job was
// already canceled (cancellation wins a race with normal completion).
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

func (c *Core) wasRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasStart
}

// setCancelHook registers the function a detached cancellation task should
// invoke (typically the bound Instance's Cancel). Variant execute bodies
// call this once they have an Instance to forward cancellation to.
func (c *Core) setCancelHook(fn func()) {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	c.cancelFn = fn
}

// setCheckpoint records the furthest progress marker a variant's execute
// body has reached. Safe to call repeatedly as progress advances.
func (c *Core) setCheckpoint(v any) {
	c.checkpointMu.Lock()
	c.checkpoint = v
	c.hasCheckpoint = true
	c.checkpointMu.Unlock()
}

// Checkpoint returns the furthest progress marker recorded so far, if any.
func (c *Core) Checkpoint() (any, bool) {
	c.checkpointMu.Lock()
	defer c.checkpointMu.Unlock()
	return c.checkpoint, c.hasCheckpoint
}

// Cancel is a no-op if already terminal; otherwise sets canceled/end and,
// if the job reached running, spawns a detached goroutine to invoke the
// registered cancel hook (spec.md §4.5's "Cancellation semantics").
func (c *Core) Cancel() {
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

	if wasRunning {
		c.cancelMu.Lock()
		hook := c.cancelFn
		c.cancelMu.Unlock()
		if hook != nil {
			go func() {
				defer func() { _ = recover() }()
				hook()
			}()
		}
	}
}

// Execute runs the job's body and finalizes its terminal state. It is a
// no-op, returning the current state unchanged, unless the job is currently
// running (BeginRunning must have been called first — the scheduler does
// this synchronously at dispatch, before the body runs on a pool worker).
// A panic or empty result from executeFn maps to StateInterrupted,
// mirroring the pool wrapper's catch-all in spec.md §4.5's Failure
// semantics. When the job ends completed, every journal step's progress is
// set to 1.
func (c *Core) Execute(ctx context.Context) State {
	c.mu.RLock()
	running := c.state == StateRunning
	c.mu.RUnlock()
	if !running {
		return c.State()
	}
	if c.executeFn == nil {
		return c.finishTerminal(StateInterrupted)
	}

	var result State
	var panicked bool
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				if step := c.journal.CurrentStep(); step != nil {
					step.AddNote(fmt.Sprintf("job panicked: %v\n%s", r, debug.Stack()))
				}
			}
		}()
		result = c.executeFn(ctx, c)
	}()

	if panicked || result == "" {
		return c.finishTerminal(StateInterrupted)
	}
	final := c.finishTerminal(result)
	if final == StateCompleted {
		c.journal.Complete()
	}
	return final
}

// dependOnGroupKey is the shared DependFunc for Task/Workflow: two jobs
// sharing a non-empty GroupKey are mutually dependent (spec.md §4.3).
func dependOnGroupKey(c *Core, candidates []*Core) []*Core {
	if c.groupKey == "" {
		return nil
	}
	var blocking []*Core
	for _, cand := range candidates {
		if cand == c {
			continue
		}
		if cand.GroupKey() == c.groupKey {
			blocking = append(blocking, cand)
		}
	}
	return blocking
}

var _ Job = (*Core)(nil)
