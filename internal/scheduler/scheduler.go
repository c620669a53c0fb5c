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

// Package scheduler implements job intake, queue ordering, dependency-aware
// dispatch, pause/resume, rescheduling, cancellation, and completion
// tracking (spec.md §4.5). It is the process-wide service tying the Job
// family to the ThreadPool registry.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/time/rate"

	"github.com/OCR4all/ocr4all-app-sub002/internal/job"
	"github.com/OCR4all/ocr4all-app-sub002/internal/pool"
	"github.com/OCR4all/ocr4all-app-sub002/internal/telemetry/metrics"
	"github.com/OCR4all/ocr4all-app-sub002/pkg/engineerrors"
)

// Container is a consistent three-way snapshot of every job the Scheduler
// knows about (spec.md §4.5's `jobs()`).
type Container struct {
	Scheduled []*job.Core // queue order
	Running   []*job.Core // start descending
	Done      []*job.Core // end descending
}

// Event is one observable change on a job, delivered to Observe subscribers.
type Event struct {
	JobID     int
	State     job.State
	Progress  float64
	Timestamp time.Time
}

// clusterEnv is the expression environment a compiled Cluster filter runs
// against (spec.md SPEC_FULL.md dependency table: expr-lang compiles a
// caller-supplied filter expression over job fields).
type clusterEnv struct {
	ID              int
	TargetName      string
	Category        string
	WorkspacePool   string
	GroupKey        string
	Owner           string
	Mode            string
	State           string
	TrainingModelID string
}

func envOf(j *job.Core) clusterEnv {
	return clusterEnv{
		ID:              j.ID(),
		TargetName:      j.TargetName(),
		Category:        string(j.Category()),
		WorkspacePool:   j.WorkspacePool(),
		GroupKey:        j.GroupKey(),
		Owner:           j.Owner(),
		Mode:            string(j.Mode()),
		State:           string(j.State()),
		TrainingModelID: j.TrainingModelID(),
	}
}

// Scheduler holds the engine's id-space and dispatch tables, grounded on the
// teacher's Runner: a mutex-guarded map of known units plus a background
// completion hook that re-enters dispatch, with Observe/StartDraining/
// WaitForDrain mirroring Runner.Subscribe/StartDraining/WaitForDrain.
type Scheduler struct {
	pools *pool.Registry

	mu          sync.Mutex
	nextID      int
	all         map[int]*job.Core
	running     map[int]*job.Core
	scheduled   []*job.Core
	dispatching bool
	startTime   time.Time
	updated     time.Time

	draining bool

	limiter     *rate.Limiter
	pendingMu   sync.Mutex
	pendingTick bool

	subMu       sync.RWMutex
	subscribers map[int][]chan Event

	clusterMu sync.RWMutex
	clusters  map[string]*vm.Program
}

// New builds a Scheduler that dispatches through pools. Dispatching starts
// enabled (running).
func New(pools *pool.Registry) *Scheduler {
	now := time.Now()
	return &Scheduler{
		pools:       pools,
		all:         make(map[int]*job.Core),
		running:     make(map[int]*job.Core),
		dispatching: true,
		startTime:   now,
		updated:     now,
		limiter:     rate.NewLimiter(rate.Limit(20), 1),
		subscribers: make(map[int][]chan Event),
		clusters:    make(map[string]*vm.Program),
	}
}

// Schedule accepts j under scheduler control. A job already under control
// (id already claimed) is a no-op returning its current state.
func (s *Scheduler) Schedule(j *job.Core) job.State {
	s.mu.Lock()
	if j.ID() != 0 {
		state := j.State()
		s.mu.Unlock()
		return state
	}
	s.nextID++
	id := s.nextID
	if !j.ClaimID(id) {
		// Raced with another claimant; report whatever state resulted.
		s.mu.Unlock()
		return j.State()
	}
	s.all[id] = j
	s.scheduled = append(s.scheduled, j)
	s.touchLocked()
	s.mu.Unlock()

	metrics.ScheduledTotal.WithLabelValues(string(j.Mode())).Inc()

	s.triggerTick()
	return j.State()
}

// Cancel delegates to job id's Cancel() and triggers a tick. Unknown id is
// InvalidArgument; cancel of a terminal job is a no-op returning the
// existing terminal state (spec.md §7).
func (s *Scheduler) Cancel(id int) (job.State, error) {
	s.mu.Lock()
	j, ok := s.all[id]
	s.mu.Unlock()
	if !ok {
		return "", engineerrors.NewInvalidArgument(fmt.Sprintf("unknown job id %d", id))
	}
	j.Cancel()
	s.triggerTick()
	return j.State(), nil
}

// Run enables dispatching.
func (s *Scheduler) Run() {
	s.mu.Lock()
	s.dispatching = true
	s.touchLocked()
	s.mu.Unlock()
	s.triggerTick()
}

// Pause disables dispatching; jobs already running continue to completion.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.dispatching = false
	s.touchLocked()
	s.mu.Unlock()
	s.triggerTick()
}

// IsRunning reports whether dispatching is currently enabled.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatching
}

// Reschedule moves job id to index within the scheduled list, clamped.
func (s *Scheduler) Reschedule(id int, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.indexOfScheduledLocked(id)
	if !ok {
		if _, known := s.all[id]; !known {
			return engineerrors.NewInvalidArgument(fmt.Sprintf("unknown job id %d", id))
		}
		return engineerrors.NewStateConflict(fmt.Sprintf("job %d is not scheduled", id))
	}
	if index < 0 {
		index = 0
	} else if index >= len(s.scheduled) {
		index = len(s.scheduled) - 1
	}
	j := s.scheduled[pos]
	s.scheduled = append(s.scheduled[:pos], s.scheduled[pos+1:]...)
	s.scheduled = insertAt(s.scheduled, index, j)
	s.touchLocked()
	return nil
}

// RescheduleBegin moves job id to the front of the scheduled list.
func (s *Scheduler) RescheduleBegin(id int) error {
	return s.Reschedule(id, 0)
}

// RescheduleEnd moves job id to the back of the scheduled list.
func (s *Scheduler) RescheduleEnd(id int) error {
	s.mu.Lock()
	n := len(s.scheduled)
	s.mu.Unlock()
	return s.Reschedule(id, n-1)
}

// SwapScheduled swaps the positions of id1 and id2 in the scheduled list. A
// no-op if they are equal or either is not scheduled.
func (s *Scheduler) SwapScheduled(id1, id2 int) error {
	if id1 == id2 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p1, ok1 := s.indexOfScheduledLocked(id1)
	p2, ok2 := s.indexOfScheduledLocked(id2)
	if !ok1 || !ok2 {
		return nil
	}
	s.scheduled[p1], s.scheduled[p2] = s.scheduled[p2], s.scheduled[p1]
	s.touchLocked()
	return nil
}

func (s *Scheduler) indexOfScheduledLocked(id int) (int, bool) {
	for i, j := range s.scheduled {
		if j.ID() == id {
			return i, true
		}
	}
	return 0, false
}

func insertAt(list []*job.Core, index int, j *job.Core) []*job.Core {
	list = append(list, nil)
	copy(list[index+1:], list[index:])
	list[index] = j
	return list
}

// compileCluster compiles and caches a cluster filter expression for reuse
// across Associated*/JobsFiltered calls.
func (s *Scheduler) compileCluster(cluster string) (*vm.Program, error) {
	if cluster == "" {
		return nil, nil
	}
	s.clusterMu.RLock()
	if prog, ok := s.clusters[cluster]; ok {
		s.clusterMu.RUnlock()
		return prog, nil
	}
	s.clusterMu.RUnlock()

	prog, err := expr.Compile(cluster, expr.Env(clusterEnv{}), expr.AsBool())
	if err != nil {
		return nil, engineerrors.NewInvalidArgument(fmt.Sprintf("invalid cluster expression: %v", err))
	}

	s.clusterMu.Lock()
	s.clusters[cluster] = prog
	s.clusterMu.Unlock()
	return prog, nil
}

func (s *Scheduler) matches(j *job.Core, prog *vm.Program) bool {
	if prog == nil {
		return true
	}
	result, err := expr.Run(prog, envOf(j))
	if err != nil {
		return false
	}
	matched, _ := result.(bool)
	return matched
}

// Associated applies cluster (an expr-lang boolean expression over job
// fields) to every known job.
func (s *Scheduler) Associated(cluster string) ([]*job.Core, error) {
	prog, err := s.compileCluster(cluster)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Core
	for _, j := range s.all {
		if s.matches(j, prog) {
			out = append(out, j)
		}
	}
	return out, nil
}

// AssociatedRunning applies cluster to the running table only.
func (s *Scheduler) AssociatedRunning(cluster string) ([]*job.Core, error) {
	prog, err := s.compileCluster(cluster)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Core
	for _, j := range s.running {
		if s.matches(j, prog) {
			out = append(out, j)
		}
	}
	return out, nil
}

// AssociatedScheduled applies cluster to the scheduled list only.
func (s *Scheduler) AssociatedScheduled(cluster string) ([]*job.Core, error) {
	prog, err := s.compileCluster(cluster)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Core
	for _, j := range s.scheduled {
		if s.matches(j, prog) {
			out = append(out, j)
		}
	}
	return out, nil
}

// Jobs returns a consistent snapshot of the three partitions (spec.md
// §4.5's `jobs()`).
func (s *Scheduler) Jobs() Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.containerLocked(nil, nil, "")
}

// JobsFiltered restricts the three partitions to jobs matching any of
// clusters, any of trainingModelIDs, or owner (empty selectors match
// everything for that dimension; a job matches the filter overall if it
// satisfies at least one non-empty dimension, or if every dimension is
// empty).
func (s *Scheduler) JobsFiltered(clusters []string, trainingModelIDs []string, owner string) (Container, error) {
	progs := make([]*vm.Program, 0, len(clusters))
	for _, c := range clusters {
		prog, err := s.compileCluster(c)
		if err != nil {
			return Container{}, err
		}
		progs = append(progs, prog)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.containerLocked(progs, trainingModelIDs, owner), nil
}

func (s *Scheduler) containerLocked(progs []*vm.Program, trainingModelIDs []string, owner string) Container {
	match := func(j *job.Core) bool {
		if len(progs) == 0 && len(trainingModelIDs) == 0 && owner == "" {
			return true
		}
		for _, p := range progs {
			if s.matches(j, p) {
				return true
			}
		}
		for _, id := range trainingModelIDs {
			if id != "" && id == j.TrainingModelID() {
				return true
			}
		}
		if owner != "" && owner == j.Owner() {
			return true
		}
		return false
	}

	var c Container
	for _, j := range s.scheduled {
		if match(j) {
			c.Scheduled = append(c.Scheduled, j)
		}
	}
	for _, j := range s.running {
		if match(j) {
			c.Running = append(c.Running, j)
		}
	}
	for _, j := range s.all {
		if !j.State().IsTerminal() {
			continue
		}
		if match(j) {
			c.Done = append(c.Done, j)
		}
	}
	sort.SliceStable(c.Running, func(i, k int) bool {
		si, _ := c.Running[i].Start()
		sk, _ := c.Running[k].Start()
		return si.After(sk)
	})
	sort.SliceStable(c.Done, func(i, k int) bool {
		ei, _ := c.Done[i].End()
		ek, _ := c.Done[k].End()
		return ei.After(ek)
	})
	return c
}

// ExpungeDone purges every terminal job from the all-jobs table.
func (s *Scheduler) ExpungeDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.all {
		if j.State().IsTerminal() {
			delete(s.all, id)
		}
	}
	s.touchLocked()
}

// RemoveDone purges job id from the all-jobs table if it is terminal.
// Unknown id is InvalidArgument; a non-terminal job is StateConflict.
func (s *Scheduler) RemoveDone(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.all[id]
	if !ok {
		return engineerrors.NewInvalidArgument(fmt.Sprintf("unknown job id %d", id))
	}
	if !j.State().IsTerminal() {
		return engineerrors.NewStateConflict(fmt.Sprintf("job %d is not terminal", id))
	}
	delete(s.all, id)
	s.touchLocked()
	return nil
}

func (s *Scheduler) touchLocked() {
	s.updated = time.Now()
}

// StartTime reports when the Scheduler was constructed.
func (s *Scheduler) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Updated reports when the scheduler's tables were last mutated.
func (s *Scheduler) Updated() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated
}

// Observe returns a channel receiving Events for jobID and an unsubscribe
// function (spec.md's supplemented step-history mechanism, generalizing the
// teacher's Runner.Subscribe log streaming).
func (s *Scheduler) Observe(jobID int) (<-chan Event, func()) {
	ch := make(chan Event, 32)
	s.subMu.Lock()
	s.subscribers[jobID] = append(s.subscribers[jobID], ch)
	s.subMu.Unlock()

	unsub := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		subs := s.subscribers[jobID]
		for i, sub := range subs {
			if sub == ch {
				s.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, unsub
}

func (s *Scheduler) publish(j *job.Core) {
	state := j.State()
	progress := j.Journal().Progress()

	metrics.JournalProgress.WithLabelValues(strconv.Itoa(j.ID())).Set(progress)
	if state.IsTerminal() {
		metrics.CompletedTotal.WithLabelValues(string(state)).Inc()
	}

	s.subMu.RLock()
	subs := s.subscribers[j.ID()]
	s.subMu.RUnlock()
	if len(subs) == 0 {
		return
	}
	ev := Event{JobID: j.ID(), State: state, Progress: progress, Timestamp: time.Now()}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// StartDraining puts the Scheduler into draining mode: no further dispatch
// ticks run, so queued jobs stay queued, but jobs already running continue
// to completion.
func (s *Scheduler) StartDraining() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
}

// IsDraining reports whether the Scheduler is in draining mode.
func (s *Scheduler) IsDraining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}

// WaitForDrain blocks until the running table empties or timeout elapses.
func (s *Scheduler) WaitForDrain(ctx context.Context, timeout time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)

	for {
		s.mu.Lock()
		remaining := len(s.running)
		s.mu.Unlock()
		if remaining == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			s.mu.Lock()
			remaining = len(s.running)
			s.mu.Unlock()
			if remaining > 0 {
				return fmt.Errorf("drain timeout: %d job(s) still running", remaining)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// triggerTick debounces back-to-back tick triggers: a burst of schedule()/
// cancel() calls collapses into one dispatch pass, via a token-bucket
// limiter in front of a single trailing timer (the same rate-limiter +
// trailing-debounce pairing used for filewatcher-driven reloads).
func (s *Scheduler) triggerTick() {
	if s.limiter.Allow() {
		s.tick()
		return
	}
	s.pendingMu.Lock()
	if s.pendingTick {
		s.pendingMu.Unlock()
		return
	}
	s.pendingTick = true
	s.pendingMu.Unlock()

	delay := s.limiter.Reserve().Delay()
	go func() {
		time.Sleep(delay)
		s.pendingMu.Lock()
		s.pendingTick = false
		s.pendingMu.Unlock()
		s.tick()
	}()
}

// tick is the dispatch algorithm (spec.md §4.5): reap running, purge
// scheduled, then walk the scheduled list dispatching eligible jobs.
func (s *Scheduler) tick() {
	start := time.Now()
	defer func() { metrics.ObserveTick(time.Since(start)) }()

	s.mu.Lock()

	// 1. Reap running: drop terminal entries.
	for id, j := range s.running {
		if j.State().IsTerminal() {
			delete(s.running, id)
		}
	}

	// 2. Purge scheduled: drop anything no longer in StateScheduled.
	filtered := s.scheduled[:0:0]
	for _, j := range s.scheduled {
		if j.State() == job.StateScheduled {
			filtered = append(filtered, j)
		}
	}
	s.scheduled = filtered

	metrics.RunningGauge.Set(float64(len(s.running)))
	metrics.ScheduledGauge.Set(float64(len(s.scheduled)))

	if !s.dispatching || s.draining {
		s.mu.Unlock()
		return
	}

	sequentialRunning := false
	runningCores := make([]*job.Core, 0, len(s.running))
	for _, j := range s.running {
		runningCores = append(runningCores, j)
		if j.Mode() == job.ModeSequential {
			sequentialRunning = true
		}
	}
	if sequentialRunning {
		s.mu.Unlock()
		return
	}

	// Walk the scheduled list in order (spec.md §4.5 step 3): a sequential
	// candidate dispatches only when nothing is currently running, and its
	// mere presence stops the walk (nothing behind it is even considered
	// this tick). A parallel candidate dispatches when its dependency set
	// against the running table is empty; the walk continues past it either
	// way, so a blocked parallel job never stalls ones behind it.
	var toDispatch []*job.Core
	remaining := s.scheduled[:0:0]
	stopped := false
	for _, j := range s.scheduled {
		if stopped {
			remaining = append(remaining, j)
			continue
		}
		if j.Mode() == job.ModeSequential {
			if len(runningCores) == 0 {
				toDispatch = append(toDispatch, j)
				runningCores = append(runningCores, j)
			} else {
				remaining = append(remaining, j)
			}
			stopped = true
			continue
		}
		if blocking := j.Depend(runningCores); len(blocking) == 0 {
			toDispatch = append(toDispatch, j)
			runningCores = append(runningCores, j)
			continue
		}
		remaining = append(remaining, j)
	}
	s.scheduled = remaining

	for _, j := range toDispatch {
		j.BeginRunning()
		s.running[j.ID()] = j
	}
	metrics.RunningGauge.Set(float64(len(s.running)))
	metrics.ScheduledGauge.Set(float64(len(s.scheduled)))
	s.touchLocked()
	s.mu.Unlock()

	// Submission can block on pool capacity; run it off the calling
	// goroutine so Schedule/Cancel/Run/Pause never block on anything but
	// the scheduler's own mutex (spec.md §5).
	if len(toDispatch) > 0 {
		go func() {
			for _, j := range toDispatch {
				s.dispatch(j)
			}
		}()
	}
}

// dispatch submits j's body to its target pool outside the scheduler mutex.
// On return it finalizes the job's terminal state (already done inside
// Core.Execute) and re-enters tick.
func (s *Scheduler) dispatch(j *job.Core) {
	err := s.pools.Submit(j.WorkspacePool(), j.Category(), func() {
		j.Execute(context.Background())
		s.publish(j)
		s.triggerTick()
	})
	if err != nil {
		// Pool is shut down; cancel the job rather than leaving it stuck in
		// running forever.
		j.Cancel()
		s.triggerTick()
	}
}
