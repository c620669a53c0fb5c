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

// Package pool implements the ThreadPool registry (spec.md §4.4): named
// bounded worker pools, a fixed `work`/`task`/`workflow`/`training` family
// plus a dynamic `workspace.<name>` family that can be created, resized, or
// shut down at runtime from a reloaded internal/config.Config.
package pool

import (
	"fmt"
	"sync"

	"github.com/OCR4all/ocr4all-app-sub002/internal/config"
	"github.com/OCR4all/ocr4all-app-sub002/internal/telemetry/metrics"
)

// Category names the four predefined pools every job falls back to.
type Category string

const (
	CategoryWork     Category = "work"
	CategoryTask     Category = "task"
	CategoryWorkflow Category = "workflow"
	CategoryTraining Category = "training"
)

// Pool is a named bounded worker pool. Submitting blocks the caller only
// long enough to reserve a slot; the submitted function then runs on its own
// goroutine, gated by an in-use counter and a sync.Cond.
type Pool struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	size   int
	inUse  int
	closed bool
}

func newPool(name string, size int) *Pool {
	p := &Pool{name: name, size: size}
	p.cond = sync.NewCond(&p.mu)
	metrics.PoolCapacity.WithLabelValues(name).Set(float64(size))
	metrics.PoolUtilization.WithLabelValues(name).Set(0)
	return p
}

// Name returns the pool's name.
func (p *Pool) Name() string { return p.name }

// Size returns the pool's current core size.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// InUse returns the number of slots currently occupied.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Resize changes the pool's core size; already-running tasks are
// unaffected, the new size applies to future submissions.
func (p *Pool) Resize(size int) {
	p.mu.Lock()
	p.size = size
	p.mu.Unlock()
	metrics.PoolCapacity.WithLabelValues(p.name).Set(float64(size))
	p.cond.Broadcast()
}

// Shutdown marks the pool closed: any blocked or future Submit call fails.
// In-flight tasks are left to finish.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	metrics.PoolCapacity.DeleteLabelValues(p.name)
	metrics.PoolUtilization.DeleteLabelValues(p.name)
	p.cond.Broadcast()
}

// Submit blocks until a slot is free (or the pool closes), then runs fn on
// a fresh goroutine and returns. fn's completion releases the slot.
func (p *Pool) Submit(fn func()) error {
	p.mu.Lock()
	for p.inUse >= p.size && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("pool %q is shut down", p.name)
	}
	p.inUse++
	p.mu.Unlock()
	metrics.PoolUtilization.WithLabelValues(p.name).Set(float64(p.InUse()))

	go func() {
		defer func() {
			p.mu.Lock()
			p.inUse--
			p.mu.Unlock()
			metrics.PoolUtilization.WithLabelValues(p.name).Set(float64(p.InUse()))
			p.cond.Broadcast()
		}()
		fn()
	}()
	return nil
}

// Registry is the ThreadPool registry: the fixed category pools plus the
// dynamic workspace.<name> family.
type Registry struct {
	mu        sync.RWMutex
	pools     map[Category]*Pool
	workspace map[string]*Pool
}

// NewRegistry builds a Registry from cfg's pool sizes. Any of the four
// predefined categories missing from cfg.Pools gets a core size of 1.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		pools:     make(map[Category]*Pool),
		workspace: make(map[string]*Pool),
	}
	for _, cat := range []Category{CategoryWork, CategoryTask, CategoryWorkflow, CategoryTraining} {
		size := 1
		if cfg != nil {
			if pc, ok := cfg.Pools[string(cat)]; ok && pc.CorePoolSize > 0 {
				size = pc.CorePoolSize
			}
		}
		r.pools[cat] = newPool(string(cat), size)
	}
	if cfg != nil {
		r.applyWorkspaceLocked(cfg)
	}
	return r
}

// Resolve picks the target pool for a job: the named workspace pool if
// override is non-empty and known, otherwise the category pool (spec.md
// §4.4's "(workspace-pool override if set and known) else (job category)").
func (r *Registry) Resolve(workspaceOverride string, category Category) *Pool {
	if workspaceOverride != "" {
		r.mu.RLock()
		p, ok := r.workspace[workspaceOverride]
		r.mu.RUnlock()
		if ok {
			return p
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pools[category]
}

// Submit resolves the target pool and submits fn to it.
func (r *Registry) Submit(workspaceOverride string, category Category, fn func()) error {
	p := r.Resolve(workspaceOverride, category)
	if p == nil {
		return fmt.Errorf("unknown pool category %q", category)
	}
	return p.Submit(fn)
}

// ApplyConfig reconciles the category and workspace pools against a
// reloaded Config. Intended to be registered as the onChange callback of an
// internal/config.Watcher (spec.md §4.4: "a callback registered with the
// configuration service").
func (r *Registry) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cat := range []Category{CategoryWork, CategoryTask, CategoryWorkflow, CategoryTraining} {
		if pc, ok := cfg.Pools[string(cat)]; ok && pc.CorePoolSize > 0 {
			r.pools[cat].Resize(pc.CorePoolSize)
		}
	}
	r.applyWorkspaceLocked(cfg)
}

// applyWorkspaceLocked must be called with r.mu held.
func (r *Registry) applyWorkspaceLocked(cfg *config.Config) {
	for name, pc := range cfg.WorkspacePools {
		existing, ok := r.workspace[name]
		switch {
		case pc.CorePoolSize <= 0:
			if ok {
				existing.Shutdown()
				delete(r.workspace, name)
			}
		case ok:
			existing.Resize(pc.CorePoolSize)
		default:
			r.workspace[name] = newPool(name, pc.CorePoolSize)
		}
	}
}

// Workspace returns the named dynamic pool, if it exists.
func (r *Registry) Workspace(name string) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.workspace[name]
	return p, ok
}

// Category returns the named predefined pool.
func (r *Registry) Category(cat Category) *Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pools[cat]
}
