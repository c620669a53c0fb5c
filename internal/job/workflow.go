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

package job

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/OCR4all/ocr4all-app-sub002/internal/dfs"
	"github.com/OCR4all/ocr4all-app-sub002/internal/instance"
	"github.com/OCR4all/ocr4all-app-sub002/internal/pool"
	"github.com/OCR4all/ocr4all-app-sub002/internal/provider"
	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshot"
)

// WorkflowConfig constructs a multi-step Workflow Job (spec.md §4.3) that
// executes a processor-path tree depth-first via internal/dfs.
type WorkflowConfig struct {
	Mode             Mode
	ShortDescription string
	TargetName       string
	WorkspacePool    string
	GroupKey         string

	// RootSnapshot must already allow derived snapshots (completed,
	// unlocked) — the Workflow job does not itself create or complete the
	// root; it is given one.
	RootSnapshot *snapshot.Snapshot
	Paths        []dfs.PathNode
	Providers    func(id string) (provider.ServiceProvider, bool)
	Store        snapshot.Store
	Framework    provider.Framework
	Arguments    func(n dfs.PathNode) provider.ModelArgument
	HistorySink  func(provider.HistoryEvent)
}

// NewWorkflow builds a Workflow Job whose step count equals the number of
// nodes in Paths and whose Execute drives dfs.Run.
func NewWorkflow(cfg WorkflowConfig) *Core {
	steps := dfs.CountNodes(cfg.Paths)

	executeFn := func(ctx context.Context, c *Core) State {
		var mu sync.Mutex
		var current *instance.ProcessInstance
		c.setCancelHook(func() {
			mu.Lock()
			defer mu.Unlock()
			if current != nil {
				current.Cancel()
			}
		})

		canceledFlag := func() bool { return c.State() == StateCanceled }

		if err := validateProviders(ctx, cfg.Paths, cfg.Providers); err != nil {
			if step := c.Journal().CurrentStep(); step != nil {
				step.AddNote(err.Error())
			}
			return StateInterrupted
		}

		result := dfs.Run(ctx, c.Journal(), cfg.RootSnapshot, cfg.Paths, dfs.Deps{
			Providers:   cfg.Providers,
			Store:       cfg.Store,
			Framework:   cfg.Framework,
			Arguments:   cfg.Arguments,
			HistorySink: cfg.HistorySink,
			JobID:       c.ID(),
			BindCancelable: func(inst *instance.ProcessInstance) {
				mu.Lock()
				current = inst
				mu.Unlock()
			},
			Canceled: canceledFlag,
			OnProgress: func(track snapshot.Track) {
				c.setCheckpoint(track)
			},
		})

		if State(result) == StateInterrupted {
			if cp, ok := c.Checkpoint(); ok {
				if step := c.Journal().CurrentStep(); step != nil {
					step.AddNote(fmt.Sprintf("furthest completed snapshot track: %v", cp))
				}
			}
		}
		return State(result)
	}

	return newCore(Config{
		Mode:             cfg.Mode,
		ShortDescription: cfg.ShortDescription,
		TargetName:       cfg.TargetName,
		Category:         pool.CategoryWorkflow,
		WorkspacePool:    cfg.WorkspacePool,
		GroupKey:         cfg.GroupKey,
		ExecuteRight:     true,
		Steps:            steps,
	}, executeFn, dependOnGroupKey)
}

// validateProviders concurrently checks that every distinct processor id
// named anywhere in paths resolves to a registered ServiceProvider, before
// the DFS walk creates its first derived snapshot: fail the whole workflow
// up front rather than partway through a tree that already has snapshots
// recorded.
func validateProviders(ctx context.Context, paths []dfs.PathNode, providers func(id string) (provider.ServiceProvider, bool)) error {
	ids := distinctProcessorIDs(paths, nil)

	g, _ := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, ok := providers(id); !ok {
				return fmt.Errorf("unknown service provider %q", id)
			}
			return nil
		})
	}
	return g.Wait()
}

func distinctProcessorIDs(paths []dfs.PathNode, seen map[string]bool) []string {
	if seen == nil {
		seen = make(map[string]bool)
	}
	var ids []string
	for _, n := range paths {
		if !seen[n.ProcessorID] {
			seen[n.ProcessorID] = true
			ids = append(ids, n.ProcessorID)
		}
		ids = append(ids, distinctProcessorIDs(n.Children, seen)...)
	}
	return ids
}
