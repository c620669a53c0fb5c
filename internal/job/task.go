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

	"github.com/OCR4all/ocr4all-app-sub002/internal/instance"
	"github.com/OCR4all/ocr4all-app-sub002/internal/pool"
	"github.com/OCR4all/ocr4all-app-sub002/internal/provider"
	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshot"
)

// TaskConfig constructs a single-step, process-typed Task (spec.md §4.3).
type TaskConfig struct {
	Mode             Mode
	ShortDescription string
	TargetName       string
	WorkspacePool    string
	// GroupKey dependency-groups this task with others sharing the same
	// project or sandbox identifier.
	GroupKey string

	ServiceProvider provider.ServiceProvider
	Arguments       provider.ModelArgument
	Framework       provider.Framework

	// SnapshotStore and ParentTrack are non-nil/empty only when a sandbox is
	// attached; otherwise the task runs as an ActionInstance-shaped process
	// with no snapshot.
	SnapshotStore      snapshot.Store
	ParentTrack        snapshot.Track
	SnapshotType       snapshot.Type
	SnapshotLabel      string
	SnapshotDescription string
}

// NewTask builds a Task Job. On first (and only) execution it creates a
// derived snapshot under ParentTrack (root if empty) when SnapshotStore is
// set, binds a lockable ProcessInstance to it, and runs that Instance.
func NewTask(cfg TaskConfig) *Core {
	executeFn := func(ctx context.Context, c *Core) State {
		step := c.Journal().Step(0)

		var track snapshot.Track
		if cfg.SnapshotStore != nil {
			snap, err := cfg.SnapshotStore.CreateDerived(cfg.ParentTrack, cfg.SnapshotType, cfg.SnapshotLabel, cfg.SnapshotDescription, cfg.ServiceProvider.ID(), cfg.Arguments)
			if err != nil {
				step.AddNote(fmt.Sprintf("creating derived snapshot: %v", err))
				return StateInterrupted
			}
			track = snap.Track
		}

		inst := instance.NewProcessInstance(cfg.ServiceProvider, cfg.Arguments, cfg.Framework, cfg.SnapshotStore, track, true, step)
		c.setCancelHook(inst.Cancel)
		inst.Execute(ctx)
		return State(inst.State())
	}

	return newCore(Config{
		Mode:             cfg.Mode,
		ShortDescription: cfg.ShortDescription,
		TargetName:       cfg.TargetName,
		Category:         pool.CategoryTask,
		WorkspacePool:    cfg.WorkspacePool,
		GroupKey:         cfg.GroupKey,
		ExecuteRight:     true,
		Steps:            1,
	}, executeFn, dependOnGroupKey)
}
