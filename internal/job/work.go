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

	"github.com/OCR4all/ocr4all-app-sub002/internal/instance"
	"github.com/OCR4all/ocr4all-app-sub002/internal/journal"
	"github.com/OCR4all/ocr4all-app-sub002/internal/pool"
)

// WorkConfig constructs a single-step, parallel Work Job (spec.md §4.3): no
// provider, a caller-supplied closure body, optionally filterable by Owner.
type WorkConfig struct {
	ShortDescription string
	TargetName       string
	WorkspacePool    string
	// Owner optionally tags this work for owner-filtered cluster queries.
	Owner string

	Execute func(ctx context.Context, step *journal.Step) error
	Cancel  func()
}

// NewWork builds a Work Job.
func NewWork(cfg WorkConfig) *Core {
	executeFn := func(ctx context.Context, c *Core) State {
		step := c.Journal().Step(0)
		inst := instance.NewWorkInstance(cfg.Execute, cfg.Cancel, step)
		c.setCancelHook(inst.Cancel)
		inst.Execute(ctx)
		return State(inst.State())
	}

	core := newCore(Config{
		Mode:             ModeParallel,
		ShortDescription: cfg.ShortDescription,
		TargetName:       cfg.TargetName,
		Category:         pool.CategoryWork,
		WorkspacePool:    cfg.WorkspacePool,
		GroupKey:         "", // Work jobs never mutually depend
		ExecuteRight:     true,
		Steps:            1,
	}, executeFn, nil)
	core.owner = cfg.Owner
	return core
}
