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
	"github.com/OCR4all/ocr4all-app-sub002/internal/pool"
	"github.com/OCR4all/ocr4all-app-sub002/internal/provider"
)

// ActionConfig constructs a single-step, generic Action Job (spec.md
// §4.3): an empty dependency set, so it never blocks on peers.
type ActionConfig struct {
	Mode             Mode
	ShortDescription string
	TargetName       string
	WorkspacePool    string

	ServiceProvider provider.ServiceProvider
	Arguments       provider.ModelArgument
	Framework       provider.Framework
}

// NewAction builds an Action Job.
func NewAction(cfg ActionConfig) *Core {
	executeFn := func(ctx context.Context, c *Core) State {
		step := c.Journal().Step(0)
		inst := instance.NewActionInstance(cfg.ServiceProvider, cfg.Arguments, cfg.Framework, step)
		c.setCancelHook(inst.Cancel)
		inst.Execute(ctx)
		return State(inst.State())
	}

	return newCore(Config{
		Mode:             cfg.Mode,
		ShortDescription: cfg.ShortDescription,
		TargetName:       cfg.TargetName,
		Category:         pool.CategoryWork,
		WorkspacePool:    cfg.WorkspacePool,
		ExecuteRight:     true,
		Steps:            1,
	}, executeFn, nil)
}
