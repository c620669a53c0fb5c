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
	"github.com/OCR4all/ocr4all-app-sub002/internal/training"
)

// TrainingConfig constructs a single-step, parallel Training Job (spec.md
// §4.3). It has no sandbox binding; on completion it rewrites the engine
// record on the training store to reflect the terminal state.
type TrainingConfig struct {
	ShortDescription string
	TargetName       string
	WorkspacePool    string

	ServiceProvider provider.ServiceProvider
	Arguments       provider.ModelArgument
	Framework       provider.Framework

	EngineStore training.Store
	EngineID    string
	// ModelID, when set, lets cluster queries select training jobs by the
	// model they train (spec.md §4.5's "training-model-id set").
	ModelID string
}

// NewTraining builds a Training Job.
func NewTraining(cfg TrainingConfig) *Core {
	executeFn := func(ctx context.Context, c *Core) State {
		step := c.Journal().Step(0)
		inst := instance.NewTrainingInstance(cfg.ServiceProvider, cfg.Arguments, cfg.Framework, cfg.EngineStore, cfg.EngineID, step)
		c.setCancelHook(inst.Cancel)
		inst.Execute(ctx)
		return State(inst.State())
	}

	core := newCore(Config{
		Mode:             ModeParallel,
		ShortDescription: cfg.ShortDescription,
		TargetName:       cfg.TargetName,
		Category:         pool.CategoryTraining,
		WorkspacePool:    cfg.WorkspacePool,
		ExecuteRight:     true,
		Steps:            1,
	}, executeFn, nil)
	core.trainingModelID = cfg.ModelID
	return core
}
