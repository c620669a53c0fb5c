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

package instance

import (
	"context"

	"github.com/OCR4all/ocr4all-app-sub002/internal/journal"
	"github.com/OCR4all/ocr4all-app-sub002/internal/provider"
	"github.com/OCR4all/ocr4all-app-sub002/internal/training"
)

// trainingStateOf maps the shared Instance state alphabet onto training's
// narrower one (it has no "initialized").
func trainingStateOf(s State) training.State {
	switch s {
	case StateCompleted:
		return training.StateCompleted
	case StateCanceled:
		return training.StateCanceled
	default:
		return training.StateInterrupted
	}
}

// TrainingInstance runs a training ServiceProvider and, on terminal
// completion, mirrors the outcome into an Engine record (spec.md §4.2).
type TrainingInstance struct {
	Core

	ServiceProvider provider.ServiceProvider
	processor       provider.Processor
	Arguments       provider.ModelArgument
	Framework       provider.Framework

	EngineStore training.Store
	EngineID    string
}

// NewTrainingInstance constructs a TrainingInstance bound to step and an
// Engine record already created in EngineStore under engineID.
func NewTrainingInstance(sp provider.ServiceProvider, args provider.ModelArgument, fw provider.Framework, store training.Store, engineID string, step *journal.Step) *TrainingInstance {
	return &TrainingInstance{
		Core:            newCore(step),
		ServiceProvider: sp,
		processor:       sp.NewProcessor(),
		Arguments:       args,
		Framework:       fw,
		EngineStore:     store,
		EngineID:        engineID,
	}
}

// Execute runs the bound training processor to completion.
func (ti *TrainingInstance) Execute(ctx context.Context) {
	if !ti.beginRunning() {
		return
	}
	ti.setCancelHook(ti.processor.Cancel)

	cb := &callback{step: ti.Step(), lockable: false}
	result := runProcessor(ctx, ti.Step(), ti.processor, cb, ti.Framework, ti.Arguments)
	final := ti.finishTerminal(stateFromProvider(result))

	if ti.EngineStore != nil {
		step := ti.Step()
		_ = ti.EngineStore.Update(ti.EngineID, trainingStateOf(final), step.Progress(), step.Note())
	}
}

// Cancel requests cooperative cancellation of the bound training processor.
func (ti *TrainingInstance) Cancel() {
	ti.cancel()
	if ti.isTerminal() && ti.EngineStore != nil {
		step := ti.Step()
		_ = ti.EngineStore.Update(ti.EngineID, training.StateCanceled, step.Progress(), step.Note())
	}
}

var _ Instance = (*TrainingInstance)(nil)
