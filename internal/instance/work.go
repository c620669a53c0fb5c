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
	"fmt"
	"runtime/debug"

	"github.com/OCR4all/ocr4all-app-sub002/internal/journal"
)

// WorkInstance delegates to a caller-supplied execute/cancel pair instead of
// a ServiceProvider (spec.md §4.2): the generic variant used by jobs whose
// body is a plain Go closure rather than a provider.Processor.
type WorkInstance struct {
	Core

	execute func(ctx context.Context, step *journal.Step) error
}

// NewWorkInstance constructs a WorkInstance bound to step. cancelFn may be
// nil, in which case Cancel only marks the instance canceled without
// interrupting an in-flight execute.
func NewWorkInstance(execute func(ctx context.Context, step *journal.Step) error, cancelFn func(), step *journal.Step) *WorkInstance {
	wi := &WorkInstance{Core: newCore(step), execute: execute}
	if cancelFn != nil {
		wi.setCancelHook(cancelFn)
	}
	return wi
}

// Execute runs the bound closure to completion.
func (wi *WorkInstance) Execute(ctx context.Context) {
	if !wi.beginRunning() {
		return
	}

	var err error
	var panicked bool
	step := wi.Step()
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				step.AddNote(fmt.Sprintf("work instance panicked: %v\n%s", r, debug.Stack()))
			}
		}()
		err = wi.execute(ctx, step)
	}()

	switch {
	case panicked:
		wi.finishTerminal(StateInterrupted)
	case err != nil:
		step.AddNote(err.Error())
		wi.finishTerminal(StateInterrupted)
	default:
		wi.finishTerminal(StateCompleted)
	}
}

// Cancel requests cooperative cancellation via the caller-supplied hook.
func (wi *WorkInstance) Cancel() {
	wi.cancel()
}

var _ Instance = (*WorkInstance)(nil)
