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

	"golang.org/x/text/language"

	"github.com/OCR4all/ocr4all-app-sub002/internal/journal"
	"github.com/OCR4all/ocr4all-app-sub002/internal/provider"
)

// languageUndetermined is used when building a ServiceProvider display name
// for a history event outside of any request-scoped locale.
var languageUndetermined = language.Und

// ActionInstance runs a ServiceProvider that is not bound to a snapshot
// (spec.md §4.2): ad-hoc tools, housekeeping actions, anything whose output
// is not itself a derivable processing step.
type ActionInstance struct {
	Core

	ServiceProvider provider.ServiceProvider
	processor       provider.Processor
	Arguments       provider.ModelArgument
	Framework       provider.Framework
}

// NewActionInstance constructs an ActionInstance bound to step.
func NewActionInstance(sp provider.ServiceProvider, args provider.ModelArgument, fw provider.Framework, step *journal.Step) *ActionInstance {
	return &ActionInstance{
		Core:            newCore(step),
		ServiceProvider: sp,
		processor:       sp.NewProcessor(),
		Arguments:       args,
		Framework:       fw,
	}
}

// Execute runs the bound processor to completion.
func (ai *ActionInstance) Execute(ctx context.Context) {
	if !ai.beginRunning() {
		return
	}
	ai.setCancelHook(ai.processor.Cancel)

	cb := &callback{step: ai.Step(), lockable: false}
	result := runProcessor(ctx, ai.Step(), ai.processor, cb, ai.Framework, ai.Arguments)
	ai.finishTerminal(stateFromProvider(result))
}

// Cancel requests cooperative cancellation of the bound processor.
func (ai *ActionInstance) Cancel() {
	ai.cancel()
}

var _ Instance = (*ActionInstance)(nil)
