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
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/OCR4all/ocr4all-app-sub002/internal/journal"
	"github.com/OCR4all/ocr4all-app-sub002/internal/provider"
	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshot"
	"github.com/OCR4all/ocr4all-app-sub002/internal/telemetry/tracing"
)

// stateFromProvider maps a Processor.Execute result onto the Instance state
// alphabet. The two enums share their string values by construction; only
// "completed"/"canceled" survive unchanged, everything else collapses to
// interrupted (runProcessor already guarantees result is never "").
func stateFromProvider(s provider.State) State {
	switch s {
	case provider.StateCompleted:
		return StateCompleted
	case provider.StateCanceled:
		return StateCanceled
	default:
		return StateInterrupted
	}
}

func processStateOf(s State) snapshot.ProcessState {
	return snapshot.ProcessState(s)
}

// ProcessInstance binds a ServiceProvider execution to a journal step and a
// snapshot track (spec.md §4.2). It is the only variant that mirrors its
// state into a SnapshotStore and that can be asked, mid-run, to lock the
// bound snapshot on completion.
type ProcessInstance struct {
	Core

	ServiceProvider provider.ServiceProvider
	processor       provider.Processor
	Arguments       provider.ModelArgument
	Framework       provider.Framework

	SnapshotStore snapshot.Store
	SnapshotTrack snapshot.Track
	Lockable      bool

	JobID      int
	TotalSteps int
	StepIndex  int // 1-based

	// HistorySink receives a HistoryEvent on every phase transition. May be
	// nil, in which case history is not recorded.
	HistorySink func(provider.HistoryEvent)

	lockMu      sync.Mutex
	pendingLock *snapshot.Lock
}

// NewProcessInstance constructs a ProcessInstance bound to step and track.
func NewProcessInstance(sp provider.ServiceProvider, args provider.ModelArgument, fw provider.Framework, store snapshot.Store, track snapshot.Track, lockable bool, step *journal.Step) *ProcessInstance {
	fw.SnapshotTrack = track
	return &ProcessInstance{
		Core:            newCore(step),
		ServiceProvider: sp,
		processor:       sp.NewProcessor(),
		Arguments:       args,
		Framework:       fw,
		SnapshotStore:   store,
		SnapshotTrack:   track,
		Lockable:        lockable,
	}
}

func (pi *ProcessInstance) mirror(state snapshot.ProcessState, progress *float64, stdout, stderr, note *string) {
	if pi.SnapshotStore == nil {
		return
	}
	_ = pi.SnapshotStore.UpdateProcess(pi.SnapshotTrack, state, progress, stdout, stderr, note)
}

func (pi *ProcessInstance) emit(action provider.HistoryAction, level provider.HistoryLevel, note string) {
	if pi.HistorySink == nil {
		return
	}
	step := pi.Step()
	pi.HistorySink(provider.HistoryEvent{
		Level:               level,
		Action:              action,
		JobID:               pi.JobID,
		TotalSteps:          pi.TotalSteps,
		StepIndex:           pi.StepIndex,
		Progress:            step.Progress(),
		StandardOutput:      step.StandardOutput(),
		StandardError:       step.StandardError(),
		Arguments:           pi.Arguments,
		ProviderName:        pi.ServiceProvider.Name(languageUndetermined),
		ProviderVersion:     pi.ServiceProvider.Version(),
		ProviderDescription: pi.ServiceProvider.Description(languageUndetermined),
		Note:                note,
	})
}

// Execute runs the bound processor to completion.
func (pi *ProcessInstance) Execute(ctx context.Context) {
	if !pi.beginRunning() {
		return
	}

	ctx, span := tracing.Tracer(nil).Start(ctx, "instance.execute",
		trace.WithAttributes(
			attribute.String("snapshot.track", fmt.Sprint([]int(pi.SnapshotTrack))),
			attribute.String("provider.id", pi.ServiceProvider.ID()),
			attribute.Int("job.id", pi.JobID),
		),
	)
	defer span.End()

	pi.setCancelHook(pi.processor.Cancel)
	pi.mirror(snapshot.ProcessRunning, nil, nil, nil, nil)
	pi.emit(provider.ActionStarted, provider.LevelInfo, "")

	cb := &callback{
		step:     pi.Step(),
		lockable: pi.Lockable,
		onLock: func(comment string) {
			pi.lockMu.Lock()
			pi.pendingLock = &snapshot.Lock{Source: pi.ServiceProvider.ID(), Comment: comment}
			pi.lockMu.Unlock()
		},
	}

	result := runProcessor(ctx, pi.Step(), pi.processor, cb, pi.Framework, pi.Arguments)
	final := pi.finishTerminal(stateFromProvider(result))
	span.SetAttributes(attribute.String("instance.state", string(final)))

	step := pi.Step()
	progress := step.Progress()
	stdout := step.StandardOutput()
	stderr := step.StandardError()
	note := step.Note()
	pi.mirror(processStateOf(final), &progress, &stdout, &stderr, &note)

	pi.lockMu.Lock()
	lock := pi.pendingLock
	pi.lockMu.Unlock()
	if lock != nil && pi.SnapshotStore != nil {
		_ = pi.SnapshotStore.Lock(pi.SnapshotTrack, lock.Source, lock.Comment)
	}

	pi.emit(historyAction(final), historyLevel(final), note)
}

// Cancel requests cooperative cancellation of the bound processor.
func (pi *ProcessInstance) Cancel() {
	pi.cancel()
	if pi.isTerminal() {
		pi.mirror(snapshot.ProcessCanceled, nil, nil, nil, nil)
		pi.emit(provider.ActionCanceled, provider.LevelWarn, "")
	}
}

func historyAction(s State) provider.HistoryAction {
	switch s {
	case StateCompleted:
		return provider.ActionCompleted
	case StateCanceled:
		return provider.ActionCanceled
	default:
		return provider.ActionInterrupted
	}
}

func historyLevel(s State) provider.HistoryLevel {
	switch s {
	case StateCompleted:
		return provider.LevelInfo
	case StateCanceled:
		return provider.LevelWarn
	default:
		return provider.LevelError
	}
}

var _ Instance = (*ProcessInstance)(nil)
