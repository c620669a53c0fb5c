package instance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/OCR4all/ocr4all-app-sub002/internal/instance"
	"github.com/OCR4all/ocr4all-app-sub002/internal/journal"
	"github.com/OCR4all/ocr4all-app-sub002/internal/provider"
	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshot"
	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshotstore/memory"
	"github.com/OCR4all/ocr4all-app-sub002/internal/training"
)

// fakeProcessor is a scripted provider.Processor used across instance tests.
type fakeProcessor struct {
	result   provider.State
	err      error
	canceled bool
	execute  func(cb provider.Callback)
}

func (p *fakeProcessor) Execute(ctx context.Context, cb provider.Callback, fw provider.Framework, args provider.ModelArgument) (provider.State, error) {
	if p.execute != nil {
		p.execute(cb)
	}
	return p.result, p.err
}

func (p *fakeProcessor) Cancel() { p.canceled = true }

// fakeProvider is a scripted provider.ServiceProvider wrapping one
// fakeProcessor instance.
type fakeProvider struct {
	id   string
	proc *fakeProcessor
}

func (f *fakeProvider) ID() string                            { return f.id }
func (f *fakeProvider) Name(language.Tag) string               { return "fake" }
func (f *fakeProvider) Version() string                       { return "1.0" }
func (f *fakeProvider) Description(language.Tag) string        { return "a fake provider" }
func (f *fakeProvider) ThreadPool() string                    { return "" }
func (f *fakeProvider) NewProcessor() provider.Processor       { return f.proc }

func TestActionInstanceCompletes(t *testing.T) {
	step := &journal.Step{}
	proc := &fakeProcessor{result: provider.StateCompleted}
	ai := instance.NewActionInstance(&fakeProvider{id: "tool.noop", proc: proc}, nil, provider.Framework{}, step)

	assert.Equal(t, instance.StateInitialized, ai.State())
	ai.Execute(context.Background())
	assert.Equal(t, instance.StateCompleted, ai.State())
	_, hasStart := ai.Start()
	_, hasEnd := ai.End()
	assert.True(t, hasStart)
	assert.True(t, hasEnd)
}

func TestActionInstanceProcessorErrorInterrupts(t *testing.T) {
	step := &journal.Step{}
	proc := &fakeProcessor{err: errors.New("boom")}
	ai := instance.NewActionInstance(&fakeProvider{id: "tool.fail", proc: proc}, nil, provider.Framework{}, step)

	ai.Execute(context.Background())
	assert.Equal(t, instance.StateInterrupted, ai.State())
	assert.Contains(t, step.Note(), "boom")
}

func TestActionInstancePanicInterrupts(t *testing.T) {
	step := &journal.Step{}
	proc := &fakeProcessor{execute: func(cb provider.Callback) { panic("kaboom") }}
	ai := instance.NewActionInstance(&fakeProvider{id: "tool.panic", proc: proc}, nil, provider.Framework{}, step)

	ai.Execute(context.Background())
	assert.Equal(t, instance.StateInterrupted, ai.State())
	assert.Contains(t, step.Note(), "kaboom")
}

func TestActionInstanceCancelBeforeExecuteIsTerminalNoOp(t *testing.T) {
	step := &journal.Step{}
	proc := &fakeProcessor{result: provider.StateCompleted}
	ai := instance.NewActionInstance(&fakeProvider{id: "tool.noop", proc: proc}, nil, provider.Framework{}, step)

	ai.Cancel()
	assert.Equal(t, instance.StateCanceled, ai.State())

	ai.Execute(context.Background())
	assert.Equal(t, instance.StateCanceled, ai.State(), "execute after cancel must stay a no-op")
}

func TestProcessInstanceMirrorsSnapshotAndHistory(t *testing.T) {
	store := memory.New()
	root, err := store.CreateRoot("wf-1", snapshot.TypeLauncher, "root", "", "", nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateProcess(root.Track, snapshot.ProcessCompleted, nil, nil, nil, nil))

	child, err := store.CreateDerived(root.Track, snapshot.TypeOCR, "p1", "", "ocr.tesseract", nil)
	require.NoError(t, err)

	var events []provider.HistoryEvent
	step := &journal.Step{}
	proc := &fakeProcessor{result: provider.StateCompleted, execute: func(cb provider.Callback) {
		cb.UpdatedProgress(1)
		cb.UpdatedStandardOutput("done")
	}}
	pi := instance.NewProcessInstance(&fakeProvider{id: "ocr.tesseract", proc: proc}, nil, provider.Framework{}, store, child.Track, true, step)
	pi.JobID = 7
	pi.HistorySink = func(e provider.HistoryEvent) { events = append(events, e) }

	pi.Execute(context.Background())

	assert.Equal(t, instance.StateCompleted, pi.State())
	got, err := store.Get(child.Track)
	require.NoError(t, err)
	assert.Equal(t, snapshot.ProcessCompleted, got.Process)
	assert.InDelta(t, 1.0, got.Progress, 1e-9)
	assert.Equal(t, "done", got.StandardOutput)

	require.Len(t, events, 2)
	assert.Equal(t, provider.ActionStarted, events[0].Action)
	assert.Equal(t, provider.ActionCompleted, events[1].Action)
	assert.Equal(t, 7, events[1].JobID)
}

func TestProcessInstanceLockRequestPersistsOnlyWhenLockable(t *testing.T) {
	store := memory.New()
	root, err := store.CreateRoot("wf-2", snapshot.TypeLauncher, "root", "", "", nil)
	require.NoError(t, err)

	step := &journal.Step{}
	proc := &fakeProcessor{result: provider.StateCompleted, execute: func(cb provider.Callback) {
		cb.LockSnapshot("final result")
	}}
	pi := instance.NewProcessInstance(&fakeProvider{id: "ocr.tesseract", proc: proc}, nil, provider.Framework{}, store, root.Track, true, step)
	pi.Execute(context.Background())

	got, err := store.Get(root.Track)
	require.NoError(t, err)
	require.NotNil(t, got.Lock)
	assert.Equal(t, "final result", got.Lock.Comment)
}

func TestProcessInstanceLockRequestIgnoredWhenNotLockable(t *testing.T) {
	store := memory.New()
	root, err := store.CreateRoot("wf-3", snapshot.TypeLauncher, "root", "", "", nil)
	require.NoError(t, err)

	step := &journal.Step{}
	proc := &fakeProcessor{result: provider.StateCompleted, execute: func(cb provider.Callback) {
		cb.LockSnapshot("final result")
	}}
	pi := instance.NewProcessInstance(&fakeProvider{id: "ocr.tesseract", proc: proc}, nil, provider.Framework{}, store, root.Track, false, step)
	pi.Execute(context.Background())

	got, err := store.Get(root.Track)
	require.NoError(t, err)
	assert.Nil(t, got.Lock)
	assert.Contains(t, step.Note(), "lock request ignored")
}

func TestTrainingInstanceUpdatesEngineOnCompletion(t *testing.T) {
	store := training.NewMemoryStore()
	_, err := store.Create("engine-1", "model-1")
	require.NoError(t, err)

	step := &journal.Step{}
	proc := &fakeProcessor{result: provider.StateCompleted, execute: func(cb provider.Callback) {
		cb.UpdatedProgress(1)
	}}
	ti := instance.NewTrainingInstance(&fakeProvider{id: "training.engine", proc: proc}, nil, provider.Framework{}, store, "engine-1", step)
	ti.Execute(context.Background())

	e, err := store.Get("engine-1")
	require.NoError(t, err)
	assert.Equal(t, training.StateCompleted, e.State)
	assert.InDelta(t, 1.0, e.Progress, 1e-9)
}

func TestTrainingInstanceCancelUpdatesEngine(t *testing.T) {
	store := training.NewMemoryStore()
	_, err := store.Create("engine-2", "model-1")
	require.NoError(t, err)

	step := &journal.Step{}
	proc := &fakeProcessor{}
	ti := instance.NewTrainingInstance(&fakeProvider{id: "training.engine", proc: proc}, nil, provider.Framework{}, store, "engine-2", step)

	ti.Cancel()
	assert.Equal(t, instance.StateCanceled, ti.State())

	e, err := store.Get("engine-2")
	require.NoError(t, err)
	assert.Equal(t, training.StateCanceled, e.State)
}

func TestWorkInstanceCompletesAndFails(t *testing.T) {
	step := &journal.Step{}
	wi := instance.NewWorkInstance(func(ctx context.Context, s *journal.Step) error {
		s.SetProgress(1)
		return nil
	}, nil, step)
	wi.Execute(context.Background())
	assert.Equal(t, instance.StateCompleted, wi.State())

	step2 := &journal.Step{}
	wi2 := instance.NewWorkInstance(func(ctx context.Context, s *journal.Step) error {
		return errors.New("work failed")
	}, nil, step2)
	wi2.Execute(context.Background())
	assert.Equal(t, instance.StateInterrupted, wi2.State())
	assert.Contains(t, step2.Note(), "work failed")
}

func TestWorkInstanceCancelInvokesHook(t *testing.T) {
	called := make(chan struct{}, 1)
	step := &journal.Step{}
	wi := instance.NewWorkInstance(func(ctx context.Context, s *journal.Step) error {
		<-ctx.Done()
		return ctx.Err()
	}, func() { called <- struct{}{} }, step)

	go wi.Execute(context.Background())
	// Poll briefly for Execute to reach the running state before canceling.
	for i := 0; i < 1000 && wi.State() != instance.StateRunning; i++ {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, instance.StateRunning, wi.State())
	wi.Cancel()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("expected cancel hook to be invoked")
	}
	assert.Equal(t, instance.StateCanceled, wi.State())
}
