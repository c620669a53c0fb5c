package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/OCR4all/ocr4all-app-sub002/internal/config"
	"github.com/OCR4all/ocr4all-app-sub002/internal/job"
	"github.com/OCR4all/ocr4all-app-sub002/internal/journal"
	"github.com/OCR4all/ocr4all-app-sub002/internal/pool"
	"github.com/OCR4all/ocr4all-app-sub002/internal/provider"
	"github.com/OCR4all/ocr4all-app-sub002/internal/scheduler"
)

type fakeProcessor struct {
	result  provider.State
	execute func(cb provider.Callback)
	gate    chan struct{}
}

func (p *fakeProcessor) Execute(ctx context.Context, cb provider.Callback, fw provider.Framework, args provider.ModelArgument) (provider.State, error) {
	if p.execute != nil {
		p.execute(cb)
	}
	if p.gate != nil {
		<-p.gate
	}
	return p.result, nil
}
func (p *fakeProcessor) Cancel() {
	if p.gate != nil {
		close(p.gate)
	}
}

type fakeProvider struct {
	id   string
	proc *fakeProcessor
}

func (f *fakeProvider) ID() string                       { return f.id }
func (f *fakeProvider) Name(language.Tag) string         { return f.id }
func (f *fakeProvider) Version() string                  { return "1.0" }
func (f *fakeProvider) Description(language.Tag) string  { return "" }
func (f *fakeProvider) ThreadPool() string                { return "" }
func (f *fakeProvider) NewProcessor() provider.Processor  { return f.proc }

func testRegistry() *pool.Registry {
	return pool.NewRegistry(&config.Config{
		Pools: map[string]config.PoolConfig{
			"task":     {CorePoolSize: 4},
			"work":     {CorePoolSize: 4},
			"workflow": {CorePoolSize: 4},
			"training": {CorePoolSize: 4},
		},
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func newTask(groupKey string, result provider.State) *job.Core {
	return job.NewTask(job.TaskConfig{
		GroupKey:        groupKey,
		ServiceProvider: &fakeProvider{id: "p", proc: &fakeProcessor{result: result}},
	})
}

func TestTwoParallelIndependentTasksBothComplete(t *testing.T) {
	sc := scheduler.New(testRegistry())
	a := newTask("sandbox-a", provider.StateCompleted)
	b := newTask("sandbox-b", provider.StateCompleted)

	sc.Schedule(a)
	sc.Schedule(b)

	waitFor(t, time.Second, func() bool {
		return a.State() == job.StateCompleted && b.State() == job.StateCompleted
	})

	assert.Equal(t, float64(1), a.Journal().Progress())
	assert.Equal(t, float64(1), b.Journal().Progress())
}

func TestSequentialBlocksParallel(t *testing.T) {
	sc := scheduler.New(testRegistry())

	sGate := make(chan struct{})
	sJob := job.NewTask(job.TaskConfig{
		Mode:            job.ModeSequential,
		ServiceProvider: &fakeProvider{id: "seq", proc: &fakeProcessor{result: provider.StateCompleted, gate: sGate}},
	})
	p := newTask("sandbox-p", provider.StateCompleted)

	sc.Schedule(sJob)
	sc.Schedule(p)

	waitFor(t, time.Second, func() bool { return sJob.State() == job.StateRunning })
	assert.Equal(t, job.StateScheduled, p.State(), "p must stay queued while s runs alone")

	close(sGate)
	waitFor(t, time.Second, func() bool {
		return sJob.State() == job.StateCompleted && p.State() == job.StateCompleted
	})
}

func TestDependencySkippingBySharedSandbox(t *testing.T) {
	sc := scheduler.New(testRegistry())

	aGate := make(chan struct{})
	a := job.NewTask(job.TaskConfig{
		GroupKey:        "sandbox-x",
		ServiceProvider: &fakeProvider{id: "a", proc: &fakeProcessor{result: provider.StateCompleted, gate: aGate}},
	})
	b := newTask("sandbox-x", provider.StateCompleted)
	c := newTask("sandbox-y", provider.StateCompleted)

	sc.Schedule(a)
	sc.Schedule(b)
	sc.Schedule(c)

	waitFor(t, time.Second, func() bool { return a.State() == job.StateRunning })
	waitFor(t, time.Second, func() bool { return c.State() == job.StateCompleted })
	assert.Equal(t, job.StateScheduled, b.State(), "b must stay queued while a holds sandbox-x")

	close(aGate)
	waitFor(t, time.Second, func() bool { return b.State() == job.StateCompleted })
}

func TestSharedSandboxNotDispatchedTogetherFromSameTick(t *testing.T) {
	sc := scheduler.New(testRegistry())
	sc.Pause()

	aGate := make(chan struct{})
	bGate := make(chan struct{})
	a := job.NewTask(job.TaskConfig{
		GroupKey:        "sandbox-x",
		ServiceProvider: &fakeProvider{id: "a", proc: &fakeProcessor{result: provider.StateCompleted, gate: aGate}},
	})
	b := job.NewTask(job.TaskConfig{
		GroupKey:        "sandbox-x",
		ServiceProvider: &fakeProvider{id: "b", proc: &fakeProcessor{result: provider.StateCompleted, gate: bGate}},
	})

	sc.Schedule(a)
	sc.Schedule(b)
	sc.Run()

	waitFor(t, time.Second, func() bool {
		return a.State() == job.StateRunning || b.State() == job.StateRunning
	})
	// give the dispatch walk a chance to misbehave before asserting
	time.Sleep(20 * time.Millisecond)
	running := 0
	if a.State() == job.StateRunning {
		running++
	}
	if b.State() == job.StateRunning {
		running++
	}
	assert.Equal(t, 1, running, "only one job holding sandbox-x may run at a time, even when both were selected in the same dispatch walk")

	close(aGate)
	close(bGate)
	waitFor(t, time.Second, func() bool {
		return a.State() == job.StateCompleted && b.State() == job.StateCompleted
	})
}

func TestReorderDispatchOrder(t *testing.T) {
	sc := scheduler.New(pool.NewRegistry(&config.Config{
		Pools: map[string]config.PoolConfig{"task": {CorePoolSize: 1}},
	}))
	sc.Pause()

	gates := make([]chan struct{}, 5)
	jobs := make([]*job.Core, 5)
	orderCh := make(chan int, 5)
	for i := 0; i < 5; i++ {
		gates[i] = make(chan struct{})
		idx := i
		jobs[i] = job.NewTask(job.TaskConfig{
			GroupKey: "",
			ServiceProvider: &fakeProvider{id: "p", proc: &fakeProcessor{
				result: provider.StateCompleted,
				execute: func(cb provider.Callback) {
					orderCh <- idx
				},
				gate: gates[idx],
			}},
		})
	}
	for _, j := range jobs {
		sc.Schedule(j)
	}

	require.NoError(t, sc.RescheduleBegin(jobs[3].ID())) // J4 to front
	require.NoError(t, sc.Reschedule(jobs[1].ID(), 4))   // J2 to back

	sc.Run()

	expected := []int{3, 0, 2, 4, 1}
	for _, want := range expected {
		got := <-orderCh
		assert.Equal(t, want, got)
		close(gates[got])
	}
}

func TestCancelRunningJob(t *testing.T) {
	sc := scheduler.New(testRegistry())
	gate := make(chan struct{})
	cancelSeen := make(chan struct{}, 1)
	t1 := job.NewTask(job.TaskConfig{
		ServiceProvider: &fakeProvider{id: "long", proc: &fakeProcessor{
			result: provider.StateCompleted,
			execute: func(cb provider.Callback) {
				cb.UpdatedProgress(0.5)
			},
			gate: gate,
		}},
	})

	sc.Schedule(t1)
	waitFor(t, time.Second, func() bool { return t1.Journal().Progress() > 0 })

	go func() {
		<-gate
		cancelSeen <- struct{}{}
	}()

	state, err := sc.Cancel(t1.ID())
	require.NoError(t, err)
	assert.Equal(t, job.StateCanceled, state)

	waitFor(t, time.Second, func() bool {
		_, hasEnd := t1.End()
		return hasEnd
	})

	select {
	case <-cancelSeen:
	case <-time.After(time.Second):
		t.Fatal("processor cancel was never invoked")
	}

	state2, err := sc.Cancel(t1.ID())
	require.NoError(t, err)
	assert.Equal(t, job.StateCanceled, state2)
}

func TestUnknownJobIDIsInvalidArgument(t *testing.T) {
	sc := scheduler.New(testRegistry())
	_, err := sc.Cancel(999)
	require.Error(t, err)
}

func TestWorkJobScheduledAndExecuted(t *testing.T) {
	sc := scheduler.New(testRegistry())
	done := make(chan struct{})
	w := job.NewWork(job.WorkConfig{
		Owner: "alice",
		Execute: func(ctx context.Context, step *journal.Step) error {
			close(done)
			return nil
		},
	})
	sc.Schedule(w)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("work job never ran")
	}
	waitFor(t, time.Second, func() bool { return w.State() == job.StateCompleted })

	container, err := sc.JobsFiltered(nil, nil, "alice")
	require.NoError(t, err)
	assert.Len(t, container.Done, 1)
}
