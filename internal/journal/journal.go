// Package journal implements the multi-step progress/output/error record a
// running job updates and observers read (spec.md §3, §4.1).
package journal

import "sync"

// FurtherInformationKind tags the per-step further information variant.
type FurtherInformationKind string

const (
	// KindServiceProvider describes the running service provider id.
	KindServiceProvider FurtherInformationKind = "service_provider"
	// KindWorkflowTrack additionally carries the workflow snapshot track.
	KindWorkflowTrack FurtherInformationKind = "workflow_track"
)

// FurtherInformation is a tagged variant describing the running service
// provider id and, for workflow tasks, the snapshot track.
type FurtherInformation struct {
	Kind              FurtherInformationKind
	ServiceProviderID string
	Track             []int
}

// Step is one entry of a Journal.
type Step struct {
	mu                 sync.RWMutex
	progress           float64
	standardOutput     string
	standardError      string
	note               string
	furtherInformation *FurtherInformation
}

// Progress returns the step's clamped progress in [0,1].
func (s *Step) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// SetProgress clamps f to [0,1] and stores it.
func (s *Step) SetProgress(f float64) {
	if f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = f
}

// StandardOutput returns the last-written standard output text.
func (s *Step) StandardOutput() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.standardOutput
}

// SetStandardOutput replaces the step's standard output text.
func (s *Step) SetStandardOutput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.standardOutput = text
}

// StandardError returns the last-written standard error text.
func (s *Step) StandardError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.standardError
}

// SetStandardError replaces the step's standard error text.
func (s *Step) SetStandardError(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.standardError = text
}

// Note returns the step's note.
func (s *Step) Note() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.note
}

// SetNote replaces the step's note.
func (s *Step) SetNote(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note = text
}

// AddNote appends text to the note, separated by a newline if a prior note
// is present.
func (s *Step) AddNote(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.note == "" {
		s.note = text
		return
	}
	s.note = s.note + "\n" + text
}

// FurtherInformation returns the step's tagged further-information value,
// or nil if unset.
func (s *Step) FurtherInformation() *FurtherInformation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.furtherInformation
}

// SetFurtherInformation sets the step's tagged further-information value.
func (s *Step) SetFurtherInformation(v *FurtherInformation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.furtherInformation = v
}

// ResetFurtherInformation clears the step's further-information value.
func (s *Step) ResetFurtherInformation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.furtherInformation = nil
}

// Journal is an ordered sequence of Steps with a current index.
type Journal struct {
	mu    sync.RWMutex
	steps []*Step
	index int
}

// New creates a Journal with n steps (n must be positive). The current
// index starts at 0 for a single-step journal, -1 for a multi-step one.
func New(n int) *Journal {
	if n < 1 {
		n = 1
	}
	steps := make([]*Step, n)
	for i := range steps {
		steps[i] = &Step{}
	}
	idx := -1
	if n == 1 {
		idx = 0
	}
	return &Journal{steps: steps, index: idx}
}

// Len returns the number of steps.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.steps)
}

// Step returns the step at index i, or nil if out of range.
func (j *Journal) Step(i int) *Step {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if i < 0 || i >= len(j.steps) {
		return nil
	}
	return j.steps[i]
}

// Index returns the current step index.
func (j *Journal) Index() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.index
}

// CurrentStep returns the step at the current index, or nil if the index is
// -1 (no step visited yet in a multi-step journal).
func (j *Journal) CurrentStep() *Step {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.index < 0 || j.index >= len(j.steps) {
		return nil
	}
	return j.steps[j.index]
}

// SetIndex clamps i into [0, len-1] and sets it as current. A single-step
// journal always pins to 0.
func (j *Journal) SetIndex(i int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.setIndexLocked(i)
}

func (j *Journal) setIndexLocked(i int) {
	if len(j.steps) == 1 {
		j.index = 0
		return
	}
	if i < 0 {
		i = 0
	} else if i >= len(j.steps) {
		i = len(j.steps) - 1
	}
	j.index = i
}

// NextIndex advances the current index by one, never past len-1, promoting
// an unset (-1) index to 0. Returns the new index.
func (j *Journal) NextIndex() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.index < 0 {
		j.index = 0
	} else if j.index < len(j.steps)-1 {
		j.index++
	}
	return j.index
}

// ResetIndex resets the current index to its initial value (0 for
// single-step journals, -1 otherwise).
func (j *Journal) ResetIndex() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.steps) == 1 {
		j.index = 0
	} else {
		j.index = -1
	}
}

// Progress returns the arithmetic mean of all step progresses.
func (j *Journal) Progress() float64 {
	j.mu.RLock()
	steps := j.steps
	j.mu.RUnlock()

	if len(steps) == 0 {
		return 0
	}
	var sum float64
	for _, s := range steps {
		sum += s.Progress()
	}
	return sum / float64(len(steps))
}

// Complete sets every step's progress to 1.
func (j *Journal) Complete() {
	j.mu.RLock()
	steps := j.steps
	j.mu.RUnlock()

	for _, s := range steps {
		s.SetProgress(1)
	}
}

// IsComplete reports whether every step has progress 1.
func (j *Journal) IsComplete() bool {
	j.mu.RLock()
	steps := j.steps
	j.mu.RUnlock()

	for _, s := range steps {
		if s.Progress() < 1 {
			return false
		}
	}
	return true
}
