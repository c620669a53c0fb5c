// Package provider defines the external ServiceProvider/Processor contract
// the engine consumes (spec.md §6). Implementations (OCR, layout analysis,
// preprocessing service providers) are out of scope; only the interfaces
// and the framework/argument records the engine builds for them live here.
package provider

import (
	"context"

	"golang.org/x/text/language"
)

// State is the terminal/in-flight state a Processor.Execute call returns.
type State string

const (
	StateCompleted  State = "completed"
	StateCanceled   State = "canceled"
	StateInterrupted State = "interrupted"
)

// Callback is handed to a Processor so it can report progress and, for
// process-typed instances, request a snapshot lock.
type Callback interface {
	UpdatedProgress(f float64)
	UpdatedStandardOutput(s string)
	UpdatedStandardError(s string)
	// LockSnapshot requests that the bound snapshot be locked with comment
	// once the instance completes. Honored only if the instance is
	// snapshot-lockable; otherwise a note records that the request was
	// ignored.
	LockSnapshot(comment string)
}

// Processor is one running execution of a ServiceProvider.
type Processor interface {
	// Execute runs the processor body. May return an error, which the
	// engine treats as interrupted and records into the journal note.
	Execute(ctx context.Context, callback Callback, fw Framework, args ModelArgument) (State, error)

	// Cancel must be idempotent and safe to call from a detached
	// goroutine; errors are ignored by the engine.
	Cancel()
}

// ServiceProvider describes a pluggable unit of computation (OCR, layout
// analysis, preprocessing, postcorrection, training, generic tool).
type ServiceProvider interface {
	ID() string
	Name(tag language.Tag) string
	Version() string
	Description(tag language.Tag) string
	// ThreadPool optionally names a workspace pool this provider prefers.
	ThreadPool() string
	NewProcessor() Processor
}

// Framework is the bundle of paths, identifiers and the per-run temporary
// directory handed to a provider (spec.md §6).
type Framework struct {
	OS              string
	UID             int
	GID             int
	ApplicationName string
	ApplicationLabel string
	DateFormat      string
	User            string

	ProjectPath   string
	SandboxPath   string
	SnapshotPath  string
	WorkspacePath string

	SnapshotTrack []int

	// Training-specific, empty for non-training instances.
	Dataset             string
	ModelConfiguration   string

	TemporaryDirectory string
}

// ArgumentKind enumerates ModelArgument value types.
type ArgumentKind string

const (
	ArgumentBoolean          ArgumentKind = "boolean"
	ArgumentDecimal          ArgumentKind = "decimal"
	ArgumentInteger          ArgumentKind = "integer"
	ArgumentString           ArgumentKind = "string"
	ArgumentSelect           ArgumentKind = "select"
	ArgumentImage            ArgumentKind = "image"
	ArgumentRecognitionModel ArgumentKind = "recognition_model"
)

// Argument is one flat, typed service-provider argument.
type Argument struct {
	Key    string
	Kind   ArgumentKind
	Bool   bool
	Number float64
	Text   string
	// Values holds multi-value entries for select/image/recognitionModel.
	Values []string
}

// ModelArgument is the flat list of typed arguments handed to a Processor,
// deserialized from the service-provider argument record. Null entries are
// skipped by the caller building it (see NewModelArgument).
type ModelArgument []Argument

// NewModelArgument builds a ModelArgument skipping nil entries.
func NewModelArgument(entries ...*Argument) ModelArgument {
	out := make(ModelArgument, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out
}

// HistoryLevel is the severity of a history event.
type HistoryLevel string

const (
	LevelInfo  HistoryLevel = "info"
	LevelWarn  HistoryLevel = "warn"
	LevelError HistoryLevel = "error"
)

// HistoryAction is the phase transition a history event reports.
type HistoryAction string

const (
	ActionStarted     HistoryAction = "started"
	ActionCompleted   HistoryAction = "completed"
	ActionCanceled    HistoryAction = "canceled"
	ActionInterrupted HistoryAction = "interrupted"
)

// HistoryEvent is emitted by process Instances on each phase transition
// (spec.md §6).
type HistoryEvent struct {
	Level               HistoryLevel
	Action              HistoryAction
	JobID               int
	TotalSteps          int
	StepIndex           int // 1-based
	Progress            float64
	StandardOutput      string
	StandardError       string
	Arguments           ModelArgument
	ProviderName        string
	ProviderVersion     string
	ProviderDescription string
	Note                string
}
