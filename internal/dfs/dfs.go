// Package dfs implements the Workflow DFS executor (spec.md §4.6): a
// depth-first traversal of a processor-path tree that chains Instances and
// maps tree positions onto snapshot parent/child relations.
package dfs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/OCR4all/ocr4all-app-sub002/internal/instance"
	"github.com/OCR4all/ocr4all-app-sub002/internal/journal"
	"github.com/OCR4all/ocr4all-app-sub002/internal/provider"
	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshot"
	"github.com/OCR4all/ocr4all-app-sub002/internal/telemetry/tracing"
)

// PathNode is one node of the processor-path tree handed to Run: the
// provider to apply at this position, the snapshot metadata to record, and
// its children.
type PathNode struct {
	ProcessorID string
	Type        snapshot.Type
	Label       string
	Description string
	Children    []PathNode
}

// IsLeaf reports whether n has no children.
func (n PathNode) IsLeaf() bool { return len(n.Children) == 0 }

// CountNodes returns the total number of nodes across paths, recursively —
// the Workflow job's step count (spec.md §4.3: "Steps count equals the
// number of nodes").
func CountNodes(paths []PathNode) int {
	n := 0
	for _, p := range paths {
		n++
		n += CountNodes(p.Children)
	}
	return n
}

// Deps bundles the collaborators Run needs at every node.
type Deps struct {
	Providers func(id string) (provider.ServiceProvider, bool)
	Store     snapshot.Store
	Framework provider.Framework
	// Arguments optionally supplies per-node instance arguments; nil means
	// no arguments.
	Arguments func(n PathNode) provider.ModelArgument
	// HistorySink, JobID are forwarded onto each node's ProcessInstance.
	HistorySink func(provider.HistoryEvent)
	JobID       int
	// BindCancelable lets the caller forward cooperative cancellation to
	// whichever Instance is currently running (the caller's cancel hook
	// is set to the Instance's Cancel method once it is known).
	BindCancelable func(inst *instance.ProcessInstance)
	// Canceled is polled before visiting each node; returning true
	// short-circuits the traversal (spec.md §4.6's cancel flag).
	Canceled func() bool
	// OnProgress, if set, is called with the snapshot Track of each node
	// whose Instance completes, letting the caller record a checkpoint of
	// the furthest point reached (spec.md §5's resume hook).
	OnProgress func(track snapshot.Track)
}

// Run executes paths depth-first under parent, advancing j.NextIndex()
// exactly once per visited node (never derived from child-count
// arithmetic — a known bug in one source variant that spec.md explicitly
// calls out to avoid repeating).
func Run(ctx context.Context, j *journal.Journal, parent *snapshot.Snapshot, paths []PathNode, deps Deps) instance.State {
	for _, node := range paths {
		if deps.Canceled != nil && deps.Canceled() {
			return instance.StateCanceled
		}

		nodeCtx, span := tracing.Tracer(nil).Start(ctx, "workflow.node",
			trace.WithAttributes(
				attribute.String("snapshot.parent_track", fmt.Sprint([]int(parent.Track))),
				attribute.String("processor.id", node.ProcessorID),
				attribute.String("node.label", node.Label),
			),
		)

		j.NextIndex()
		step := j.CurrentStep()

		sp, ok := deps.Providers(node.ProcessorID)
		if !ok {
			if step != nil {
				step.AddNote(fmt.Sprintf("unknown service provider %q", node.ProcessorID))
			}
			span.End()
			return instance.StateInterrupted
		}

		var args provider.ModelArgument
		if deps.Arguments != nil {
			args = deps.Arguments(node)
		}

		child, err := deps.Store.CreateDerived(parent.Track, node.Type, node.Label, node.Description, sp.ID(), args)
		if err != nil {
			if step != nil {
				step.AddNote(fmt.Sprintf("creating derived snapshot: %v", err))
			}
			span.End()
			return instance.StateInterrupted
		}
		span.SetAttributes(attribute.String("snapshot.track", fmt.Sprint([]int(child.Track))))

		inst := instance.NewProcessInstance(sp, args, deps.Framework, deps.Store, child.Track, node.IsLeaf(), step)
		inst.JobID = deps.JobID
		inst.TotalSteps = j.Len()
		inst.StepIndex = j.Index() + 1
		if deps.HistorySink != nil {
			inst.HistorySink = deps.HistorySink
		}
		if deps.BindCancelable != nil {
			deps.BindCancelable(inst)
		}

		inst.Execute(nodeCtx)
		span.SetAttributes(attribute.String("instance.state", string(inst.State())))
		span.End()
		if inst.State() != instance.StateCompleted {
			return inst.State()
		}
		if deps.OnProgress != nil {
			deps.OnProgress(child.Track)
		}

		if result := Run(nodeCtx, j, child, node.Children, deps); result != instance.StateCompleted {
			return result
		}
	}
	return instance.StateCompleted
}
