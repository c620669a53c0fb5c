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

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/OCR4all/ocr4all-app-sub002/internal/engine"
	"github.com/OCR4all/ocr4all-app-sub002/internal/job"
	"github.com/OCR4all/ocr4all-app-sub002/internal/journal"
)

var (
	submitName     string
	submitDuration time.Duration
	submitOwner    string
)

// newSubmitCommand schedules a demo Work job whose body sleeps for
// --duration (standing in for real ServiceProvider-backed work, which the
// CLI has no way to construct) and waits for it to reach a terminal state.
// Ctrl+C cancels the job; the command still returns only once the job's
// body has returned.
func newSubmitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a demo job and watch it run to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *engine.Engine) error {
				j := job.NewWork(job.WorkConfig{
					ShortDescription: submitName,
					Owner:            submitOwner,
					Execute: func(ctx context.Context, step *journal.Step) error {
						return simulateWork(ctx, step, submitDuration)
					},
				})

				e.Scheduler.Schedule(j)
				fmt.Printf("submitted job %d (%s)\n", j.ID(), j.ShortDescription())

				return watchJob(e, j)
			})
		},
	}
	cmd.Flags().StringVar(&submitName, "name", "demo-job", "short description for the job")
	cmd.Flags().DurationVar(&submitDuration, "duration", 3*time.Second, "how long the simulated work runs")
	cmd.Flags().StringVar(&submitOwner, "owner", "", "owner tag for cluster/owner filtering")
	return cmd
}

// simulateWork reports progress in ten steps over d, honoring cancellation.
func simulateWork(ctx context.Context, step *journal.Step, d time.Duration) error {
	const ticks = 10
	interval := d / ticks
	for i := 1; i <= ticks; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		step.SetProgress(float64(i) / ticks)
	}
	return nil
}

// watchJob prints the events the scheduler's Observe subscription delivers
// (one per job, published when its body returns) until one reports a
// terminal state, forwarding SIGINT as a cancellation request.
func watchJob(e *engine.Engine, j *job.Core) error {
	events, unsubscribe := e.Scheduler.Observe(j.ID())
	defer unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			fmt.Printf("  job %d: %s (progress %.0f%%)\n", ev.JobID, renderState(ev.State), ev.Progress*100)
			if ev.State.IsTerminal() {
				return nil
			}
		case <-sigCh:
			fmt.Println("interrupt received, cancelling job")
			if _, err := e.Scheduler.Cancel(j.ID()); err != nil {
				return err
			}
		}
	}
}
