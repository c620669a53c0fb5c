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
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/OCR4all/ocr4all-app-sub002/internal/engine"
	"github.com/OCR4all/ocr4all-app-sub002/internal/job"
	"github.com/OCR4all/ocr4all-app-sub002/internal/scheduler"
)

var listCluster string

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled, running and completed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *engine.Engine) error {
				container, err := jobsFor(e.Scheduler, listCluster)
				if err != nil {
					return err
				}
				printContainer(container)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&listCluster, "cluster", "", "expr-lang cluster filter expression")
	return cmd
}

func jobsFor(sched *scheduler.Scheduler, cluster string) (scheduler.Container, error) {
	if cluster == "" {
		return sched.Jobs(), nil
	}
	return sched.JobsFiltered([]string{cluster}, nil, "")
}

func printContainer(c scheduler.Container) {
	wide := wideLayout()
	printSection("SCHEDULED", c.Scheduled, wide)
	printSection("RUNNING", c.Running, wide)
	printSection("DONE", c.Done, wide)
}

func printSection(title string, jobs []*job.Core, wide bool) {
	fmt.Println(headerStyle.Render(title))
	if len(jobs) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, j := range jobs {
		row := fmt.Sprintf("  %-6d %-10s %s", j.ID(), renderState(j.State()), j.ShortDescription())
		if wide {
			row += lipgloss.NewStyle().Faint(true).Render(fmt.Sprintf("  [%s/%s]", j.Category(), j.TargetName()))
		}
		fmt.Println(row)
	}
}
