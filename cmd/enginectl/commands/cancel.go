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
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/OCR4all/ocr4all-app-sub002/internal/engine"
)

var cancelYes bool

func newCancelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a scheduled or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}

			if !cancelYes {
				confirmed, err := confirmCancel(id)
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Println("aborted")
					return nil
				}
			}

			return withEngine(func(e *engine.Engine) error {
				state, err := e.Scheduler.Cancel(id)
				if err != nil {
					return err
				}
				fmt.Printf("job %d -> %s\n", id, renderState(state))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&cancelYes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func confirmCancel(id int) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Cancel job %d?", id)).
				Affirmative("Yes, cancel").
				Negative("No, leave it running").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}
