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
	"time"

	"github.com/spf13/cobra"

	"github.com/OCR4all/ocr4all-app-sub002/internal/engine"
)

var configPath string
var snapshotDSN string

// NewRootCommand builds the enginectl root command and all subcommands.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "enginectl",
		Short:         "Drive the OCR4all job engine from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "engine.yaml", "path to the pool configuration file")
	cmd.PersistentFlags().StringVar(&snapshotDSN, "snapshot-store", "memory", `snapshot store DSN ("memory" or "sqlite:<path>")`)

	cmd.AddCommand(newSubmitCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newCancelCommand())
	cmd.AddCommand(newPauseCommand())
	cmd.AddCommand(newResumeCommand())
	cmd.AddCommand(newPoolsCommand())

	return cmd
}

// withEngine constructs an engine from the persistent flags, runs fn, and
// closes the engine with a short drain timeout — the lifetime each
// subcommand needs for a single demo action.
func withEngine(fn func(e *engine.Engine) error) error {
	e, err := engine.New(engine.Options{
		ConfigPath:  configPath,
		SnapshotDSN: snapshotDSN,
	})
	if err != nil {
		return err
	}

	runErr := fn(e)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = e.Close(ctx, 2*time.Second)

	return runErr
}
