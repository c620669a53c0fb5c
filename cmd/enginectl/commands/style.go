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
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/OCR4all/ocr4all-app-sub002/internal/job"
)

var (
	statusRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // blue
	statusCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	statusCanceled  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	statusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	statusQueued    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

func renderState(s job.State) string {
	switch s {
	case job.StateRunning:
		return statusRunning.Render(string(s))
	case job.StateCompleted:
		return statusCompleted.Render(string(s))
	case job.StateCanceled:
		return statusCanceled.Render(string(s))
	case job.StateInterrupted:
		return statusFailed.Render(string(s))
	default:
		return statusQueued.Render(string(s))
	}
}

// wideLayout reports whether the terminal is wide enough for the full
// column set; narrower terminals fall back to a condensed table.
func wideLayout() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return true
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return true
	}
	return w >= 100
}
