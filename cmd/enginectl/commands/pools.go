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

	"github.com/spf13/cobra"

	"github.com/OCR4all/ocr4all-app-sub002/internal/engine"
	"github.com/OCR4all/ocr4all-app-sub002/internal/pool"
)

func newPoolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "Show the configured thread pools and their utilization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *engine.Engine) error {
				fmt.Println(headerStyle.Render("POOLS"))
				for _, cat := range []pool.Category{pool.CategoryWork, pool.CategoryTask, pool.CategoryWorkflow, pool.CategoryTraining} {
					p := e.Pools.Category(cat)
					if p == nil {
						continue
					}
					fmt.Printf("  %-10s %d/%d in use\n", p.Name(), p.InUse(), p.Size())
				}
				return nil
			})
		},
	}
}
