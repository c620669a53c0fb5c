// Command enginectl is a thin Cobra driver over the job engine's Go API.
// It starts a fresh engine per invocation, performs one action, and tears
// back down — there is no REST server or daemon behind it.
package main

import (
	"fmt"
	"os"

	"github.com/OCR4all/ocr4all-app-sub002/cmd/enginectl/commands"
)

func main() {
	root := commands.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
