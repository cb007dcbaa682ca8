// File: main.go
package main

import (
	"github.com/stapply-ai/evals/cmd"
)

// main is the entry point for the evaluation harness.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
