// Command havenmem is a thin CLI collaborator (§6): it wires the engine's
// interfaces to concrete backends from configuration and drives an
// interactive read-eval loop against one agent.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes (§6).
const (
	exitOK          = 0
	exitConfigError = 2
	exitBackendDown = 3
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		switch {
		case isConfigError(err):
			return exitConfigError
		case isBackendError(err):
			return exitBackendDown
		case isInterrupted(err):
			return exitInterrupted
		default:
			return 1
		}
	}
	return exitOK
}

// NewRootCmd builds the command tree: a root command carrying the shared
// flags, plus the "run" subcommand that actually starts the session loop.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "havenmem",
		Short: "havenmem — a hierarchical memory engine for a long-running conversational agent",
	}

	runCmd := newRunCmd()
	rootCmd.AddCommand(runCmd)

	return rootCmd
}
