package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/4beshinji/wise-magpie/internal/executor"
	"github.com/4beshinji/wise-magpie/internal/sandbox"
	"github.com/4beshinji/wise-magpie/internal/scheduler"
	"github.com/4beshinji/wise-magpie/internal/vcs"
)

var configDirFlag string

var rootCmd = &cobra.Command{
	Use:   "wise-magpie",
	Short: "Opportunistically run an AI coding assistant during your idle time",
	Long: `wise-magpie watches for idle periods between your own interactive use of
the Assistant CLI and spends part of that idle time working through a queue
of background tasks against your repository, staying within your message
quota and a daily cost budget.

Run 'wise-magpie config init' to get started, then 'wise-magpie start' to
launch the daemon.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "override the wise-magpie config directory (default: $WISE_MAGPIE_CONFIG_DIR or ~/.config/wise-magpie)")
}

// exitCode maps an error to the CLI's exit-code contract: 1 for user
// errors, 2 for precondition failures (dirty tree, daemon already
// running, not a repository), 3 for a missing external tool.
func exitCode(err error) int {
	var already *scheduler.ErrAlreadyRunning
	switch {
	case errors.Is(err, executor.ErrAssistantNotFound):
		return 3
	case errors.As(err, &already),
		errors.Is(err, sandbox.ErrDirtyWorkingTree),
		errors.Is(err, vcs.ErrNotARepository):
		return 2
	default:
		return 1
	}
}

// Execute runs the root command, printing any error and exiting non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
