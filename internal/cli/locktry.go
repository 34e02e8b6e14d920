package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beastmode/nfscheck/internal/probe"
)

// NewLockTryCommand creates the hidden locktry command: one non-blocking
// exclusive flock attempt on the given path, with the outcome reported
// through the exit code. The locking probe re-executes the harness with
// this command so the attempt comes from an independent process table.
//
// Exit codes: 0 the lock would block, 1 the lock was unexpectedly
// acquired, 2 the attempt itself failed.
func NewLockTryCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "locktry <path>",
		Short:         "Attempt a non-blocking exclusive lock (internal)",
		Hidden:        true,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := probe.TryLockExclusive(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "lock attempt failed", err)
			}
			if status == probe.LockAcquired {
				return NewExitError(ExitFailure, "lock unexpectedly acquired")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "would block")
			return nil
		},
	}
}
