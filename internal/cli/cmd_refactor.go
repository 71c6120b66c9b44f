package cli

import (
	"github.com/spf13/cobra"

	"github.com/chrisallenlane/andon/internal/workflow"
)

// newRefactorCmd creates the refactor command
func newRefactorCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "refactor <path|glob>...",
		Short: "Refactor files in reviewable batches",
		Long: `Refactor the matched files one unit at a time. Simpler files run first
so early failures surface cheaply. The aggression ceiling bounds how far
each change may go; behavior must not change either way.

Examples:
  andon refactor 'internal/**/*.go'
  andon refactor pkg/parser.go pkg/lexer.go --aggression high
  andon refactor 'cmd/**' --verify "make test lint"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, workflow.KindRefactor, args, &flags)
		},
	}

	addRunFlags(cmd, &flags)
	return cmd
}
