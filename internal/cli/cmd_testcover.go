package cli

import (
	"github.com/spf13/cobra"

	"github.com/chrisallenlane/andon/internal/workflow"
)

// newTestCoverCmd creates the test-cover command
func newTestCoverCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "test-cover <path|glob>...",
		Short: "Fill coverage gaps with new tests",
		Long: `Write tests for uncovered behavior in the matched files, one file per
unit. New tests must pass verification before they merge; files that
cannot be covered within the attempt budget are skipped and reported.

Examples:
  andon test-cover 'internal/**/*.go'
  andon test-cover pkg/codec.go --verify "go test -race ./..."`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, workflow.KindTestCover, args, &flags)
		},
	}

	addRunFlags(cmd, &flags)
	return cmd
}
