package cli

import (
	"github.com/spf13/cobra"

	"github.com/chrisallenlane/andon/internal/workflow"
)

// newTestMutateCmd creates the test-mutate command
func newTestMutateCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "test-mutate <path|glob>...",
		Short: "Mutation-test files and strengthen tests against survivors",
		Long: `Mutation-test the matched files one at a time, strengthening tests
until candidate mutations stop surviving. Kill counts and surviving
mutants persist in the progress store, so the campaign resumes exactly
where it left off across sessions.

Examples:
  andon test-mutate 'internal/pricing/*.go'
  andon test-mutate pkg/auth/token.go --max-attempts 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, workflow.KindTestMutate, args, &flags)
		},
	}

	addRunFlags(cmd, &flags)
	return cmd
}
