package cli

import (
	"github.com/spf13/cobra"

	"github.com/chrisallenlane/andon/internal/workflow"
)

// newIterateCmd creates the iterate command
func newIterateCmd() *cobra.Command {
	var flags runFlags
	var query string
	var labels []string

	cmd := &cobra.Command{
		Use:   "iterate",
		Short: "Work through tracker tickets one at a time",
		Long: `Fetch open tickets from the configured issue tracker and work through
them sequentially. Each ticket becomes one unit: implemented on its own
branch, verified, and merged only when verification passes.

Examples:
  andon iterate --query "project = SHOP AND sprint = 12"
  andon iterate --label backend --label bug
  andon iterate --max-attempts 5 --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := []string{query}
			inputs = append(inputs, labels...)
			return runWorkflow(cmd, workflow.KindIterate, inputs, &flags)
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "tracker query (JQL for Jira, label query otherwise)")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "only tickets carrying all of these labels")
	addRunFlags(cmd, &flags)
	return cmd
}
