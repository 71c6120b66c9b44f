package cli

import (
	"github.com/spf13/cobra"

	"github.com/chrisallenlane/andon/internal/workflow"
)

// newArchReviewCmd creates the arch-review command
func newArchReviewCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "arch-review <path|glob>...",
		Short: "Architectural review of modules, findings only",
		Long: `Review the matched modules for architectural problems without changing
anything. Large scopes fan out across parallel reviewers once the unit
count passes the fanout threshold; findings land in the progress store
and the run report.

Examples:
  andon arch-review 'internal/**'
  andon arch-review services/ --fanout-threshold 30`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, workflow.KindArchReview, args, &flags)
		},
	}

	addRunFlags(cmd, &flags)
	return cmd
}
