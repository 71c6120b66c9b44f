package cli

import (
	"github.com/spf13/cobra"

	"github.com/chrisallenlane/andon/internal/workflow"
)

// newProjectCmd creates the project command
func newProjectCmd() *cobra.Command {
	var flags runFlags
	var query string

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Execute a project blueprint item by item",
		Long: `Work through a project's blueprint tickets in dependency order. Each
item is implemented as a complete, self-contained change with tests.
Blocked items wait for their dependencies; a cycle halts before any
agent runs.

Examples:
  andon project --query "project = PLATFORM AND type = Story"
  andon project --query "epic-42" --aggression high`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, workflow.KindProject, []string{query}, &flags)
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "tracker query selecting the blueprint items")
	addRunFlags(cmd, &flags)
	return cmd
}
