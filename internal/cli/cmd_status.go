package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/chrisallenlane/andon/internal/config"
	"github.com/chrisallenlane/andon/internal/db"
	"github.com/chrisallenlane/andon/internal/progress"
)

// newStatusCmd creates the status command
func newStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tracked progress and recent runs",
		Long: `Show the durable progress store (for tracked workflows like mutation
testing) and the most recent run history.

Examples:
  andon status
  andon status --runs 20
  andon status --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			cfg, err := config.Load(projectDir)
			if err != nil {
				return err
			}

			store := progress.NewStore(filepath.Join(projectDir, cfg.Progress.Path))
			state, err := store.Load()
			if err != nil {
				return err
			}

			if jsonOut {
				data, err := json.MarshalIndent(state, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, state.SummaryView())

			hist, err := db.Open(filepath.Join(projectDir, config.AndonDir, db.FileName))
			if err != nil {
				return nil
			}
			defer hist.Close()

			runs, err := hist.RecentRuns(limit)
			if err != nil || len(runs) == 0 {
				return nil
			}
			fmt.Fprintf(out, "\nRecent runs:\n")
			for _, r := range runs {
				dur := "running"
				if r.FinishedAt != nil {
					dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
				}
				fmt.Fprintf(out, "  %-10s %-12s %-10s %3d units  %s\n",
					shortRunID(r.ID), r.Workflow, r.Outcome, r.Units, dur)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "runs", 10, "number of recent runs to show")
	return cmd
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
