package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chrisallenlane/andon/internal/config"
	"github.com/chrisallenlane/andon/internal/db"
	"github.com/chrisallenlane/andon/internal/errors"
)

// newInitCmd creates the init command
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize andon in the current repository",
		Long: `Create the .andon directory with a default configuration.

The generated config sets the agent command, verification command,
attempt budget and git conventions; edit .andon/config.yaml to adjust.

Examples:
  andon init
  andon init --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}

			andonDir := filepath.Join(cwd, config.AndonDir)
			if _, err := os.Stat(filepath.Join(andonDir, config.ConfigFileName)); err == nil && !force {
				return errors.ErrAlreadyInitialized(andonDir)
			}

			if err := os.MkdirAll(andonDir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", andonDir, err)
			}
			cfg := config.Default()
			if err := cfg.Save(cwd); err != nil {
				return err
			}
			if err := writeGitignore(andonDir, cfg); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Initialized andon in %s\n\n", andonDir)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  1. Review .andon/config.yaml (agent command, verification command)")
			fmt.Fprintln(out, "  2. Configure a tracker for ticket workflows (tracker.kind)")
			fmt.Fprintln(out, "  3. Decide whether to commit .andon/progress.json (progress.track_in_vcs)")
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Overwrite existing configuration")
	return cmd
}

// writeGitignore keeps the ephemeral .andon files out of version
// control. The progress file is ignored too unless the operator opted
// to track it.
func writeGitignore(andonDir string, cfg *config.Config) error {
	lines := []string{db.FileName, "sequences.yaml"}
	if !cfg.Progress.TrackInVCS {
		lines = append(lines, filepath.Base(cfg.Progress.Path))
	}
	content := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(filepath.Join(andonDir, ".gitignore"), []byte(content), 0o644)
}
