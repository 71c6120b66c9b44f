package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chrisallenlane/andon/internal/agent"
	"github.com/chrisallenlane/andon/internal/config"
	"github.com/chrisallenlane/andon/internal/db"
	"github.com/chrisallenlane/andon/internal/errors"
	"github.com/chrisallenlane/andon/internal/gate"
	"github.com/chrisallenlane/andon/internal/git"
	"github.com/chrisallenlane/andon/internal/orchestrator"
	"github.com/chrisallenlane/andon/internal/progress"
	"github.com/chrisallenlane/andon/internal/tracker"
	"github.com/chrisallenlane/andon/internal/unit"
	"github.com/chrisallenlane/andon/internal/workflow"
)

// runFlags are the flags shared by every workflow command.
type runFlags struct {
	maxAttempts     int
	aggression      string
	verify          string
	timeout         time.Duration
	fanoutThreshold int
	dryRun          bool
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().IntVar(&f.maxAttempts, "max-attempts", 0, "max repair attempts per unit (default from config)")
	cmd.Flags().StringVar(&f.aggression, "aggression", "", "change aggression ceiling: maximum, high, low")
	cmd.Flags().StringVar(&f.verify, "verify", "", "verification command (overrides config)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "per-invocation agent timeout")
	cmd.Flags().IntVar(&f.fanoutThreshold, "fanout-threshold", 0, "unit count above which analysis fans out")
	cmd.Flags().Bool("dry-run", false, "resolve and print the planned units without running anything")
}

// loadConfig loads the project config with env and flag overrides
// applied, most specific last.
func loadConfig(cmd *cobra.Command, f *runFlags) (*config.Config, string, error) {
	projectDir, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("get working directory: %w", err)
	}

	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, "", err
	}

	// Environment overrides via viper (ANDON_MAX_ATTEMPTS etc.)
	if v := viper.GetInt("max_attempts"); v > 0 {
		cfg.MaxAttempts = v
	}
	if v := viper.GetString("aggression"); v != "" {
		cfg.Aggression = config.Aggression(v)
	}
	if v := viper.GetString("agent.command"); v != "" {
		cfg.Agent.Command = v
	}

	if f.maxAttempts > 0 {
		cfg.MaxAttempts = f.maxAttempts
	}
	if f.aggression != "" {
		cfg.Aggression = config.Aggression(f.aggression)
	}
	if f.verify != "" {
		cfg.Verification.Command = f.verify
	}
	if f.timeout > 0 {
		cfg.Agent.Timeout = f.timeout
	}
	if f.fanoutThreshold > 0 {
		cfg.FanoutThreshold = f.fanoutThreshold
	}
	f.dryRun, _ = cmd.Flags().GetBool("dry-run")

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, projectDir, nil
}

// runWorkflow is the shared execution path behind every workflow
// subcommand: resolve scope, run all units, print the report, and map
// the outcome onto the exit code contract.
func runWorkflow(cmd *cobra.Command, kind workflow.Kind, inputs []string, f *runFlags) error {
	cfg, projectDir, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}

	def, err := workflow.Get(projectDir, kind)
	if err != nil {
		return err
	}

	var src tracker.Source
	if def.Scope == workflow.ScopeTracker {
		src, err = buildTracker(cfg, projectDir)
		if err != nil {
			return err
		}
	}

	seq := unit.NewSequenceStore(filepath.Join(projectDir, config.AndonDir, "sequences.yaml"))
	units, err := orchestrator.ResolveScope(cmd.Context(), orchestrator.ScopeRequest{
		Definition: def,
		Inputs:     inputs,
		ProjectDir: projectDir,
		Tracker:    src,
		Sequences:  seq,
	})
	if err != nil {
		return err
	}

	invoker := agent.NewCLIInvoker(
		agent.WithCommand(cfg.Agent.Command),
		agent.WithModel(cfg.Agent.Model),
		agent.WithTimeout(cfg.Agent.Timeout),
	)

	var g gate.Gate
	switch def.Gate {
	case workflow.GateAgent:
		g = gate.NewAgentGate(invoker, def.Instructions)
	default:
		g = gate.NewScriptGate(cfg.Verification.Command, gate.WithTimeout(cfg.Verification.Timeout))
	}

	vcs := git.New(projectDir, git.Config{
		BranchPrefix: cfg.Git.BranchPrefix,
		CommitPrefix: cfg.Git.CommitPrefix,
		BaseBranch:   cfg.Git.BaseBranch,
	}, nil)

	opts := []orchestrator.Option{
		orchestrator.WithDryRun(f.dryRun),
		orchestrator.WithLogger(slog.Default()),
	}
	stopPrinter := func() {}
	if !quiet && !jsonOut {
		pub, stop := startProgressPrinter(cmd.OutOrStdout())
		stopPrinter = stop
		opts = append(opts, orchestrator.WithPublisher(pub))
	}
	if def.TrackProgress {
		opts = append(opts, orchestrator.WithProgressStore(
			progress.NewStore(filepath.Join(projectDir, cfg.Progress.Path))))
	}
	if !f.dryRun {
		if hist, err := db.Open(filepath.Join(projectDir, config.AndonDir, db.FileName)); err == nil {
			defer hist.Close()
			opts = append(opts, orchestrator.WithRecorder(hist))
		} else {
			slog.Warn("run history disabled", "error", err)
		}
	}

	o := orchestrator.New(cfg, def, invoker, g, vcs, projectDir, opts...)
	report, err := o.RunAll(cmd.Context(), units)
	stopPrinter()
	if err != nil {
		return err
	}

	if err := printReport(cmd, report); err != nil {
		return err
	}
	if code := report.ExitCode(); code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}

func printReport(cmd *cobra.Command, report *orchestrator.Report) error {
	if jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), report.Render())
	return nil
}

// buildTracker constructs the configured issue source.
func buildTracker(cfg *config.Config, projectDir string) (tracker.Source, error) {
	switch cfg.Tracker.Kind {
	case "jira":
		return tracker.NewJiraSource(tracker.JiraConfig{
			BaseURL:  cfg.Tracker.Jira.BaseURL,
			Email:    cfg.Tracker.Jira.Email,
			APIToken: cfg.Tracker.Jira.APIToken,
		})
	case "github":
		return tracker.NewGitHubSource(tracker.GitHubConfig{
			Owner: cfg.Tracker.GitHub.Owner,
			Repo:  cfg.Tracker.GitHub.Repo,
			Token: cfg.Tracker.GitHub.Token,
		})
	case "gitlab":
		return tracker.NewGitLabSource(tracker.GitLabConfig{
			BaseURL:   cfg.Tracker.GitLab.BaseURL,
			ProjectID: cfg.Tracker.GitLab.ProjectID,
			Token:     cfg.Tracker.GitLab.Token,
		})
	case "file":
		return tracker.NewFileSource(filepath.Join(projectDir, cfg.Tracker.File)), nil
	case "":
		return nil, errors.ErrConfigInvalid("tracker.kind",
			"this workflow needs an issue tracker; set tracker.kind in .andon/config.yaml")
	default:
		return nil, errors.ErrConfigInvalid("tracker.kind", fmt.Sprintf("unknown tracker %q", cfg.Tracker.Kind))
	}
}
