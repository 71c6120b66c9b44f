// Package cli implements the andon command-line interface.
package cli

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chrisallenlane/andon/internal/errors"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	jsonOut bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "andon",
	Short: "Sequential multi-agent task orchestration",
	Long: `andon works through a queue of bounded tasks one at a time: invoke an
agent, verify the result, retry with feedback, and stop the line when
something no agent should paper over.

Every unit of work is isolated on its own branch. Verified work merges;
failed work reverts; anything requiring human judgment pulls the andon
cord and halts the run.

Quick start:
  andon init                          Initialize andon in this repository
  andon iterate --query "sprint-12"   Work through tracker tickets
  andon refactor 'internal/**/*.go'   Refactor files in batches
  andon status                        Show progress and recent runs`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitCodeError carries a specific process exit code up through
// cobra's error return.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// Execute runs the root command and returns the process exit code:
// 0 full success, 2 finished with skipped units, 1 escalation or error.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var ec *exitCodeError
	if stderrors.As(err, &ec) {
		return ec.code
	}
	if ae := errors.AsAndonError(err); ae != nil {
		fmt.Fprintln(os.Stderr, ae.UserMessage())
	} else {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .andon/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newIterateCmd())
	rootCmd.AddCommand(newRefactorCmd())
	rootCmd.AddCommand(newArchReviewCmd())
	rootCmd.AddCommand(newProjectCmd())
	rootCmd.AddCommand(newTestMutateCmd())
	rootCmd.AddCommand(newTestCoverCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".andon")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("ANDON")
	// Nested keys map to env vars with underscores, e.g. agent.command
	// becomes ANDON_AGENT_COMMAND.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
