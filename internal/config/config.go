// Package config provides configuration management for andon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chrisallenlane/andon/internal/errors"
	"github.com/chrisallenlane/andon/internal/util"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
	// AndonDir is the andon configuration directory.
	AndonDir = ".andon"
)

// Aggression is a resolved, enumerated configuration input. What the
// workflow documents call "use judgment" becomes an explicit ceiling the
// operator selects once at run start.
type Aggression string

const (
	AggressionMaximum Aggression = "maximum"
	AggressionHigh    Aggression = "high"
	AggressionLow     Aggression = "low"
)

// ValidAggressions returns all valid aggression values.
func ValidAggressions() []Aggression {
	return []Aggression{AggressionMaximum, AggressionHigh, AggressionLow}
}

// IsValidAggression returns true for a recognized aggression level.
func IsValidAggression(a Aggression) bool {
	switch a {
	case AggressionMaximum, AggressionHigh, AggressionLow:
		return true
	default:
		return false
	}
}

// AgentConfig controls how agent subprocesses are invoked.
type AgentConfig struct {
	// Command is the agent CLI binary (default: "claude").
	Command string `yaml:"command"`
	// Model passed to the agent CLI, empty for the CLI's default.
	Model string `yaml:"model,omitempty"`
	// Timeout bounds each invocation. A timed-out invocation consumes
	// one attempt.
	Timeout time.Duration `yaml:"timeout"`
}

// VerificationConfig controls the verification gate.
type VerificationConfig struct {
	// Command is the shell command that decides pass/fail for an attempt.
	Command string `yaml:"command"`
	// Timeout bounds each verification run.
	Timeout time.Duration `yaml:"timeout"`
}

// GitConfig controls version control scoping.
type GitConfig struct {
	// BranchPrefix for unit scope branches (default: "andon/").
	BranchPrefix string `yaml:"branch_prefix"`
	// CommitPrefix for commit messages (default: "[andon]").
	CommitPrefix string `yaml:"commit_prefix"`
	// BaseBranch is the integration branch units merge into.
	BaseBranch string `yaml:"base_branch"`
}

// TrackerConfig selects and configures the issue source for ticket scopes.
type TrackerConfig struct {
	// Kind is one of: jira, github, gitlab, file.
	Kind string `yaml:"kind,omitempty"`

	Jira struct {
		BaseURL  string `yaml:"base_url,omitempty"`
		Email    string `yaml:"email,omitempty"`
		APIToken string `yaml:"api_token,omitempty"`
		Project  string `yaml:"project,omitempty"`
	} `yaml:"jira,omitempty"`

	GitHub struct {
		Owner string `yaml:"owner,omitempty"`
		Repo  string `yaml:"repo,omitempty"`
		Token string `yaml:"token,omitempty"`
	} `yaml:"github,omitempty"`

	GitLab struct {
		BaseURL   string `yaml:"base_url,omitempty"`
		ProjectID string `yaml:"project_id,omitempty"`
		Token     string `yaml:"token,omitempty"`
	} `yaml:"gitlab,omitempty"`

	// File is a path to a YAML ticket file for offline runs.
	File string `yaml:"file,omitempty"`
}

// ProgressConfig controls the durable progress store.
type ProgressConfig struct {
	// Path of the progress file, relative to the project root.
	Path string `yaml:"path"`
	// TrackInVCS is the operator's choice to commit the progress file or
	// keep it ignored. andon only reports the choice; it never forces it.
	TrackInVCS bool `yaml:"track_in_vcs"`
}

// Config represents the andon configuration.
type Config struct {
	// Version is the config file version.
	Version int `yaml:"version"`

	// MaxAttempts bounds repair attempts per unit (default: 3).
	MaxAttempts int `yaml:"max_attempts"`

	// Aggression ceiling for change-making workflows.
	Aggression Aggression `yaml:"aggression"`

	// FanoutThreshold is the unit count above which analysis-only
	// workflows may partition and scan in parallel (default: 15).
	FanoutThreshold int `yaml:"fanout_threshold"`

	Agent        AgentConfig        `yaml:"agent"`
	Verification VerificationConfig `yaml:"verification"`
	Git          GitConfig          `yaml:"git"`
	Tracker      TrackerConfig      `yaml:"tracker,omitempty"`
	Progress     ProgressConfig     `yaml:"progress"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version:         1,
		MaxAttempts:     3,
		Aggression:      AggressionLow,
		FanoutThreshold: 15,
		Agent: AgentConfig{
			Command: "claude",
			Timeout: 15 * time.Minute,
		},
		Verification: VerificationConfig{
			Command: "go test ./...",
			Timeout: 10 * time.Minute,
		},
		Git: GitConfig{
			BranchPrefix: "andon/",
			CommitPrefix: "[andon]",
			BaseBranch:   "main",
		},
		Progress: ProgressConfig{
			Path:       filepath.Join(AndonDir, "progress.json"),
			TrackInVCS: false,
		},
	}
}

// Load reads the config from projectDir/.andon/config.yaml, applying
// defaults for anything unset. A missing file returns the defaults.
func Load(projectDir string) (*Config, error) {
	path := filepath.Join(projectDir, AndonDir, ConfigFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.ErrConfigInvalid(path, "not valid YAML").WithCause(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to projectDir/.andon/config.yaml.
func (c *Config) Save(projectDir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(projectDir, AndonDir, ConfigFileName)
	return util.AtomicWriteFile(path, data, 0644)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.ErrConfigInvalid("max_attempts", "must be at least 1")
	}
	if !IsValidAggression(c.Aggression) {
		return errors.ErrConfigInvalid("aggression",
			fmt.Sprintf("%q is not one of maximum, high, low", c.Aggression))
	}
	if c.FanoutThreshold < 1 {
		return errors.ErrConfigInvalid("fanout_threshold", "must be at least 1")
	}
	if c.Agent.Command == "" {
		return errors.ErrConfigInvalid("agent.command", "must not be empty")
	}
	if c.Verification.Command == "" {
		return errors.ErrConfigInvalid("verification.command", "must not be empty")
	}
	if c.Agent.Timeout <= 0 {
		return errors.ErrConfigInvalid("agent.timeout", "must be positive")
	}
	if c.Verification.Timeout <= 0 {
		return errors.ErrConfigInvalid("verification.timeout", "must be positive")
	}
	switch c.Tracker.Kind {
	case "", "jira", "github", "gitlab", "file":
	default:
		return errors.ErrConfigInvalid("tracker.kind",
			fmt.Sprintf("%q is not one of jira, github, gitlab, file", c.Tracker.Kind))
	}
	return nil
}
