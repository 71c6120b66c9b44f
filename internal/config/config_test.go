package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, AggressionLow, cfg.Aggression)
	assert.Equal(t, 15, cfg.FanoutThreshold)
	assert.Equal(t, "claude", cfg.Agent.Command)
	assert.Equal(t, "andon/", cfg.Git.BranchPrefix)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err, "missing config is the first-run case, not an error")
	assert.Equal(t, Default().MaxAttempts, cfg.MaxAttempts)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, AndonDir), 0755))

	content := `
max_attempts: 5
aggression: high
verification:
  command: "make check"
  timeout: 2m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, AndonDir, ConfigFileName), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, AggressionHigh, cfg.Aggression)
	assert.Equal(t, "make check", cfg.Verification.Command)
	assert.Equal(t, 2*time.Minute, cfg.Verification.Timeout)
	// Unset fields keep defaults
	assert.Equal(t, "claude", cfg.Agent.Command)
	assert.Equal(t, 15, cfg.FanoutThreshold)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, AndonDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, AndonDir, ConfigFileName), []byte("{not yaml"), 0644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.MaxAttempts = 7
	cfg.Aggression = AggressionMaximum
	require.NoError(t, cfg.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.MaxAttempts)
	assert.Equal(t, AggressionMaximum, loaded.Aggression)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"bad aggression", func(c *Config) { c.Aggression = "reckless" }},
		{"zero fanout threshold", func(c *Config) { c.FanoutThreshold = 0 }},
		{"empty agent command", func(c *Config) { c.Agent.Command = "" }},
		{"empty verify command", func(c *Config) { c.Verification.Command = "" }},
		{"zero agent timeout", func(c *Config) { c.Agent.Timeout = 0 }},
		{"unknown tracker kind", func(c *Config) { c.Tracker.Kind = "bugzilla" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestIsValidAggression(t *testing.T) {
	for _, a := range ValidAggressions() {
		assert.True(t, IsValidAggression(a))
	}
	assert.False(t, IsValidAggression(Aggression("medium")))
}
