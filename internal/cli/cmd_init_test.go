package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisallenlane/andon/internal/config"
	"github.com/chrisallenlane/andon/internal/errors"
)

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitCreatesConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out, err := runCommand(t, newInitCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized andon")

	cfgPath := filepath.Join(dir, config.AndonDir, config.ConfigFileName)
	_, err = os.Stat(cfgPath)
	require.NoError(t, err)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxAttempts)

	ignore, err := os.ReadFile(filepath.Join(dir, config.AndonDir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(ignore), "andon.db")
	assert.Contains(t, string(ignore), "progress.json")
}

func TestInitRefusesReinit(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := runCommand(t, newInitCmd())
	require.NoError(t, err)

	_, err = runCommand(t, newInitCmd())
	require.Error(t, err)
	ae := errors.AsAndonError(err)
	require.NotNil(t, ae)
	assert.Equal(t, errors.CodeAlreadyInitialized, ae.Code)
}

func TestInitForceReinitializes(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := runCommand(t, newInitCmd())
	require.NoError(t, err)

	_, err = runCommand(t, newInitCmd(), "--force")
	require.NoError(t, err)
}
