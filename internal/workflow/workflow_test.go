package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisallenlane/andon/internal/agent"
	"github.com/chrisallenlane/andon/internal/config"
)

func TestGetBuiltin(t *testing.T) {
	dir := t.TempDir()

	def, err := Get(dir, KindIterate)
	require.NoError(t, err)
	assert.Equal(t, agent.RoleImplementer, def.Role)
	assert.Equal(t, ScopeTracker, def.Scope)
	assert.True(t, def.Mutating)
	assert.False(t, def.AllowFanout)
}

func TestGetUnknown(t *testing.T) {
	_, err := Get(t.TempDir(), Kind("yolo"))
	assert.Error(t, err)
}

func TestOnlyAnalysisWorkflowsFanOut(t *testing.T) {
	for _, kind := range Kinds() {
		def, err := Get(t.TempDir(), kind)
		require.NoError(t, err)
		if def.AllowFanout {
			assert.False(t, def.Mutating, "workflow %s fans out but mutates", kind)
		}
	}
}

func TestOverrideApplied(t *testing.T) {
	dir := t.TempDir()
	wf := filepath.Join(dir, config.AndonDir, "workflows")
	require.NoError(t, os.MkdirAll(wf, 0o755))
	override := "default_aggression: maximum\nid_prefix: CHORE\n"
	require.NoError(t, os.WriteFile(filepath.Join(wf, "refactor.yaml"), []byte(override), 0o644))

	def, err := Get(dir, KindRefactor)
	require.NoError(t, err)
	assert.Equal(t, config.AggressionMaximum, def.DefaultAggression)
	assert.Equal(t, "CHORE", def.IDPrefix)
	// untouched fields keep builtin values
	assert.Equal(t, agent.RoleRefactorer, def.Role)
}

func TestOverrideDoesNotMutateBuiltin(t *testing.T) {
	dir := t.TempDir()
	wf := filepath.Join(dir, config.AndonDir, "workflows")
	require.NoError(t, os.MkdirAll(wf, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(wf, "iterate.yaml"), []byte("id_prefix: X\n"), 0o644))

	_, err := Get(dir, KindIterate)
	require.NoError(t, err)

	fresh, err := Get(t.TempDir(), KindIterate)
	require.NoError(t, err)
	assert.Equal(t, "TICK", fresh.IDPrefix)
}

func TestOverrideRejectsMutatingFanout(t *testing.T) {
	dir := t.TempDir()
	wf := filepath.Join(dir, config.AndonDir, "workflows")
	require.NoError(t, os.MkdirAll(wf, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(wf, "iterate.yaml"), []byte("allow_fanout: true\n"), 0o644))

	_, err := Get(dir, KindIterate)
	assert.Error(t, err)
}
