package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	andonerr "github.com/chrisallenlane/andon/internal/errors"
	"github.com/chrisallenlane/andon/internal/tracker"
	"github.com/chrisallenlane/andon/internal/unit"
	"github.com/chrisallenlane/andon/internal/workflow"
)

type stubSource struct {
	tickets []tracker.Ticket
	err     error
}

func (s *stubSource) Name() string { return "stub" }
func (s *stubSource) Fetch(ctx context.Context, query string) ([]tracker.Ticket, error) {
	return s.tickets, s.err
}

func fileDef() *workflow.Definition {
	return &workflow.Definition{Kind: workflow.KindRefactor, Scope: workflow.ScopeFiles, IDPrefix: "REF", Instructions: "refactor"}
}

func trackerDef() *workflow.Definition {
	return &workflow.Definition{Kind: workflow.KindIterate, Scope: workflow.ScopeTracker, IDPrefix: "TICK", Instructions: "implement"}
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestResolveFilesWithGlobs(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"pkg/a.go":      "line\n",
		"pkg/sub/b.go":  "line\nline\n",
		"pkg/README.md": "docs\n",
	})

	units, err := ResolveScope(context.Background(), ScopeRequest{
		Definition: fileDef(),
		Inputs:     []string{"pkg/**/*.go"},
		ProjectDir: dir,
	})
	require.NoError(t, err)

	require.Len(t, units, 2)
	var paths []string
	for _, u := range units {
		require.Len(t, u.Paths, 1)
		paths = append(paths, u.Paths[0])
	}
	assert.ElementsMatch(t, []string{"pkg/a.go", "pkg/sub/b.go"}, paths)
	// Simpler files sort first.
	assert.Equal(t, "pkg/a.go", units[0].Paths[0])
}

func TestResolveFilesLiteralPath(t *testing.T) {
	dir := writeTree(t, map[string]string{"main.go": "package main\n"})

	units, err := ResolveScope(context.Background(), ScopeRequest{
		Definition: fileDef(),
		Inputs:     []string{"main.go"},
		ProjectDir: dir,
	})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, unit.StatusPending, units[0].Status)
	assert.Equal(t, 1, units[0].Complexity)
}

func TestResolveFilesDerivesStableIDs(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.go": "x\n", "b.go": "x\n"})
	seq := unit.NewSequenceStore(filepath.Join(dir, ".andon", "sequences.yaml"))
	req := ScopeRequest{
		Definition: fileDef(),
		Inputs:     []string{"*.go"},
		ProjectDir: dir,
		Sequences:  seq,
	}

	units, err := ResolveScope(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "REF-A-GO", units[0].ID)
	assert.Equal(t, "REF-B-GO", units[1].ID)

	// Resolving the same scope again yields the same units in the same
	// order, so a second session recognizes first-session work.
	again, err := ResolveScope(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, again, 2)
	for i := range units {
		assert.Equal(t, units[i].ID, again[i].ID)
	}
}

func TestResolveEmptyScope(t *testing.T) {
	dir := t.TempDir()
	_, err := ResolveScope(context.Background(), ScopeRequest{
		Definition: fileDef(),
		Inputs:     []string{"*.zig"},
		ProjectDir: dir,
	})
	require.Error(t, err)
	ae := andonerr.AsAndonError(err)
	require.NotNil(t, ae)
	assert.Equal(t, andonerr.CodeScopeEmpty, ae.Code)
}

func TestResolveTrackerBuildsUnitsFromTickets(t *testing.T) {
	src := &stubSource{tickets: []tracker.Ticket{
		{ID: "PROJ-2", Title: "Second", Dependencies: []string{"PROJ-1"}},
		{ID: "PROJ-1", Title: "First", AcceptanceCriteria: []string{"tests pass"}},
	}}

	units, err := ResolveScope(context.Background(), ScopeRequest{
		Definition: trackerDef(),
		Inputs:     []string{"project = PROJ"},
		ProjectDir: t.TempDir(),
		Tracker:    src,
	})
	require.NoError(t, err)

	require.Len(t, units, 2)
	// Dependency order wins regardless of fetch order.
	assert.Equal(t, "PROJ-1", units[0].ID)
	assert.Equal(t, "PROJ-2", units[1].ID)
	assert.Contains(t, units[0].Description, "Acceptance criteria")
	assert.Contains(t, units[0].Description, "tests pass")
}

func TestResolveTrackerUnavailableEscalates(t *testing.T) {
	src := &stubSource{err: fmt.Errorf("connection refused")}

	_, err := ResolveScope(context.Background(), ScopeRequest{
		Definition: trackerDef(),
		Inputs:     []string{"project = PROJ"},
		ProjectDir: t.TempDir(),
		Tracker:    src,
	})
	require.Error(t, err)
	assert.Equal(t, andonerr.ClassEscalation, andonerr.ClassOf(err))
}

func TestOrderUnitsDetectsCycle(t *testing.T) {
	a := unit.New("A", "a")
	a.DependsOn = []string{"B"}
	b := unit.New("B", "b")
	b.DependsOn = []string{"A"}

	_, err := orderUnits([]*unit.WorkUnit{a, b})
	require.Error(t, err)
	ae := andonerr.AsAndonError(err)
	require.NotNil(t, ae)
	assert.Equal(t, andonerr.CodeScopeCycle, ae.Code)
}

func TestOrderUnitsComplexityTieBreak(t *testing.T) {
	big := unit.New("BIG", "b")
	big.Complexity = 500
	small := unit.New("SMALL", "s")
	small.Complexity = 5

	ordered, err := orderUnits([]*unit.WorkUnit{big, small})
	require.NoError(t, err)
	assert.Equal(t, "SMALL", ordered[0].ID)
	assert.Equal(t, "BIG", ordered[1].ID)
}

func TestOrderUnitsSharedPathKeepsInputOrder(t *testing.T) {
	first := unit.New("FIRST", "f", "shared.go")
	first.Complexity = 100
	second := unit.New("SECOND", "s", "shared.go")
	second.Complexity = 1

	// SECOND is cheaper but shares a path with FIRST, so input order
	// holds.
	ordered, err := orderUnits([]*unit.WorkUnit{first, second})
	require.NoError(t, err)
	assert.Equal(t, "FIRST", ordered[0].ID)
	assert.Equal(t, "SECOND", ordered[1].ID)
}

func TestOrderUnitsIgnoresExternalDependencies(t *testing.T) {
	a := unit.New("A", "a")
	a.DependsOn = []string{"NOT-IN-SCOPE"}

	ordered, err := orderUnits([]*unit.WorkUnit{a})
	require.NoError(t, err)
	require.Len(t, ordered, 1)
}

func TestTicketComplexityFromSizeLabels(t *testing.T) {
	small := tracker.Ticket{ID: "A", Labels: []string{"size/S"}}
	large := tracker.Ticket{ID: "B", Labels: []string{"size/L"}}
	assert.Less(t, ticketComplexity(small), ticketComplexity(large))
}
