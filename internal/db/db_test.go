package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisallenlane/andon/internal/unit"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestRunLifecycle(t *testing.T) {
	d := openTestDB(t)
	started := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, d.StartRun("run-1", "refactor", started))

	u := unit.New("REF-001", "refactor a.go", "a.go")
	u.RecordAttempt(&unit.Attempt{Verification: unit.VerificationPass})
	require.NoError(t, d.RecordUnit("run-1", u, unit.OutcomeCompleted, ""))
	require.NoError(t, d.FinishRun("run-1", started.Add(time.Minute), "completed"))

	runs, err := d.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "refactor", runs[0].Workflow)
	assert.Equal(t, "completed", runs[0].Outcome)
	assert.Equal(t, 1, runs[0].Units)
	require.NotNil(t, runs[0].FinishedAt)
}

func TestRecentRunsNewestFirst(t *testing.T) {
	d := openTestDB(t)
	base := time.Now().UTC()

	require.NoError(t, d.StartRun("old", "iterate", base.Add(-time.Hour)))
	require.NoError(t, d.StartRun("new", "iterate", base))

	runs, err := d.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)
}

func TestRunUnitsKeepsRecordedOrder(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, d.StartRun("run-1", "refactor", time.Now()))

	a := unit.New("A", "a")
	b := unit.New("B", "b")
	require.NoError(t, d.RecordUnit("run-1", a, unit.OutcomeCompleted, ""))
	require.NoError(t, d.RecordUnit("run-1", b, unit.OutcomeSkipped, "verification failed on all 3 attempts"))

	units, err := d.RunUnits("run-1")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "A", units[0].UnitID)
	assert.Equal(t, "skipped", units[1].Outcome)
	assert.Contains(t, units[1].Reason, "all 3 attempts")
}

func TestRecordUnitIsIdempotentPerRun(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, d.StartRun("run-1", "refactor", time.Now()))

	u := unit.New("A", "a")
	require.NoError(t, d.RecordUnit("run-1", u, unit.OutcomeSkipped, "first"))
	require.NoError(t, d.RecordUnit("run-1", u, unit.OutcomeCompleted, ""))

	units, err := d.RunUnits("run-1")
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "completed", units[0].Outcome)
}

func TestUnitHistoryAcrossRuns(t *testing.T) {
	d := openTestDB(t)
	u := unit.New("A", "a")

	require.NoError(t, d.StartRun("run-1", "refactor", time.Now().Add(-time.Hour)))
	require.NoError(t, d.RecordUnit("run-1", u, unit.OutcomeSkipped, "flaky"))
	require.NoError(t, d.StartRun("run-2", "refactor", time.Now()))
	require.NoError(t, d.RecordUnit("run-2", u, unit.OutcomeCompleted, ""))

	hist, err := d.UnitHistory("A")
	require.NoError(t, err)
	require.Len(t, hist, 2)
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir + "/.andon/" + FileName)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.StartRun("run-1", "iterate", time.Now()))
}
