// Package progress provides the durable, resumable progress store for
// long-running, multi-session analyses.
//
// The store file is the single source of truth for "what has been tried"
// across sessions. It is read once at the start of a run and written
// after every terminal unit outcome, never mid-unit. Aggregates are
// always a pure recomputation from the per-unit records so the global
// numbers can never drift from the per-unit ones.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/chrisallenlane/andon/internal/unit"
	"github.com/chrisallenlane/andon/internal/util"
)

// FormatVersion is the current progress file format version.
const FormatVersion = "1"

// maxExamples bounds the notable-example list per record. Only survivors
// and exceptions are kept, never every event, so the file stays small
// and diffable over long projects.
const maxExamples = 20

// Example is one notable finding retained for a record.
type Example struct {
	Detail string `json:"detail"`
	Path   string `json:"path,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// Record is the durable tracking entry for one unit of analysis.
type Record struct {
	Status   unit.Status    `json:"status"`
	Attempts int            `json:"attempts"`
	Metrics  map[string]int `json:"metrics,omitempty"`
	// Score is a human-readable metric, e.g. a kill percentage.
	Score    float64   `json:"score"`
	Examples []Example `json:"examples,omitempty"`
	Notes    []string  `json:"notes,omitempty"`
	Updated  time.Time `json:"updated"`
}

// Aggregate holds the recomputed global statistics. Never hand-edited,
// never incrementally maintained.
type Aggregate struct {
	TotalUnits     int     `json:"total_units"`
	CompletedUnits int     `json:"completed_units"`
	OverallScore   float64 `json:"overall_score"`
}

// ProjectState is the full content of the progress file.
type ProjectState struct {
	Version             string             `json:"version"`
	VerificationCommand string             `json:"verification_command,omitempty"`
	LastUpdated         time.Time          `json:"last_updated"`
	Units               map[string]*Record `json:"units"`
	Aggregate           Aggregate          `json:"aggregate"`
}

// Store reads and writes the progress file.
type Store struct {
	path string
}

// NewStore creates a store over the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the progress file path.
func (s *Store) Path() string { return s.path }

// Load reads the progress file. A missing file is the expected first-run
// case and returns an empty default state, never an error.
func (s *Store) Load() (*ProjectState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return emptyState(), nil
		}
		return nil, fmt.Errorf("read progress file: %w", err)
	}

	var state ProjectState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse progress file: %w", err)
	}
	if state.Units == nil {
		state.Units = make(map[string]*Record)
	}
	// Aggregates on disk are advisory; the in-memory truth is always
	// recomputed.
	state.Aggregate = recompute(state.Units)
	return &state, nil
}

// Upsert writes or updates one record and persists the whole state
// atomically, with aggregates recomputed from the full record set.
func (s *Store) Upsert(state *ProjectState, unitID string, rec *Record) error {
	if state.Units == nil {
		state.Units = make(map[string]*Record)
	}

	rec.Updated = time.Now().UTC()
	if len(rec.Examples) > maxExamples {
		rec.Examples = rec.Examples[len(rec.Examples)-maxExamples:]
	}
	state.Units[unitID] = rec

	state.Version = FormatVersion
	state.LastUpdated = rec.Updated
	state.Aggregate = recompute(state.Units)

	return util.AtomicWriteJSON(s.path, state, 0644)
}

// Discover registers a unit as pending if it has no record yet. Records
// are never deleted, only updated, for the life of the tracked artifact.
func (s *Store) Discover(state *ProjectState, unitID string) *Record {
	if state.Units == nil {
		state.Units = make(map[string]*Record)
	}
	if rec, ok := state.Units[unitID]; ok {
		return rec
	}
	rec := &Record{Status: unit.StatusPending, Updated: time.Now().UTC()}
	state.Units[unitID] = rec
	return rec
}

// Remaining returns the unit IDs that are not yet terminal, sorted for
// stable resumption order. A fresh process resumes here instead of
// re-running completed units.
func (state *ProjectState) Remaining() []string {
	var ids []string
	for id, rec := range state.Units {
		if !rec.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// recompute derives the aggregate block from the full record set. The
// overall score is weighted by each record's "total" metric when present
// so that, e.g., a file with 40 mutants counts more than one with 2.
func recompute(units map[string]*Record) Aggregate {
	agg := Aggregate{TotalUnits: len(units)}

	var weighted float64
	var weightSum float64
	for _, rec := range units {
		if rec.Status == unit.StatusCompleted {
			agg.CompletedUnits++
		}
		w := 1.0
		if t, ok := rec.Metrics["total"]; ok && t > 0 {
			w = float64(t)
		}
		weighted += rec.Score * w
		weightSum += w
	}
	if weightSum > 0 {
		agg.OverallScore = weighted / weightSum
	}
	return agg
}

func emptyState() *ProjectState {
	return &ProjectState{
		Version: FormatVersion,
		Units:   make(map[string]*Record),
	}
}
