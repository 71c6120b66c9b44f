package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/chrisallenlane/andon/internal/errors"
	"github.com/chrisallenlane/andon/internal/tracker"
	"github.com/chrisallenlane/andon/internal/unit"
	"github.com/chrisallenlane/andon/internal/workflow"
)

// ScopeRequest describes where a run's work units come from.
type ScopeRequest struct {
	Definition *workflow.Definition
	// Inputs are file paths or globs for file scopes, or a tracker
	// query for ticket scopes.
	Inputs     []string
	ProjectDir string

	// Tracker supplies tickets for tracker scopes.
	Tracker tracker.Source
	// Sequences allocates IDs for tickets that arrive without one.
	// File units never consume a sequence: their IDs derive from the
	// path so a file resolves to the same unit in every session.
	Sequences *unit.SequenceStore
}

// ResolveScope turns raw operator input into an ordered slice of pending
// work units. Resolution is deterministic: the same inputs against the
// same tree or tracker snapshot produce the same units in the same order.
func ResolveScope(ctx context.Context, req ScopeRequest) ([]*unit.WorkUnit, error) {
	var units []*unit.WorkUnit
	var err error

	switch req.Definition.Scope {
	case workflow.ScopeTracker:
		units, err = resolveTracker(ctx, req)
	case workflow.ScopeFiles:
		units, err = resolveFiles(ctx, req)
	default:
		return nil, fmt.Errorf("unknown scope source %q", req.Definition.Scope)
	}
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, errors.ErrScopeEmpty(strings.Join(req.Inputs, " "))
	}

	return orderUnits(units)
}

func resolveTracker(ctx context.Context, req ScopeRequest) ([]*unit.WorkUnit, error) {
	if req.Tracker == nil {
		return nil, errors.ErrScopeResolution("tracker", fmt.Errorf("no tracker configured"))
	}

	query := strings.Join(req.Inputs, " ")
	tickets, err := req.Tracker.Fetch(ctx, query)
	if err != nil {
		return nil, errors.ErrScopeResolution(req.Tracker.Name(), err)
	}

	units := make([]*unit.WorkUnit, 0, len(tickets))
	for _, t := range tickets {
		id := unit.SlugID(t.ID)
		if id == "" {
			if req.Sequences == nil {
				return nil, errors.ErrScopeResolution(req.Tracker.Name(),
					fmt.Errorf("ticket %q has no ID", t.Title))
			}
			next, err := req.Sequences.NextID(req.Definition.IDPrefix)
			if err != nil {
				return nil, fmt.Errorf("allocate unit id: %w", err)
			}
			id = next
		}
		u := unit.New(id, ticketDescription(t))
		u.DependsOn = slugAll(t.Dependencies)
		u.Complexity = ticketComplexity(t)
		units = append(units, u)
	}
	return units, nil
}

// ticketDescription builds the unit instructions from a ticket. The
// acceptance criteria are appended verbatim so the gate and the agent
// see the same definition of done.
func ticketDescription(t tracker.Ticket) string {
	var b strings.Builder
	b.WriteString(t.Title)
	if t.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(t.Body)
	}
	if len(t.AcceptanceCriteria) > 0 {
		b.WriteString("\n\nAcceptance criteria:\n")
		for _, ac := range t.AcceptanceCriteria {
			b.WriteString("- ")
			b.WriteString(ac)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ticketComplexity derives an ordering weight from ticket labels of the
// form "size/S", "size/M", "size/L". Unlabeled tickets weigh by body
// length so trivial tickets still sort first.
func ticketComplexity(t tracker.Ticket) int {
	for _, l := range t.Labels {
		switch strings.ToLower(l) {
		case "size/s", "size-s":
			return 1
		case "size/m", "size-m":
			return 10
		case "size/l", "size-l":
			return 100
		}
	}
	return len(strings.Split(t.Body, "\n"))
}

func slugAll(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, unit.SlugID(id))
	}
	return out
}

// fileUnitID derives a stable unit ID from the target path. The same
// file maps to the same ID in every run, which is what lets the
// progress store recognize work completed in an earlier session.
func fileUnitID(prefix, path string) string {
	slug := unit.SlugID(path)
	if prefix == "" {
		return slug
	}
	return prefix + "-" + slug
}

// fileComplexityWorkers bounds the parallel line-count pass.
const fileComplexityWorkers = 8

func resolveFiles(ctx context.Context, req ScopeRequest) ([]*unit.WorkUnit, error) {
	paths, err := expandGlobs(req.ProjectDir, req.Inputs)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}

	units := make([]*unit.WorkUnit, len(paths))
	for i, p := range paths {
		u := unit.New(fileUnitID(req.Definition.IDPrefix, p), req.Definition.Instructions, p)
		units[i] = u
	}

	// Line counts are the complexity estimate for file units. Counting
	// is read-only, so it may run in parallel even for mutating
	// workflows.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fileComplexityWorkers)
	for _, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := countLines(filepath.Join(req.ProjectDir, u.Paths[0]))
			if err != nil {
				return fmt.Errorf("estimate %s: %w", u.Paths[0], err)
			}
			u.Complexity = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.ErrScopeResolution("files", err)
	}
	return units, nil
}

// expandGlobs resolves each input as a doublestar glob relative to the
// project root. A literal path that exists passes through unchanged.
// Directories are skipped; only regular files become units.
func expandGlobs(projectDir string, inputs []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	add := func(rel string) error {
		rel = filepath.ToSlash(rel)
		if seen[rel] {
			return nil
		}
		info, err := os.Stat(filepath.Join(projectDir, rel))
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		seen[rel] = true
		out = append(out, rel)
		return nil
	}

	fsys := os.DirFS(projectDir)
	for _, in := range inputs {
		in = filepath.ToSlash(in)
		if !strings.ContainsAny(in, "*?[{") {
			if err := add(in); err != nil {
				return nil, errors.ErrScopeResolution("files", err)
			}
			continue
		}
		matches, err := doublestar.Glob(fsys, in)
		if err != nil {
			return nil, errors.ErrScopeResolution("files", fmt.Errorf("bad glob %q: %w", in, err))
		}
		sort.Strings(matches)
		for _, m := range matches {
			if err := add(m); err != nil {
				return nil, errors.ErrScopeResolution("files", err)
			}
		}
	}
	return out, nil
}

func countLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return bytes.Count(data, []byte{'\n'}), nil
}

// orderUnits produces a deterministic execution order: a topological
// sort over explicit dependencies, with ties broken by complexity
// ascending then ID. Units that share a path gain an implicit ordering
// edge so overlapping edits never interleave badly.
func orderUnits(units []*unit.WorkUnit) ([]*unit.WorkUnit, error) {
	byID := make(map[string]*unit.WorkUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}

	deps := make(map[string]map[string]bool, len(units))
	for _, u := range units {
		deps[u.ID] = make(map[string]bool)
		for _, d := range u.DependsOn {
			// Dependencies outside this run's scope are assumed already
			// satisfied.
			if _, ok := byID[d]; ok {
				deps[u.ID][d] = true
			}
		}
	}

	// Implicit edges between units sharing a path, earlier input first.
	pathOwner := make(map[string]string)
	for _, u := range units {
		for _, p := range u.Paths {
			if owner, ok := pathOwner[p]; ok && owner != u.ID {
				deps[u.ID][owner] = true
			} else {
				pathOwner[p] = u.ID
			}
		}
	}

	ordered := make([]*unit.WorkUnit, 0, len(units))
	done := make(map[string]bool, len(units))

	for len(ordered) < len(units) {
		var ready []*unit.WorkUnit
		for _, u := range units {
			if done[u.ID] {
				continue
			}
			satisfied := true
			for d := range deps[u.ID] {
				if !done[d] {
					satisfied = false
					break
				}
			}
			if satisfied {
				ready = append(ready, u)
			}
		}
		if len(ready) == 0 {
			var stuck []string
			for _, u := range units {
				if !done[u.ID] {
					stuck = append(stuck, u.ID)
				}
			}
			sort.Strings(stuck)
			return nil, errors.ErrScopeCycle(stuck)
		}
		sort.Slice(ready, func(i, j int) bool {
			if ready[i].Complexity != ready[j].Complexity {
				return ready[i].Complexity < ready[j].Complexity
			}
			return ready[i].ID < ready[j].ID
		})
		for _, u := range ready {
			ordered = append(ordered, u)
			done[u.ID] = true
		}
	}
	return ordered, nil
}
