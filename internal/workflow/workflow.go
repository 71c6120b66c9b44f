// Package workflow provides the built-in workflow definitions for andon.
//
// A workflow describes one high-level entry point: which agent role does
// the work, how units are discovered, what the default verification is,
// and whether analysis may fan out. Definitions are declarative; the
// orchestrator supplies all control flow.
package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/chrisallenlane/andon/internal/agent"
	"github.com/chrisallenlane/andon/internal/config"
)

// Kind identifies a built-in workflow.
type Kind string

const (
	KindIterate    Kind = "iterate"
	KindRefactor   Kind = "refactor"
	KindArchReview Kind = "arch-review"
	KindProject    Kind = "project"
	KindTestMutate Kind = "test-mutate"
	KindTestCover  Kind = "test-cover"
)

// ScopeSource describes where a workflow's units come from.
type ScopeSource string

const (
	// ScopeTracker enumerates units from an external issue tracker.
	ScopeTracker ScopeSource = "tracker"
	// ScopeFiles enumerates units from file globs.
	ScopeFiles ScopeSource = "files"
)

// GateKind selects the verification gate for a workflow.
type GateKind string

const (
	// GateScript runs the configured verification command.
	GateScript GateKind = "script"
	// GateAgent asks a QA-role agent for a verdict.
	GateAgent GateKind = "agent"
)

// Definition is one workflow's declarative configuration.
type Definition struct {
	Kind        Kind   `yaml:"kind"`
	Description string `yaml:"description"`

	// Role performs the unit work.
	Role agent.Role `yaml:"role"`
	// Instructions is the base prompt for every unit; the unit's
	// description and scope are appended per invocation.
	Instructions string `yaml:"instructions"`

	Scope ScopeSource `yaml:"scope"`
	Gate  GateKind    `yaml:"gate"`

	// IDPrefix for allocated unit IDs.
	IDPrefix string `yaml:"id_prefix"`

	// Mutating workflows change the working tree; analysis-only
	// workflows do not.
	Mutating bool `yaml:"mutating"`

	// AllowFanout permits parallel analysis above the configured
	// threshold. Mutation-style workflows must never fan out: units
	// share the working tree, and concurrent edits or reverts would
	// corrupt each other.
	AllowFanout bool `yaml:"allow_fanout"`

	// DefaultAggression, overridable per run.
	DefaultAggression config.Aggression `yaml:"default_aggression"`

	// TrackProgress enables the durable progress store for workflows
	// that span sessions.
	TrackProgress bool `yaml:"track_progress"`
}

// builtins are the workflow definitions shipped with andon.
var builtins = map[Kind]*Definition{
	KindIterate: {
		Kind:        KindIterate,
		Description: "work through tracker tickets one at a time",
		Role:        agent.RoleImplementer,
		Instructions: "Implement the ticket described below. Satisfy every acceptance " +
			"criterion. Keep the change minimal and in the style of the surrounding code.",
		Scope:             ScopeTracker,
		Gate:              GateScript,
		IDPrefix:          "TICK",
		Mutating:          true,
		AllowFanout:       false,
		DefaultAggression: config.AggressionLow,
	},
	KindRefactor: {
		Kind:        KindRefactor,
		Description: "refactor files in reviewable batches",
		Role:        agent.RoleRefactorer,
		Instructions: "Refactor the files in scope. Improve structure and clarity without " +
			"changing observable behavior. Respect the aggression ceiling you were given.",
		Scope:             ScopeFiles,
		Gate:              GateScript,
		IDPrefix:          "REF",
		Mutating:          true,
		AllowFanout:       false,
		DefaultAggression: config.AggressionLow,
	},
	KindArchReview: {
		Kind:        KindArchReview,
		Description: "architectural review of modules, findings only",
		Role:        agent.RoleReviewer,
		Instructions: "Review the module in scope for architectural problems: layering " +
			"violations, hidden coupling, missing seams. Report findings; change nothing.",
		Scope:             ScopeFiles,
		Gate:              GateAgent,
		IDPrefix:          "ARCH",
		Mutating:          false,
		AllowFanout:       true,
		DefaultAggression: config.AggressionLow,
		TrackProgress:     true,
	},
	KindProject: {
		Kind:        KindProject,
		Description: "execute a project blueprint item by item",
		Role:        agent.RoleImplementer,
		Instructions: "Implement the blueprint item described below as a complete, " +
			"self-contained change with tests.",
		Scope:             ScopeTracker,
		Gate:              GateScript,
		IDPrefix:          "PROJ",
		Mutating:          true,
		AllowFanout:       false,
		DefaultAggression: config.AggressionHigh,
	},
	KindTestMutate: {
		Kind:        KindTestMutate,
		Description: "mutation-test files and strengthen tests against survivors",
		Role:        agent.RoleMutator,
		Instructions: "Mutation-test the file in scope: introduce candidate mutations, " +
			"check which survive the test suite, and strengthen tests to kill survivors. " +
			"Record killed/survived counts in your summary.",
		Scope:             ScopeFiles,
		Gate:              GateScript,
		IDPrefix:          "MUT",
		Mutating:          true,
		AllowFanout:       false,
		DefaultAggression: config.AggressionLow,
		TrackProgress:     true,
	},
	KindTestCover: {
		Kind:        KindTestCover,
		Description: "fill coverage gaps with new tests",
		Role:        agent.RoleTestWriter,
		Instructions: "Write tests for the uncovered behavior of the file in scope. " +
			"Test observable behavior, not implementation detail.",
		Scope:             ScopeFiles,
		Gate:              GateScript,
		IDPrefix:          "COV",
		Mutating:          true,
		AllowFanout:       false,
		DefaultAggression: config.AggressionLow,
		TrackProgress:     true,
	},
}

// Get returns the definition for a built-in workflow, with local
// overrides from .andon/workflows/<kind>.yaml applied if present.
func Get(projectDir string, kind Kind) (*Definition, error) {
	base, ok := builtins[kind]
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", kind)
	}

	// Copy so overrides never mutate the builtin
	def := *base

	path := filepath.Join(projectDir, config.AndonDir, "workflows", string(kind)+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &def, nil
		}
		return nil, fmt.Errorf("read workflow override: %w", err)
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse workflow override %s: %w", path, err)
	}

	if def.Mutating && def.AllowFanout {
		return nil, fmt.Errorf("workflow %s: mutating workflows cannot fan out", kind)
	}
	return &def, nil
}

// Kinds returns all built-in workflow kinds, sorted.
func Kinds() []Kind {
	out := make([]Kind, 0, len(builtins))
	for k := range builtins {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
