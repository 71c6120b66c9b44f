// Package agent provides the agent invocation boundary for andon.
//
// An agent is a bounded unit of generative work: apply a change, run an
// analysis, write a test. The engine imposes no structure on what happens
// inside an invocation; it only requires the contract in this file. Retry
// policy lives entirely in the controller, never here.
package agent

import (
	"context"
	"time"
)

// Role identifies the kind of work an invocation performs. Roles map to
// workflow steps, not to any particular model or persona.
type Role string

const (
	RoleImplementer Role = "implementer"
	RoleRefactorer  Role = "refactorer"
	RoleReviewer    Role = "reviewer"
	RoleTestWriter  Role = "test-writer"
	RoleMutator     Role = "mutator"
	RoleAnalyst     Role = "analyst"
	RoleQA          Role = "qa"
)

// Request describes one bounded unit of work.
type Request struct {
	Role         Role
	Instructions string
	// Scope is the set of paths the agent may touch.
	Scope []string
	// Workdir is the directory the agent operates in (a unit's worktree
	// or the project root).
	Workdir string
}

// Finding is one item reported by an analysis-role invocation.
type Finding struct {
	Path     string `json:"path,omitempty"`
	Severity string `json:"severity,omitempty"`
	Detail   string `json:"detail"`
}

// Result is the structured outcome of a successful invocation.
type Result struct {
	// Summary is the agent's free-text rationale for what it did.
	Summary string
	// FilesModified lists paths the agent reports having changed.
	FilesModified []string
	// Findings carries analysis results for review/analysis roles.
	Findings []Finding
	// Payload is the raw structured body for role-specific consumers.
	Payload string

	Duration time.Duration
}

// FailureReason classifies a typed invocation failure.
type FailureReason string

const (
	FailureTimeout   FailureReason = "timeout"
	FailureMalformed FailureReason = "malformed_output"
	FailureRefused   FailureReason = "refused"
)

// Invoker executes one agent invocation. Implementations must honor ctx
// cancellation and must report malformed output rather than coercing it.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}
