// Package unit provides the work unit data model for andon.
//
// A WorkUnit is one addressable, independently committable piece of work:
// a ticket, a file under mutation, a refactor batch. Units are owned
// exclusively by a single orchestration run and are never shared across
// concurrent runs.
package unit

import (
	"fmt"
	"time"
)

// Status represents the current state of a work unit.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
	StatusAborted    Status = "aborted"
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusCompleted, StatusSkipped, StatusAborted}
}

// IsValidStatus returns true if the status is a valid status value.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusSkipped, StatusAborted:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once a unit can no longer change state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusAborted:
		return true
	default:
		return false
	}
}

// VerificationOutcome classifies one verification gate run.
type VerificationOutcome string

const (
	VerificationPass VerificationOutcome = "pass"
	VerificationFail VerificationOutcome = "fail"
)

// Attempt records one invoke-then-verify cycle for a work unit.
// Attempts are immutable once recorded and retained for the run summary.
type Attempt struct {
	// Seq is the 1-based attempt number, bounded by the configured
	// max attempts.
	Seq           int                 `yaml:"seq" json:"seq"`
	Verification  VerificationOutcome `yaml:"verification" json:"verification"`
	FailureDetail string              `yaml:"failure_detail,omitempty" json:"failure_detail,omitempty"`
	AgentSummary  string              `yaml:"agent_summary,omitempty" json:"agent_summary,omitempty"`
	StartedAt     time.Time           `yaml:"started_at" json:"started_at"`
	Duration      time.Duration       `yaml:"duration" json:"duration"`
}

// WorkUnit is one addressable piece of work processed by the pipeline.
type WorkUnit struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`

	// Paths is the target scope: the files this unit is allowed to touch.
	// Only these paths are staged when the unit commits.
	Paths []string `yaml:"paths,omitempty" json:"paths,omitempty"`

	// DependsOn lists unit IDs that must terminate before this unit runs.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`

	// Complexity is an estimated cost used as an ordering tie-breaker
	// (simpler units first). Units from file scopes use line counts;
	// ticket units use label-derived weights.
	Complexity int `yaml:"complexity,omitempty" json:"complexity,omitempty"`

	Status        Status     `yaml:"status" json:"status"`
	Attempts      []*Attempt `yaml:"attempts,omitempty" json:"attempts,omitempty"`
	ResultSummary string     `yaml:"result_summary,omitempty" json:"result_summary,omitempty"`
}

// New creates a pending work unit.
func New(id, description string, paths ...string) *WorkUnit {
	return &WorkUnit{
		ID:          id,
		Description: description,
		Paths:       paths,
		Status:      StatusPending,
	}
}

// AttemptCount returns the number of recorded attempts.
func (u *WorkUnit) AttemptCount() int {
	return len(u.Attempts)
}

// RecordAttempt appends an attempt with the next sequence number and
// returns it. The caller fills in the outcome fields before the attempt
// is considered recorded.
func (u *WorkUnit) RecordAttempt(a *Attempt) {
	a.Seq = len(u.Attempts) + 1
	u.Attempts = append(u.Attempts, a)
}

// LastFailureDetail returns the failure detail of the most recent failed
// attempt, used to build the repair prompt for the next invocation.
func (u *WorkUnit) LastFailureDetail() string {
	for i := len(u.Attempts) - 1; i >= 0; i-- {
		if u.Attempts[i].Verification == VerificationFail {
			return u.Attempts[i].FailureDetail
		}
	}
	return ""
}

// TerminalOutcome is the orchestrator-level classification of a finished
// unit. Skips are non-fatal; escalations halt the run.
type TerminalOutcome string

const (
	OutcomeCompleted TerminalOutcome = "completed"
	OutcomeSkipped   TerminalOutcome = "skipped"
	OutcomeAborted   TerminalOutcome = "aborted"
	OutcomeEscalated TerminalOutcome = "escalated"
)

// EscalationCategory classifies why the andon cord was pulled.
type EscalationCategory string

const (
	EscalationVerificationInfra EscalationCategory = "verification_infrastructure"
	EscalationConflict          EscalationCategory = "merge_conflict"
	EscalationUnresolvedFinding EscalationCategory = "unresolved_finding"
	EscalationEnvironment       EscalationCategory = "environment_unavailable"
)

// EscalationEvent is a terminal, run-halting signal. It is created at most
// once per run and carries enough state for a human to resume safely.
type EscalationEvent struct {
	UnitID   string             `json:"unit_id"`
	Step     string             `json:"step"`
	Category EscalationCategory `json:"category"`
	Reason   string             `json:"reason"`

	// Snapshot of what is committed vs in flight at the moment the run
	// halted.
	CommittedUnits []string  `json:"committed_units,omitempty"`
	InFlightBranch string    `json:"in_flight_branch,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Error implements the error interface so an escalation can propagate
// through error returns up to the orchestrator.
func (e *EscalationEvent) Error() string {
	return fmt.Sprintf("escalation (%s) at unit %s during %s: %s", e.Category, e.UnitID, e.Step, e.Reason)
}
