// Package errors provides structured error types for andon.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for andon.
const (
	// Initialization errors
	CodeNotInitialized     Code = "ANDON_NOT_INITIALIZED"
	CodeAlreadyInitialized Code = "ANDON_ALREADY_INITIALIZED"

	// Scope errors
	CodeScopeResolution Code = "SCOPE_RESOLUTION_FAILED"
	CodeScopeEmpty      Code = "SCOPE_EMPTY"
	CodeScopeCycle      Code = "SCOPE_DEPENDENCY_CYCLE"

	// Agent errors
	CodeAgentUnavailable Code = "AGENT_UNAVAILABLE"
	CodeAgentTimeout     Code = "AGENT_TIMEOUT"
	CodeAgentMalformed   Code = "AGENT_MALFORMED_OUTPUT"
	CodeAgentRefused     Code = "AGENT_REFUSED"

	// Verification errors
	CodeVerifyFailed Code = "VERIFICATION_FAILED"
	CodeVerifyInfra  Code = "VERIFICATION_INFRA_BROKEN"
	CodeMaxAttempts  Code = "MAX_ATTEMPTS_EXCEEDED"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeConfigMissing Code = "CONFIG_MISSING"

	// Tracker errors
	CodeTrackerUnavailable Code = "TRACKER_UNAVAILABLE"

	// Git errors
	CodeGitDirty         Code = "GIT_DIRTY"
	CodeGitBranchExists  Code = "GIT_BRANCH_EXISTS"
	CodeGitMergeConflict Code = "GIT_MERGE_CONFLICT"

	// Security errors
	CodeSecurityFinding Code = "SECURITY_FINDING_UNRESOLVED"
)

// Class groups error codes by how the retry/escalation controller must
// treat them. This is the failure taxonomy the whole pipeline runs on:
// retryable failures consume an attempt, skip failures end a unit without
// ending the run, escalations trip the andon cord.
type Class int

const (
	ClassUnknown Class = iota
	// ClassRetryable consumes one attempt; the failure detail is fed back
	// into the next agent invocation.
	ClassRetryable
	// ClassSkip ends the work unit (revert + skip) but the run continues.
	ClassSkip
	// ClassEscalation halts the entire run. Never retried, never
	// auto-resolved.
	ClassEscalation
)

// codeClasses maps error codes to their controller class.
var codeClasses = map[Code]Class{
	CodeScopeResolution:    ClassEscalation,
	CodeScopeEmpty:         ClassEscalation,
	CodeScopeCycle:         ClassEscalation,
	CodeAgentUnavailable:   ClassEscalation,
	CodeAgentTimeout:       ClassRetryable,
	CodeAgentMalformed:     ClassRetryable,
	CodeAgentRefused:       ClassRetryable,
	CodeVerifyFailed:       ClassRetryable,
	CodeVerifyInfra:        ClassEscalation,
	CodeMaxAttempts:        ClassSkip,
	CodeTrackerUnavailable: ClassEscalation,
	CodeGitMergeConflict:   ClassEscalation,
	CodeSecurityFinding:    ClassEscalation,
}

// String returns the class name for logging and summaries.
func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassSkip:
		return "skip"
	case ClassEscalation:
		return "escalation"
	default:
		return "unknown"
	}
}

// AndonError is the structured error type for andon.
type AndonError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *AndonError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *AndonError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *AndonError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Class returns the controller class for this error.
func (e *AndonError) Class() Class {
	if cls, ok := codeClasses[e.Code]; ok {
		return cls
	}
	return ClassUnknown
}

// MarshalJSON implements json.Marshaler.
func (e *AndonError) MarshalJSON() ([]byte, error) {
	type alias AndonError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an AndonError with the same code.
func (e *AndonError) Is(target error) bool {
	t, ok := target.(*AndonError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *AndonError) WithCause(err error) *AndonError {
	return &AndonError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrNotInitialized returns an error for an uninitialized project directory.
func ErrNotInitialized() *AndonError {
	return &AndonError{
		Code: CodeNotInitialized,
		What: "andon is not initialized in this directory",
		Why:  "No .andon/ directory found in the current path or its parents",
		Fix:  "Run 'andon init' to initialize andon in this directory",
	}
}

// ErrAlreadyInitialized returns an error when andon is already initialized.
func ErrAlreadyInitialized(path string) *AndonError {
	return &AndonError{
		Code: CodeAlreadyInitialized,
		What: "andon is already initialized",
		Why:  fmt.Sprintf("Found existing .andon/ directory at %s", path),
		Fix:  "Use 'andon init --force' to reinitialize, or remove .andon/ manually",
	}
}

// ErrScopeResolution returns an error when the scope source is unreachable.
// This is an escalation: work cannot begin without a source of truth.
func ErrScopeResolution(source string, cause error) *AndonError {
	return &AndonError{
		Code:  CodeScopeResolution,
		What:  fmt.Sprintf("failed to resolve scope from %s", source),
		Why:   "The source of truth for work units could not be reached",
		Fix:   "Check connectivity and credentials for the configured source, then rerun",
		Cause: cause,
	}
}

// ErrScopeEmpty returns an error for ambiguous or empty scope input.
func ErrScopeEmpty(input string) *AndonError {
	return &AndonError{
		Code: CodeScopeEmpty,
		What: "scope resolved to no work units",
		Why:  fmt.Sprintf("Input %q matched nothing that can be worked on", input),
		Fix:  "Provide an explicit file list, glob, or ticket query that matches work",
	}
}

// ErrScopeCycle returns an error when unit dependencies form a cycle.
func ErrScopeCycle(units []string) *AndonError {
	return &AndonError{
		Code: CodeScopeCycle,
		What: "work unit dependencies form a cycle",
		Why:  fmt.Sprintf("Units %s depend on each other", strings.Join(units, " -> ")),
		Fix:  "Break the dependency cycle in the tracker or unit definitions",
	}
}

// ErrAgentUnavailable returns an error when the agent CLI is not accessible.
func ErrAgentUnavailable(binary string) *AndonError {
	return &AndonError{
		Code: CodeAgentUnavailable,
		What: fmt.Sprintf("agent command %q is not available", binary),
		Why:  "Could not find or execute the agent CLI",
		Fix:  "Install the agent CLI or set agent.command in .andon/config.yaml",
	}
}

// ErrAgentTimeout returns an error when an agent invocation times out.
func ErrAgentTimeout(role string, duration string) *AndonError {
	return &AndonError{
		Code: CodeAgentTimeout,
		What: fmt.Sprintf("agent %s timed out", role),
		Why:  fmt.Sprintf("No response received after %s", duration),
		Fix:  "Increase agent.timeout in config, or narrow the unit's scope",
	}
}

// ErrAgentMalformed returns an error for output that doesn't match the
// structured contract. Reported, never silently coerced.
func ErrAgentMalformed(role, detail string) *AndonError {
	return &AndonError{
		Code: CodeAgentMalformed,
		What: fmt.Sprintf("agent %s returned malformed output", role),
		Why:  detail,
		Fix:  "This counts as a failed attempt and will be retried with feedback",
	}
}

// ErrAgentRefused returns an error when the agent declined the work.
func ErrAgentRefused(role, reason string) *AndonError {
	return &AndonError{
		Code: CodeAgentRefused,
		What: fmt.Sprintf("agent %s refused the work unit", role),
		Why:  reason,
	}
}

// ErrVerifyFailed returns an error for a failed verification run.
func ErrVerifyFailed(command, detail string) *AndonError {
	return &AndonError{
		Code: CodeVerifyFailed,
		What: fmt.Sprintf("verification failed: %s", command),
		Why:  detail,
	}
}

// ErrVerifyInfra returns an error when the verification tooling itself is
// broken (not the code under test). Always an escalation.
func ErrVerifyInfra(command string, cause error) *AndonError {
	return &AndonError{
		Code:  CodeVerifyInfra,
		What:  fmt.Sprintf("verification infrastructure is broken: %s", command),
		Why:   "The verification command could not be started at all",
		Fix:   "Fix the verification tooling (missing binary, permissions) and rerun",
		Cause: cause,
	}
}

// ErrMaxAttempts returns an error when max attempts are exhausted.
func ErrMaxAttempts(unitID string, attempts int) *AndonError {
	return &AndonError{
		Code: CodeMaxAttempts,
		What: fmt.Sprintf("unit %s failed after %d attempts", unitID, attempts),
		Why:  "Maximum repair attempts exceeded without passing verification",
		Fix:  "The unit was reverted and skipped; inspect the run summary and fix manually",
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *AndonError {
	return &AndonError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check .andon/config.yaml and fix the invalid field",
	}
}

// ErrTrackerUnavailable returns an error when the issue tracker is down.
func ErrTrackerUnavailable(tracker string, cause error) *AndonError {
	return &AndonError{
		Code:  CodeTrackerUnavailable,
		What:  fmt.Sprintf("%s tracker is unreachable", tracker),
		Why:   "Work units cannot be enumerated without the tracker",
		Fix:   "Check tracker connectivity and credentials, then rerun",
		Cause: cause,
	}
}

// ErrGitDirty returns an error when the working tree has uncommitted changes.
func ErrGitDirty() *AndonError {
	return &AndonError{
		Code: CodeGitDirty,
		What: "working tree has uncommitted changes",
		Why:  "Cannot start a run with uncommitted changes",
		Fix:  "Commit or stash your changes before starting a run",
	}
}

// ErrGitBranchExists returns an error when a scope branch already exists.
func ErrGitBranchExists(branch string) *AndonError {
	return &AndonError{
		Code: CodeGitBranchExists,
		What: fmt.Sprintf("branch %q already exists", branch),
		Why:  "A previous run may not have cleaned up its scope branch",
		Fix:  fmt.Sprintf("Delete the branch with 'git branch -D %s' and rerun", branch),
	}
}

// ErrMergeConflict returns an error for a merge that cannot apply cleanly.
// Always an escalation; conflicts are never auto-resolved.
func ErrMergeConflict(branch, target string) *AndonError {
	return &AndonError{
		Code: CodeGitMergeConflict,
		What: fmt.Sprintf("merging %s into %s produced conflicts", branch, target),
		Why:  "The unit's changes do not apply cleanly to the integration branch",
		Fix:  "Resolve the conflict manually, then resume the run",
	}
}

// ErrSecurityFinding returns an error for an unresolvable high-severity
// finding. Always an escalation.
func ErrSecurityFinding(unitID, detail string) *AndonError {
	return &AndonError{
		Code: CodeSecurityFinding,
		What: fmt.Sprintf("unresolved security finding in unit %s", unitID),
		Why:  detail,
		Fix:  "A human must review this finding before any further work proceeds",
	}
}

// AsAndonError attempts to convert an error to an AndonError.
// Returns nil if the error is not an AndonError.
func AsAndonError(err error) *AndonError {
	var ae *AndonError
	if stderrors.As(err, &ae) {
		return ae
	}
	return nil
}

// ClassOf returns the controller class for any error. Plain errors with no
// structured code are ClassUnknown; the controller treats those as
// retryable to avoid crashing a run on an unclassified failure.
func ClassOf(err error) Class {
	if ae := AsAndonError(err); ae != nil {
		return ae.Class()
	}
	return ClassUnknown
}

// Wrap wraps a generic error into an AndonError with unknown code.
func Wrap(err error, what string) *AndonError {
	return &AndonError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
