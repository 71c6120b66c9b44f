package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := ErrMaxAttempts("UNIT-001", 3)
	msg := err.Error()

	if !strings.Contains(msg, "UNIT-001") {
		t.Errorf("message should contain unit ID: %q", msg)
	}
	if !strings.Contains(msg, "3 attempts") {
		t.Errorf("message should contain attempt count: %q", msg)
	}
}

func TestErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := ErrTrackerUnavailable("jira", cause)

	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("message should include cause: %q", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}

func TestErrorIsByCode(t *testing.T) {
	a := ErrMergeConflict("andon/UNIT-001", "main")
	b := ErrMergeConflict("andon/UNIT-002", "develop")

	if !stderrors.Is(a, b) {
		t.Error("errors with the same code should match via Is")
	}
	if stderrors.Is(a, ErrGitDirty()) {
		t.Error("errors with different codes should not match")
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		name string
		err  *AndonError
		want Class
	}{
		{"verify failure is retryable", ErrVerifyFailed("go test ./...", "2 tests failed"), ClassRetryable},
		{"agent timeout is retryable", ErrAgentTimeout("implementer", "5m"), ClassRetryable},
		{"malformed output is retryable", ErrAgentMalformed("qa", "not JSON"), ClassRetryable},
		{"max attempts is skip", ErrMaxAttempts("UNIT-001", 3), ClassSkip},
		{"merge conflict escalates", ErrMergeConflict("b", "main"), ClassEscalation},
		{"tracker down escalates", ErrTrackerUnavailable("jira", nil), ClassEscalation},
		{"verify infra escalates", ErrVerifyInfra("go test", nil), ClassEscalation},
		{"scope resolution escalates", ErrScopeResolution("jira", nil), ClassEscalation},
		{"security finding escalates", ErrSecurityFinding("UNIT-001", "hardcoded key"), ClassEscalation},
		{"agent unavailable escalates", ErrAgentUnavailable("claude"), ClassEscalation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Class(); got != tc.want {
				t.Errorf("Class() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClassOf(t *testing.T) {
	if got := ClassOf(ErrVerifyFailed("make test", "boom")); got != ClassRetryable {
		t.Errorf("ClassOf structured error = %v, want retryable", got)
	}
	if got := ClassOf(fmt.Errorf("plain error")); got != ClassUnknown {
		t.Errorf("ClassOf plain error = %v, want unknown", got)
	}
	// Wrapped structured errors classify through the chain
	wrapped := fmt.Errorf("outer: %w", ErrMergeConflict("b", "main"))
	if got := ClassOf(wrapped); got != ClassEscalation {
		t.Errorf("ClassOf wrapped error = %v, want escalation", got)
	}
}

func TestUserMessage(t *testing.T) {
	err := ErrVerifyInfra("go test ./...", fmt.Errorf("exec: not found"))
	msg := err.UserMessage()

	if !strings.HasPrefix(msg, "Error: ") {
		t.Errorf("user message should start with Error:, got %q", msg)
	}
	if !strings.Contains(msg, "Fix:") {
		t.Errorf("user message should include the fix, got %q", msg)
	}
}

func TestMarshalJSON(t *testing.T) {
	err := ErrScopeResolution("jira", fmt.Errorf("timeout"))

	data, jerr := json.Marshal(err)
	if jerr != nil {
		t.Fatalf("marshal failed: %v", jerr)
	}

	var decoded map[string]any
	if jerr := json.Unmarshal(data, &decoded); jerr != nil {
		t.Fatalf("unmarshal failed: %v", jerr)
	}
	if decoded["code"] != string(CodeScopeResolution) {
		t.Errorf("code mismatch: %v", decoded["code"])
	}
	if decoded["cause"] != "timeout" {
		t.Errorf("cause should be serialized as a string: %v", decoded["cause"])
	}
}

func TestAsAndonError(t *testing.T) {
	orig := ErrGitDirty()
	wrapped := fmt.Errorf("run setup: %w", orig)

	got := AsAndonError(wrapped)
	if got == nil {
		t.Fatal("AsAndonError should unwrap through fmt.Errorf")
	}
	if got.Code != CodeGitDirty {
		t.Errorf("code mismatch: %v", got.Code)
	}

	if AsAndonError(fmt.Errorf("plain")) != nil {
		t.Error("plain errors should return nil")
	}
}
