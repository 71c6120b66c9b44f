package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	andonerr "github.com/chrisallenlane/andon/internal/errors"
)

func TestBuildPromptIncludesScope(t *testing.T) {
	prompt := buildPrompt(Request{
		Role:         RoleImplementer,
		Instructions: "Fix the bug",
		Scope:        []string{"internal/foo.go", "internal/foo_test.go"},
	})

	assert.Contains(t, prompt, "Fix the bug")
	assert.Contains(t, prompt, "internal/foo.go")
	assert.Contains(t, prompt, "Only modify these files")
	assert.Contains(t, prompt, `"status"`)
}

func TestBuildPromptWithoutScope(t *testing.T) {
	prompt := buildPrompt(Request{Role: RoleAnalyst, Instructions: "Scan"})
	assert.NotContains(t, prompt, "Only modify these files")
}

func TestParseCLIOutputComplete(t *testing.T) {
	envelope := `{
		"is_error": false,
		"result": "{\"status\":\"complete\",\"summary\":\"fixed it\",\"files_modified\":[\"a.go\",\"b.go\"],\"findings\":[{\"path\":\"a.go\",\"severity\":\"low\",\"detail\":\"dead code\"}]}"
	}`

	res, err := parseCLIOutput(RoleImplementer, envelope)
	require.NoError(t, err)

	assert.Equal(t, "fixed it", res.Summary)
	assert.Equal(t, []string{"a.go", "b.go"}, res.FilesModified)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "dead code", res.Findings[0].Detail)
}

func TestParseCLIOutputBareBody(t *testing.T) {
	// Some CLI versions emit the body directly without an envelope.
	body := `{"status":"complete","summary":"done","files_modified":[]}`

	res, err := parseCLIOutput(RoleQA, body)
	require.NoError(t, err)
	assert.Equal(t, "done", res.Summary)
}

func TestParseCLIOutputMalformed(t *testing.T) {
	cases := []struct {
		name string
		out  string
	}{
		{"not json", "I made the changes you asked for!"},
		{"missing status", `{"result": "{\"summary\":\"no status\"}"}`},
		{"unknown status", `{"result": "{\"status\":\"partial\"}"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseCLIOutput(RoleImplementer, tc.out)
			require.Error(t, err)
			ae := andonerr.AsAndonError(err)
			require.NotNil(t, ae)
			assert.Equal(t, andonerr.CodeAgentMalformed, ae.Code)
			// Malformed output consumes an attempt rather than halting
			assert.Equal(t, andonerr.ClassRetryable, ae.Class())
		})
	}
}

func TestParseCLIOutputRefused(t *testing.T) {
	out := `{"result": "{\"status\":\"refused\",\"summary\":\"out of scope\"}"}`

	_, err := parseCLIOutput(RoleRefactorer, out)
	require.Error(t, err)
	ae := andonerr.AsAndonError(err)
	require.NotNil(t, ae)
	assert.Equal(t, andonerr.CodeAgentRefused, ae.Code)
	assert.True(t, strings.Contains(ae.Why, "out of scope"))
}

func TestParseCLIOutputErrorEnvelope(t *testing.T) {
	out := `{"is_error": true, "result": "rate limited"}`

	_, err := parseCLIOutput(RoleImplementer, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestStubInvokerScripting(t *testing.T) {
	stub := NewStubInvoker(
		StubResponse{Result: &Result{Summary: "first"}},
		StubResponse{Result: &Result{Summary: "second"}},
	)

	ctx := context.Background()
	r1, err := stub.Invoke(ctx, Request{Role: RoleImplementer})
	require.NoError(t, err)
	r2, _ := stub.Invoke(ctx, Request{Role: RoleImplementer})
	r3, _ := stub.Invoke(ctx, Request{Role: RoleImplementer})

	assert.Equal(t, "first", r1.Summary)
	assert.Equal(t, "second", r2.Summary)
	// Exhausted script repeats the last entry
	assert.Equal(t, "second", r3.Summary)
	assert.Equal(t, 3, stub.CallCount())
}

func TestStubInvokerHonorsCancellation(t *testing.T) {
	stub := NewStubInvoker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stub.Invoke(ctx, Request{})
	assert.Error(t, err)
}
