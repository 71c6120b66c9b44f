package gate

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chrisallenlane/andon/internal/agent"
	andonerr "github.com/chrisallenlane/andon/internal/errors"
)

func TestScriptGatePass(t *testing.T) {
	g := NewScriptGate("true")

	out, err := g.Check(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !out.Passed {
		t.Error("exit 0 should pass")
	}
	if out.Detail != "" {
		t.Errorf("pass should carry no detail, got %q", out.Detail)
	}
}

func TestScriptGateFail(t *testing.T) {
	g := NewScriptGate("echo 'test FooBar failed' >&2; exit 1")

	out, err := g.Check(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("a failing check is not an error: %v", err)
	}
	if out.Passed {
		t.Error("exit 1 should fail")
	}
	if !strings.Contains(out.Detail, "FooBar failed") {
		t.Errorf("detail should carry the diagnostic, got %q", out.Detail)
	}
	if out.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", out.ExitCode)
	}
}

func TestScriptGateTimeoutIsFailureNotError(t *testing.T) {
	g := NewScriptGate("sleep 5", WithTimeout(100*time.Millisecond))

	out, err := g.Check(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("a timeout of the command under test consumes an attempt, not an escalation: %v", err)
	}
	if out.Passed {
		t.Error("timeout should fail the check")
	}
	if !strings.Contains(out.Detail, "timed out") {
		t.Errorf("detail should mention the timeout, got %q", out.Detail)
	}
}

func TestScriptGateRunsInWorkdir(t *testing.T) {
	dir := t.TempDir()
	g := NewScriptGate("test -d .")

	out, err := g.Check(context.Background(), dir)
	if err != nil || !out.Passed {
		t.Fatalf("command should run inside workdir: out=%+v err=%v", out, err)
	}
}

func TestTruncateDetailKeepsTail(t *testing.T) {
	long := strings.Repeat("x", maxDetailBytes) + "FINAL SUMMARY"
	got := truncateDetail(long)

	if len(got) > maxDetailBytes+64 {
		t.Errorf("detail not bounded: %d bytes", len(got))
	}
	if !strings.HasSuffix(got, "FINAL SUMMARY") {
		t.Error("truncation should keep the tail of the output")
	}
}

func TestAgentGateApproved(t *testing.T) {
	stub := agent.NewStubInvoker(agent.StubResponse{
		Result: &agent.Result{
			Summary: `{"verdict":"approved","reason":"looks correct"}`,
		},
	})
	g := NewAgentGate(stub, "")

	out, err := g.Check(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !out.Passed {
		t.Error("approved verdict should pass")
	}
}

func TestAgentGateRejected(t *testing.T) {
	stub := agent.NewStubInvoker(agent.StubResponse{
		Result: &agent.Result{
			Payload: `{"verdict":"rejected","reason":"breaks the public API"}`,
		},
	})
	g := NewAgentGate(stub, "check the API")

	out, err := g.Check(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if out.Passed {
		t.Error("rejected verdict should fail")
	}
	if !strings.Contains(out.Detail, "breaks the public API") {
		t.Errorf("detail should carry the reason, got %q", out.Detail)
	}
}

func TestAgentGateBrokenJudgeEscalates(t *testing.T) {
	stub := agent.NewStubInvoker(agent.StubResponse{
		Result: &agent.Result{Summary: "no verdict here"},
	})
	g := NewAgentGate(stub, "")

	_, err := g.Check(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("a judge that cannot produce a verdict is an infrastructure failure")
	}
	ae := andonerr.AsAndonError(err)
	if ae == nil || ae.Class() != andonerr.ClassEscalation {
		t.Errorf("expected escalation-class error, got %v", err)
	}
}
