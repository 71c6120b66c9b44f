package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	andonerr "github.com/chrisallenlane/andon/internal/errors"
)

// CLIInvoker runs agents as headless CLI subprocesses using print mode
// with JSON output. The binary is expected to speak the Claude Code CLI
// surface (-p, --output-format json), but anything honoring that contract
// works.
type CLIInvoker struct {
	command string
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// CLIOption configures a CLIInvoker.
type CLIOption func(*CLIInvoker)

// WithCommand sets the agent CLI binary (default: "claude").
func WithCommand(cmd string) CLIOption {
	return func(i *CLIInvoker) { i.command = cmd }
}

// WithModel sets the model flag passed to the CLI.
func WithModel(model string) CLIOption {
	return func(i *CLIInvoker) { i.model = model }
}

// WithTimeout bounds each invocation.
func WithTimeout(d time.Duration) CLIOption {
	return func(i *CLIInvoker) { i.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CLIOption {
	return func(i *CLIInvoker) { i.logger = l }
}

// NewCLIInvoker creates a new CLI-backed invoker.
func NewCLIInvoker(opts ...CLIOption) *CLIInvoker {
	i := &CLIInvoker{
		command: "claude",
		timeout: 15 * time.Minute,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke runs one agent subprocess and parses its structured result.
// A timeout or malformed output is returned as a typed error; the caller
// decides whether it consumes an attempt.
func (i *CLIInvoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	args := []string{"-p", buildPrompt(req), "--output-format", "json"}
	if i.model != "" {
		args = append(args, "--model", i.model)
	}

	cmd := exec.CommandContext(ctx, i.command, args...)
	cmd.Dir = req.Workdir
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	i.logger.Debug("invoking agent",
		"role", req.Role,
		"command", i.command,
		"scope_paths", len(req.Scope))

	err := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return nil, andonerr.ErrAgentTimeout(string(req.Role), i.timeout.String())
	}
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			// Binary missing or not executable: the environment is broken,
			// not this unit.
			return nil, andonerr.ErrAgentUnavailable(i.command)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return nil, andonerr.ErrAgentMalformed(string(req.Role),
			fmt.Sprintf("agent exited with error: %s", detail)).WithCause(err)
	}

	res, perr := parseCLIOutput(req.Role, stdout.String())
	if perr != nil {
		return nil, perr
	}
	res.Duration = duration

	i.logger.Debug("agent finished",
		"role", req.Role,
		"duration", duration,
		"files_modified", len(res.FilesModified))

	return res, nil
}

// buildPrompt assembles the instruction block sent to the subprocess.
// Scope restrictions and the output contract travel with every request so
// the engine never depends on ambient session state.
func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(req.Instructions)
	if len(req.Scope) > 0 {
		b.WriteString("\n\nOnly modify these files:\n")
		for _, p := range req.Scope {
			b.WriteString("  - ")
			b.WriteString(p)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nWhen finished, output a single JSON object: ")
	b.WriteString(`{"status":"complete"|"refused","summary":string,"files_modified":[string],"findings":[{"path":string,"severity":string,"detail":string}]}`)
	return b.String()
}

// parseCLIOutput extracts the structured result from the CLI's JSON
// envelope. Malformed output is reported as a typed failure, never
// silently coerced into an empty result.
func parseCLIOutput(role Role, out string) (*Result, error) {
	out = strings.TrimSpace(out)
	if !gjson.Valid(out) {
		return nil, andonerr.ErrAgentMalformed(string(role), "output is not valid JSON")
	}

	if gjson.Get(out, "is_error").Bool() {
		return nil, andonerr.ErrAgentMalformed(string(role),
			firstNonEmpty(gjson.Get(out, "result").String(), "agent reported an error"))
	}

	// The agent's own JSON object is nested in the envelope's result
	// field as text.
	body := gjson.Get(out, "result").String()
	if body == "" {
		body = out
	}
	if !gjson.Valid(body) {
		return nil, andonerr.ErrAgentMalformed(string(role), "result body is not valid JSON")
	}

	switch status := gjson.Get(body, "status").String(); status {
	case "complete":
	case "refused":
		return nil, andonerr.ErrAgentRefused(string(role), gjson.Get(body, "summary").String())
	default:
		return nil, andonerr.ErrAgentMalformed(string(role),
			fmt.Sprintf("unexpected status %q", status))
	}

	res := &Result{
		Summary: gjson.Get(body, "summary").String(),
		Payload: body,
	}
	for _, f := range gjson.Get(body, "files_modified").Array() {
		res.FilesModified = append(res.FilesModified, f.String())
	}
	for _, f := range gjson.Get(body, "findings").Array() {
		res.Findings = append(res.Findings, Finding{
			Path:     f.Get("path").String(),
			Severity: f.Get("severity").String(),
			Detail:   f.Get("detail").String(),
		})
	}
	return res, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
