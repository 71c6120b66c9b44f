package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	andonerr "github.com/chrisallenlane/andon/internal/errors"
)

const defaultScriptTimeout = 10 * time.Minute

// maxDetailBytes bounds the diagnostic fed back into repair prompts.
const maxDetailBytes = 8 * 1024

// ScriptGate runs a shell command and maps its exit code to pass/fail.
type ScriptGate struct {
	command string
	timeout time.Duration
	logger  *slog.Logger
}

// ScriptOption configures a ScriptGate.
type ScriptOption func(*ScriptGate)

// WithTimeout sets the timeout for the verification command.
func WithTimeout(d time.Duration) ScriptOption {
	return func(g *ScriptGate) { g.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ScriptOption {
	return func(g *ScriptGate) { g.logger = l }
}

// NewScriptGate creates a gate that runs command via the shell.
func NewScriptGate(command string, opts ...ScriptOption) *ScriptGate {
	g := &ScriptGate{
		command: command,
		timeout: defaultScriptTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Command returns the configured verification command.
func (g *ScriptGate) Command() string {
	return g.command
}

// Check runs the verification command in workdir.
//
// A non-zero exit means the code under change failed: Passed=false, nil
// error, one attempt consumed. A command that cannot start at all means
// the tooling is broken: that returns an error, which escalates. A
// timeout of a running command counts as a failed check, not an
// infrastructure error.
func (g *ScriptGate) Check(ctx context.Context, workdir string) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", g.command)
	cmd.Dir = workdir
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	g.logger.Debug("verification run",
		"command", g.command,
		"duration", time.Since(start),
		"pass", err == nil)

	if err == nil {
		return &Outcome{Passed: true}, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return &Outcome{
			Passed:   false,
			Detail:   fmt.Sprintf("verification timed out after %s", g.timeout),
			ExitCode: -1,
		}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &Outcome{
			Passed:   false,
			Detail:   truncateDetail(combinedOutput(&stdout, &stderr)),
			ExitCode: exitErr.ExitCode(),
		}, nil
	}

	// Could not start the command at all: shell missing, permission
	// denied. The tooling is broken, not the code under test.
	return nil, andonerr.ErrVerifyInfra(g.command, err)
}

func combinedOutput(stdout, stderr *bytes.Buffer) string {
	out := strings.TrimSpace(stderr.String())
	if out == "" {
		out = strings.TrimSpace(stdout.String())
	} else if s := strings.TrimSpace(stdout.String()); s != "" {
		out = s + "\n" + out
	}
	return out
}

// truncateDetail keeps the tail of the diagnostic. Test runners put the
// failure summary at the end of their output.
func truncateDetail(detail string) string {
	if len(detail) <= maxDetailBytes {
		return detail
	}
	return "[...truncated...]\n" + detail[len(detail)-maxDetailBytes:]
}
