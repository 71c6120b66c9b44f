// Package gate provides verification gates for andon attempts.
//
// A gate decides pass/fail for one invoke-then-verify cycle. The engine
// never parses tool-specific output beyond the pass/fail signal plus a
// free-text diagnostic fed back into the next repair attempt.
package gate

import (
	"context"
)

// Outcome is the result of one gate run.
type Outcome struct {
	Passed bool
	// Detail is the free-text diagnostic used for the repair prompt on
	// failure. Empty on pass.
	Detail string
	// ExitCode of the verification command, when applicable.
	ExitCode int
}

// Gate runs a verification check inside workdir.
//
// Error semantics: a non-nil error means the gate itself could not run
// (infrastructure failure), which escalates. A failing check returns
// a nil error with Passed=false, which consumes an attempt.
type Gate interface {
	Check(ctx context.Context, workdir string) (*Outcome, error)
}
