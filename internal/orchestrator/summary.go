package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/chrisallenlane/andon/internal/agent"
	"github.com/chrisallenlane/andon/internal/git"
	"github.com/chrisallenlane/andon/internal/unit"
	"github.com/chrisallenlane/andon/internal/workflow"
)

// Exit codes for the CLI.
const (
	// ExitSuccess means every unit completed.
	ExitSuccess = 0
	// ExitEscalated means the andon cord was pulled.
	ExitEscalated = 1
	// ExitPartial means the run finished but some units were skipped.
	ExitPartial = 2
)

// UnitReport is the per-unit entry in a run report.
type UnitReport struct {
	ID         string               `json:"id"`
	Outcome    unit.TerminalOutcome `json:"outcome"`
	Reason     string               `json:"reason,omitempty"`
	Attempts   int                  `json:"attempts"`
	Paths      []string             `json:"paths,omitempty"`
	Complexity int                  `json:"complexity,omitempty"`
	Summary    string               `json:"summary,omitempty"`
	Findings   []agent.Finding      `json:"findings,omitempty"`
	Diff       *git.DiffStat        `json:"diff,omitempty"`

	escalation *unit.EscalationEvent
}

// Report is the terminal summary of one run.
type Report struct {
	RunID    string        `json:"run_id"`
	Workflow workflow.Kind `json:"workflow"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`

	Units          []UnitReport          `json:"units"`
	CommittedUnits []string              `json:"committed_units,omitempty"`
	Escalation     *unit.EscalationEvent `json:"escalation,omitempty"`
}

// Completed returns the number of units that completed.
func (r *Report) Completed() int { return r.count(unit.OutcomeCompleted) }

// Skipped returns the number of units skipped after exhausting attempts.
func (r *Report) Skipped() int { return r.count(unit.OutcomeSkipped) }

// Aborted returns the number of units cut short by cancellation.
func (r *Report) Aborted() int { return r.count(unit.OutcomeAborted) }

func (r *Report) count(outcome unit.TerminalOutcome) int {
	n := 0
	for _, u := range r.Units {
		if u.Outcome == outcome {
			n++
		}
	}
	return n
}

// ExitCode maps the run outcome onto the CLI contract: 0 full success,
// 2 finished with skips or cut short, 1 escalated.
func (r *Report) ExitCode() int {
	if r.Escalation != nil {
		return ExitEscalated
	}
	if r.Skipped() > 0 || r.Aborted() > 0 {
		return ExitPartial
	}
	return ExitSuccess
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	skipStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	escStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	escBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("9")).Padding(0, 1)
	reasonIndent  = "      "
	maxReasonLine = 100
)

// Render produces the human-readable run summary.
func (r *Report) Render() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s run %s", r.Workflow, shortID(r.RunID))))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d units, %s", len(r.Units), r.Finished.Sub(r.Started).Round(time.Second))))
	b.WriteString("\n\n")

	for _, u := range r.Units {
		b.WriteString(renderUnit(u))
	}

	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("completed %d, skipped %d, total %d\n", r.Completed(), r.Skipped(), len(r.Units)))

	if r.Escalation != nil {
		b.WriteString("\n")
		b.WriteString(escBoxStyle.Render(renderEscalation(r.Escalation)))
		b.WriteString("\n")
	}
	return b.String()
}

func renderUnit(u UnitReport) string {
	var b strings.Builder

	var mark string
	switch u.Outcome {
	case unit.OutcomeCompleted:
		mark = okStyle.Render("✓")
	case unit.OutcomeSkipped:
		mark = skipStyle.Render("~")
	case unit.OutcomeEscalated:
		mark = escStyle.Render("✗")
	default:
		mark = dimStyle.Render("·")
	}

	b.WriteString(fmt.Sprintf("  %s %-12s %s", mark, u.ID, u.Outcome))
	if u.Attempts > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  (%d attempts)", u.Attempts)))
	}
	if u.Diff != nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  +%d -%d in %d files",
			u.Diff.Additions, u.Diff.Deletions, u.Diff.FilesChanged)))
	}
	b.WriteString("\n")
	if u.Reason != "" {
		b.WriteString(reasonIndent)
		b.WriteString(dimStyle.Render(clip(u.Reason, maxReasonLine)))
		b.WriteString("\n")
	}
	for _, f := range u.Findings {
		b.WriteString(reasonIndent)
		b.WriteString(fmt.Sprintf("[%s] %s", f.Severity, clip(f.Detail, maxReasonLine)))
		b.WriteString("\n")
	}
	return b.String()
}

func renderEscalation(e *unit.EscalationEvent) string {
	var b strings.Builder
	b.WriteString(escStyle.Render("ANDON CORD PULLED"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("unit:     %s\nstep:     %s\ncategory: %s\nreason:   %s\n",
		e.UnitID, e.Step, e.Category, clip(e.Reason, maxReasonLine)))
	if len(e.CommittedUnits) > 0 {
		b.WriteString(fmt.Sprintf("\ncommitted before halt: %s\n", strings.Join(e.CommittedUnits, ", ")))
	}
	if e.InFlightBranch != "" {
		b.WriteString(fmt.Sprintf("in-flight branch preserved: %s\n", e.InFlightBranch))
	}
	b.WriteString("\nA human must resolve this before the run can resume.")
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string, n int) string {
	s = firstLine(s)
	if len(s) > n {
		return s[:n-1] + "…"
	}
	return s
}
