package progress

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/chrisallenlane/andon/internal/unit"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	skippedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	abortedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	scoreStyle     = lipgloss.NewStyle().Bold(true)
)

// statusOrder fixes the display order of status groups.
var statusOrder = []unit.Status{
	unit.StatusInProgress,
	unit.StatusPending,
	unit.StatusCompleted,
	unit.StatusSkipped,
	unit.StatusAborted,
}

func styleFor(s unit.Status) lipgloss.Style {
	switch s {
	case unit.StatusCompleted:
		return completedStyle
	case unit.StatusSkipped:
		return skippedStyle
	case unit.StatusAborted:
		return abortedStyle
	default:
		return pendingStyle
	}
}

// SummaryView renders the state as a human-readable progress table
// grouped by status: what is done, what is left, and the overall score.
func (state *ProjectState) SummaryView() string {
	var b strings.Builder

	width := terminalWidth()

	b.WriteString(headerStyle.Render("Progress"))
	b.WriteString(fmt.Sprintf("  (%d/%d units completed, overall score %.1f%%)\n\n",
		state.Aggregate.CompletedUnits, state.Aggregate.TotalUnits,
		state.Aggregate.OverallScore))

	for _, status := range statusOrder {
		ids := unitsWithStatus(state.Units, status)
		if len(ids) == 0 {
			continue
		}

		b.WriteString(styleFor(status).Render(fmt.Sprintf("%s (%d)", status, len(ids))))
		b.WriteString("\n")
		for _, id := range ids {
			rec := state.Units[id]
			line := fmt.Sprintf("  %-24s attempts=%d", id, rec.Attempts)
			if rec.Score > 0 {
				line += scoreStyle.Render(fmt.Sprintf("  %.1f%%", rec.Score))
			}
			if len(rec.Notes) > 0 {
				note := rec.Notes[len(rec.Notes)-1]
				if len(line)+len(note)+4 > width {
					if width > len(line)+8 {
						note = note[:width-len(line)-8] + "..."
					} else {
						note = ""
					}
				}
				if note != "" {
					line += "  " + note
				}
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func unitsWithStatus(units map[string]*Record, status unit.Status) []string {
	var ids []string
	for id, rec := range units {
		if rec.Status == status {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func terminalWidth() int {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return 120
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 120
	}
	return w
}
