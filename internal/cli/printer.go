package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/chrisallenlane/andon/internal/events"
)

var (
	passMark = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("pass")
	failMark = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("fail")
	cordMark = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Render("ANDON")
)

// startProgressPrinter subscribes to the run's event stream and prints
// one line per noteworthy event. Returns the publisher to hand to the
// orchestrator and a stop function to call once the run is done.
func startProgressPrinter(out io.Writer) (events.Publisher, func()) {
	pub := events.NewMemoryPublisher()
	sub := pub.Subscribe(events.GlobalUnitID)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range sub.C {
			printEvent(out, ev)
		}
	}()

	stop := func() {
		pub.Close()
		wg.Wait()
	}
	return pub, stop
}

func printEvent(out io.Writer, ev events.Event) {
	switch ev.Type {
	case events.EventUnitStarted:
		fmt.Fprintf(out, "▸ %s\n", ev.UnitID)
	case events.EventAttemptStarted:
		if d, ok := ev.Data.(events.AttemptData); ok {
			fmt.Fprintf(out, "  %s attempt %d/%d (%s)\n", ev.UnitID, d.Seq, d.MaxAttempts, d.Role)
		}
	case events.EventVerification:
		if d, ok := ev.Data.(events.VerificationData); ok {
			mark := passMark
			if !d.Passed {
				mark = failMark
			}
			fmt.Fprintf(out, "  %s verification %s\n", ev.UnitID, mark)
		}
	case events.EventUnitTerminal:
		if d, ok := ev.Data.(events.TerminalData); ok {
			fmt.Fprintf(out, "  %s %s\n", ev.UnitID, d.Outcome)
		}
	case events.EventEscalation:
		fmt.Fprintf(out, "%s cord pulled at %s\n", cordMark, ev.UnitID)
	}
}
