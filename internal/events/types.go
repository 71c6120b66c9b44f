// Package events provides event types and publishing infrastructure for andon.
package events

import (
	"time"
)

// EventType defines the type of event.
type EventType string

const (
	// EventUnitStarted indicates a work unit left pending.
	EventUnitStarted EventType = "unit_started"
	// EventAttemptStarted indicates an invoke-then-verify cycle began.
	EventAttemptStarted EventType = "attempt_started"
	// EventVerification indicates a verification gate run finished.
	EventVerification EventType = "verification"
	// EventUnitTerminal indicates a unit reached a terminal status.
	EventUnitTerminal EventType = "unit_terminal"
	// EventEscalation indicates the andon cord was pulled.
	EventEscalation EventType = "escalation"
	// EventRunFinished indicates the run completed (normally or halted).
	EventRunFinished EventType = "run_finished"
	// EventWarning indicates a non-fatal warning.
	EventWarning EventType = "warning"
)

// Event represents a published event.
type Event struct {
	Type   EventType `json:"type"`
	UnitID string    `json:"unit_id"`
	Data   any       `json:"data"`
	Time   time.Time `json:"time"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, unitID string, data any) Event {
	return Event{
		Type:   eventType,
		UnitID: unitID,
		Data:   data,
		Time:   time.Now(),
	}
}

// AttemptData carries attempt lifecycle details.
type AttemptData struct {
	Seq         int    `json:"seq"`
	MaxAttempts int    `json:"max_attempts"`
	Role        string `json:"role"`
}

// VerificationData carries verification outcome details.
type VerificationData struct {
	Seq     int    `json:"seq"`
	Passed  bool   `json:"passed"`
	Detail  string `json:"detail,omitempty"`
	Command string `json:"command,omitempty"`
}

// TerminalData carries terminal unit outcome details.
type TerminalData struct {
	Outcome  string `json:"outcome"`
	Reason   string `json:"reason,omitempty"`
	Attempts int    `json:"attempts"`
}
