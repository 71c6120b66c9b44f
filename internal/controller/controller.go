// Package controller implements the bounded retry/escalation loop that
// wraps (agent invoke -> verification gate) cycles for one work unit.
//
// Repeated blind retries rarely converge, so every retry carries the
// previous verification failure back into the agent's instructions as a
// repair prompt. Attempts are capped; exhausting them reverts the unit
// rather than leaving partial state, and certain failure categories skip
// the retry path entirely and pull the andon cord.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chrisallenlane/andon/internal/agent"
	andonerr "github.com/chrisallenlane/andon/internal/errors"
	"github.com/chrisallenlane/andon/internal/events"
	"github.com/chrisallenlane/andon/internal/gate"
	"github.com/chrisallenlane/andon/internal/unit"
)

// State is the controller's per-unit state machine position.
type State string

const (
	StateNotStarted State = "not_started"
	StateAttempting State = "attempting"
	StateVerifying  State = "verifying"
	StateSucceeded  State = "succeeded"
	StateExhausted  State = "exhausted"
	StateEscalated  State = "escalated"
)

// DefaultMaxAttempts bounds repair attempts when not configured.
const DefaultMaxAttempts = 3

// Result is the controller's terminal verdict for one unit.
type Result struct {
	Final State
	// LastAgent is the result of the final successful invocation, nil
	// when every invocation failed.
	LastAgent *agent.Result
	// FailureReason explains exhaustion or escalation.
	FailureReason string
	// Escalation carries the escalation-class error when Final is
	// StateEscalated.
	Escalation error
}

// Controller drives the attempt loop for work units.
type Controller struct {
	invoker     agent.Invoker
	gate        gate.Gate
	maxAttempts int
	publisher   events.Publisher
	logger      *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxAttempts sets the attempt bound (default 3).
func WithMaxAttempts(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a controller over an invoker and a verification gate.
func New(invoker agent.Invoker, g gate.Gate, opts ...Option) *Controller {
	c := &Controller{
		invoker:     invoker,
		gate:        g,
		maxAttempts: DefaultMaxAttempts,
		publisher:   events.NopPublisher{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxAttempts returns the configured attempt bound.
func (c *Controller) MaxAttempts() int { return c.maxAttempts }

// RunUnit executes the full attempt loop for one unit. The base request
// carries the role, instructions and scope; the controller appends the
// repair context on retries.
//
// RunUnit mutates u's attempt log but never its status; terminal status
// and commit/revert decisions belong to the orchestrator.
func (c *Controller) RunUnit(ctx context.Context, u *unit.WorkUnit, base agent.Request) (*Result, error) {
	state := StateNotStarted

	for u.AttemptCount() < c.maxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state = StateAttempting
		seq := u.AttemptCount() + 1
		started := time.Now()

		c.publish(events.NewEvent(events.EventAttemptStarted, u.ID, events.AttemptData{
			Seq:         seq,
			MaxAttempts: c.maxAttempts,
			Role:        string(base.Role),
		}))
		c.logger.Info("attempt started",
			"unit", u.ID,
			"attempt", seq,
			"max_attempts", c.maxAttempts)

		req := base
		if detail := u.LastFailureDetail(); detail != "" {
			req.Instructions = repairPrompt(base.Instructions, seq, detail)
		}

		agentRes, err := c.invoker.Invoke(ctx, req)
		if err != nil {
			switch andonerr.ClassOf(err) {
			case andonerr.ClassEscalation:
				return c.escalate(u, state, err)
			default:
				// Timeouts, malformed output and refusals fold into the
				// normal attempt counting.
				u.RecordAttempt(&unit.Attempt{
					Verification:  unit.VerificationFail,
					FailureDetail: err.Error(),
					StartedAt:     started,
					Duration:      time.Since(started),
				})
				c.logger.Warn("invocation failed", "unit", u.ID, "attempt", seq, "error", err)
				continue
			}
		}

		state = StateVerifying
		outcome, err := c.gate.Check(ctx, base.Workdir)
		if err != nil {
			// The gate itself could not run: tooling is broken, not the
			// code under test.
			return c.escalate(u, state, err)
		}

		attempt := &unit.Attempt{
			StartedAt:    started,
			Duration:     time.Since(started),
			AgentSummary: agentRes.Summary,
		}
		if outcome.Passed {
			attempt.Verification = unit.VerificationPass
			u.RecordAttempt(attempt)
			c.publish(events.NewEvent(events.EventVerification, u.ID, events.VerificationData{
				Seq: attempt.Seq, Passed: true,
			}))
			c.logger.Info("unit verified", "unit", u.ID, "attempts", u.AttemptCount())
			return &Result{Final: StateSucceeded, LastAgent: agentRes}, nil
		}

		attempt.Verification = unit.VerificationFail
		attempt.FailureDetail = outcome.Detail
		u.RecordAttempt(attempt)
		c.publish(events.NewEvent(events.EventVerification, u.ID, events.VerificationData{
			Seq: attempt.Seq, Passed: false, Detail: outcome.Detail,
		}))
		c.logger.Warn("verification failed",
			"unit", u.ID,
			"attempt", attempt.Seq,
			"exit_code", outcome.ExitCode)
	}

	reason := fmt.Sprintf("verification failed on all %d attempts", c.maxAttempts)
	if detail := u.LastFailureDetail(); detail != "" {
		reason = fmt.Sprintf("%s; last failure: %s", reason, firstLine(detail))
	}
	c.logger.Warn("attempts exhausted", "unit", u.ID, "max_attempts", c.maxAttempts)
	return &Result{Final: StateExhausted, FailureReason: reason}, nil
}

func (c *Controller) escalate(u *unit.WorkUnit, state State, err error) (*Result, error) {
	c.publish(events.NewEvent(events.EventEscalation, u.ID, events.TerminalData{
		Outcome:  string(unit.OutcomeEscalated),
		Reason:   err.Error(),
		Attempts: u.AttemptCount(),
	}))
	c.logger.Error("escalation", "unit", u.ID, "state", string(state), "error", err)
	return &Result{
		Final:         StateEscalated,
		FailureReason: err.Error(),
		Escalation:    err,
	}, nil
}

func (c *Controller) publish(ev events.Event) {
	if c.publisher != nil {
		c.publisher.Publish(ev)
	}
}

// repairPrompt rebuilds the instructions with the failure detail from
// the previous attempt so the agent repairs with context instead of
// retrying blind.
func repairPrompt(instructions string, attempt int, detail string) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString(fmt.Sprintf("\n\nThis is repair attempt %d. The previous attempt failed verification:\n\n", attempt))
	b.WriteString(detail)
	b.WriteString("\n\nFix the cause of this failure and complete the original task.")
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
