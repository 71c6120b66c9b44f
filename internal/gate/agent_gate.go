package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/chrisallenlane/andon/internal/agent"
	andonerr "github.com/chrisallenlane/andon/internal/errors"
)

// AgentGate uses a QA-role agent as the verification check. It is the
// gate of choice for workflows whose "tests" are judgment calls: an
// architectural review step, a docs pass.
type AgentGate struct {
	invoker      agent.Invoker
	instructions string
}

// NewAgentGate creates a gate that asks a QA agent for a verdict.
func NewAgentGate(invoker agent.Invoker, instructions string) *AgentGate {
	if instructions == "" {
		instructions = "Review the current changes in this working tree. " +
			"Verify they are correct, complete, and do not break existing behavior."
	}
	return &AgentGate{invoker: invoker, instructions: instructions}
}

// Check asks the QA agent for an approved/rejected verdict.
//
// An invocation failure (timeout, malformed verdict) is an
// infrastructure error: the gate could not produce a verdict at all, so
// it escalates rather than consuming attempts on a broken judge.
func (g *AgentGate) Check(ctx context.Context, workdir string) (*Outcome, error) {
	prompt := g.instructions +
		"\n\nRespond with status \"complete\" and put your verdict in the summary " +
		"as a JSON object: {\"verdict\":\"approved\"|\"rejected\",\"reason\":string}"

	res, err := g.invoker.Invoke(ctx, agent.Request{
		Role:         agent.RoleQA,
		Instructions: prompt,
		Workdir:      workdir,
	})
	if err != nil {
		return nil, andonerr.ErrVerifyInfra("qa agent", err)
	}

	verdict, reason, perr := parseVerdict(res)
	if perr != nil {
		return nil, andonerr.ErrVerifyInfra("qa agent", perr)
	}

	if verdict == "approved" {
		return &Outcome{Passed: true}, nil
	}
	return &Outcome{
		Passed: false,
		Detail: reason,
	}, nil
}

func parseVerdict(res *agent.Result) (verdict, reason string, err error) {
	// Prefer a structured verdict in the payload, fall back to the
	// summary text.
	for _, candidate := range []string{res.Payload, res.Summary} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || !gjson.Valid(candidate) {
			continue
		}
		v := gjson.Get(candidate, "verdict").String()
		if v == "approved" || v == "rejected" {
			return v, gjson.Get(candidate, "reason").String(), nil
		}
	}
	return "", "", fmt.Errorf("no approved/rejected verdict in agent output")
}
