// Package tracker provides issue sources for ticket-driven scopes.
//
// A tracker is the source of truth for what work exists. If it cannot be
// reached the run escalates immediately; there is nothing sensible to
// retry against a tracker that is down.
package tracker

import (
	"context"
)

// Ticket is one issue fetched from a tracker, in the engine's simplified
// shape.
type Ticket struct {
	ID                 string
	Title              string
	Body               string
	AcceptanceCriteria []string
	Labels             []string
	// Dependencies lists ticket IDs that must be finished first.
	Dependencies []string
}

// Source fetches tickets matching a query. The query syntax is
// source-specific (JQL for Jira, label filters for GitHub/GitLab, a
// no-op for file sources).
type Source interface {
	// Name identifies the source in errors and logs.
	Name() string
	// Fetch returns tickets matching the query. Any failure here is
	// escalation-class; callers must not retry it.
	Fetch(ctx context.Context, query string) ([]Ticket, error)
}
