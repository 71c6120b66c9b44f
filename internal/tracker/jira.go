package tracker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	v3 "github.com/ctreminiom/go-atlassian/v2/jira/v3"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	andonerr "github.com/chrisallenlane/andon/internal/errors"
)

// JiraConfig holds the configuration for connecting to a Jira Cloud
// instance.
type JiraConfig struct {
	// BaseURL is the Jira Cloud instance URL (e.g., "https://acme.atlassian.net").
	BaseURL string
	// Email is the user's email address for basic auth.
	Email string
	// APIToken is the API token for basic auth.
	APIToken string
}

// JiraSource fetches tickets from Jira Cloud via JQL queries.
type JiraSource struct {
	jira *v3.Client
}

// jiraSearchFields are the fields requested in search results. Keeping
// this explicit avoids fetching unnecessary data.
var jiraSearchFields = []string{
	"summary",
	"description",
	"labels",
	"issuelinks",
	"status",
}

// NewJiraSource creates a Jira-backed ticket source with basic auth.
func NewJiraSource(cfg JiraConfig) (*JiraSource, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jira base URL is required")
	}
	if cfg.Email == "" {
		return nil, fmt.Errorf("jira email is required")
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("jira API token is required")
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client, err := v3.New(&http.Client{Timeout: 30 * time.Second}, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}

	client.Auth.SetBasicAuth(cfg.Email, cfg.APIToken)
	client.Auth.SetUserAgent("andon/1.0")

	return &JiraSource{jira: client}, nil
}

// Name implements Source.
func (s *JiraSource) Name() string { return "jira" }

// Fetch runs the JQL query, handling pagination.
func (s *JiraSource) Fetch(ctx context.Context, jql string) ([]Ticket, error) {
	var all []Ticket
	nextPageToken := ""

	for {
		result, resp, err := s.jira.Issue.Search.SearchJQL(
			ctx,
			jql,
			jiraSearchFields,
			nil, // no expand
			50,  // maxResults per page
			nextPageToken,
		)
		if err != nil {
			if resp != nil {
				err = fmt.Errorf("jira search (status %d): %w", resp.StatusCode, err)
			}
			return nil, andonerr.ErrTrackerUnavailable("jira", err)
		}

		for _, issue := range result.Issues {
			all = append(all, convertJiraIssue(issue))
		}

		if result.NextPageToken == "" || len(result.Issues) == 0 {
			break
		}
		nextPageToken = result.NextPageToken
	}

	return all, nil
}

// convertJiraIssue maps a go-atlassian IssueScheme to a Ticket.
func convertJiraIssue(issue *models.IssueScheme) Ticket {
	if issue == nil {
		return Ticket{}
	}

	t := Ticket{ID: issue.Key}
	f := issue.Fields
	if f == nil {
		return t
	}

	t.Title = f.Summary
	t.Labels = f.Labels
	if f.Description != nil {
		body, criteria := splitBody(adfToText(f.Description))
		t.Body = body
		t.AcceptanceCriteria = criteria
	}

	// "is blocked by" inward links become dependencies
	for _, link := range f.IssueLinks {
		if link == nil || link.Type == nil || link.InwardIssue == nil {
			continue
		}
		if strings.EqualFold(link.Type.Name, "Blocks") {
			t.Dependencies = append(t.Dependencies, link.InwardIssue.Key)
		}
	}

	return t
}

// adfToText flattens an Atlassian Document Format node tree into plain
// text. Only text content is kept; marks and layout are dropped.
func adfToText(node *models.CommentNodeScheme) string {
	if node == nil {
		return ""
	}

	var b strings.Builder
	var walk func(n *models.CommentNodeScheme)
	walk = func(n *models.CommentNodeScheme) {
		if n == nil {
			return
		}
		if n.Text != "" {
			b.WriteString(n.Text)
		}
		if n.Type == "paragraph" || n.Type == "listItem" {
			defer b.WriteString("\n")
		}
		for _, child := range n.Content {
			walk(child)
		}
	}
	walk(node)
	return strings.TrimSpace(b.String())
}
