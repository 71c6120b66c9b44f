package tracker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	andonerr "github.com/chrisallenlane/andon/internal/errors"
)

// GitLabConfig holds configuration for a GitLab issue source.
type GitLabConfig struct {
	// BaseURL for self-hosted instances; empty for gitlab.com.
	BaseURL string
	// ProjectID is the numeric ID or "group/project" path.
	ProjectID string
	Token     string
}

// GitLabSource fetches tickets from GitLab issues.
type GitLabSource struct {
	client    *gitlab.Client
	projectID string
}

// NewGitLabSource creates a GitLab-backed ticket source.
func NewGitLabSource(cfg GitLabConfig) (*GitLabSource, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("gitlab project ID is required")
	}

	var opts []gitlab.ClientOptionFunc
	if cfg.BaseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(cfg.BaseURL))
	}

	client, err := gitlab.NewClient(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gitlab client: %w", err)
	}

	return &GitLabSource{client: client, projectID: cfg.ProjectID}, nil
}

// Name implements Source.
func (s *GitLabSource) Name() string { return "gitlab" }

// Fetch lists open issues. The query is a comma-separated label filter;
// empty means all open issues.
func (s *GitLabSource) Fetch(ctx context.Context, query string) ([]Ticket, error) {
	state := "opened"
	opts := &gitlab.ListProjectIssuesOptions{
		State:       &state,
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}
	if query != "" {
		labels := gitlab.LabelOptions(strings.Split(query, ","))
		opts.Labels = &labels
	}

	var all []Ticket
	for {
		issues, resp, err := s.client.Issues.ListProjectIssues(s.projectID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, andonerr.ErrTrackerUnavailable("gitlab", err)
		}

		for _, issue := range issues {
			all = append(all, convertGitLabIssue(issue))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

func convertGitLabIssue(issue *gitlab.Issue) Ticket {
	body, criteria := splitBody(issue.Description)

	return Ticket{
		ID:                 strconv.FormatInt(issue.IID, 10),
		Title:              issue.Title,
		Body:               body,
		AcceptanceCriteria: criteria,
		Labels:             issue.Labels,
		Dependencies:       parseDependsOn(issue.Description),
	}
}
