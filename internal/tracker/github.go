package tracker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-github/v82/github"

	andonerr "github.com/chrisallenlane/andon/internal/errors"
)

// GitHubConfig holds configuration for a GitHub issue source.
type GitHubConfig struct {
	Owner string
	Repo  string
	// Token is a personal access token; empty for public repos.
	Token string
}

// GitHubSource fetches tickets from GitHub issues.
type GitHubSource struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubSource creates a GitHub-backed ticket source.
func NewGitHubSource(cfg GitHubConfig) (*GitHubSource, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github owner and repo are required")
	}

	client := github.NewClient(nil)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}

	return &GitHubSource{client: client, owner: cfg.Owner, repo: cfg.Repo}, nil
}

// Name implements Source.
func (s *GitHubSource) Name() string { return "github" }

// Fetch lists open issues. The query is a comma-separated label filter;
// empty means all open issues. Pull requests are excluded.
func (s *GitHubSource) Fetch(ctx context.Context, query string) ([]Ticket, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	if query != "" {
		opts.Labels = strings.Split(query, ",")
	}

	var all []Ticket
	for {
		issues, resp, err := s.client.Issues.ListByRepo(ctx, s.owner, s.repo, opts)
		if err != nil {
			return nil, andonerr.ErrTrackerUnavailable("github", err)
		}

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			all = append(all, convertGitHubIssue(issue))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}

	return all, nil
}

func convertGitHubIssue(issue *github.Issue) Ticket {
	body, criteria := splitBody(issue.GetBody())

	t := Ticket{
		ID:                 strconv.Itoa(issue.GetNumber()),
		Title:              issue.GetTitle(),
		Body:               body,
		AcceptanceCriteria: criteria,
		Dependencies:       parseDependsOn(issue.GetBody()),
	}
	for _, label := range issue.Labels {
		t.Labels = append(t.Labels, label.GetName())
	}
	return t
}
