package tracker

import (
	"context"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	andonerr "github.com/chrisallenlane/andon/internal/errors"
)

// FileSource reads tickets from a YAML file. It exists for offline runs
// and deterministic tests, and doubles as the reference shape for the
// Source contract.
type FileSource struct {
	path string
}

// fileTicket is the YAML schema for one ticket.
type fileTicket struct {
	ID                 string   `yaml:"id"`
	Title              string   `yaml:"title"`
	Body               string   `yaml:"body,omitempty"`
	AcceptanceCriteria []string `yaml:"acceptance_criteria,omitempty"`
	Labels             []string `yaml:"labels,omitempty"`
	DependsOn          []string `yaml:"depends_on,omitempty"`
}

// NewFileSource creates a file-backed ticket source.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name implements Source.
func (s *FileSource) Name() string { return "file" }

// Fetch reads all tickets, filtered by a comma-separated label query.
// A missing or unreadable file escalates exactly like a tracker being
// down: the source of truth is gone.
func (s *FileSource) Fetch(ctx context.Context, query string) ([]Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, andonerr.ErrTrackerUnavailable("file", err)
	}

	var raw struct {
		Tickets []fileTicket `yaml:"tickets"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, andonerr.ErrTrackerUnavailable("file", err)
	}

	var wantLabels []string
	if query != "" {
		for _, l := range strings.Split(query, ",") {
			wantLabels = append(wantLabels, strings.TrimSpace(l))
		}
	}

	var out []Ticket
	for _, ft := range raw.Tickets {
		if !hasAllLabels(ft.Labels, wantLabels) {
			continue
		}
		out = append(out, Ticket{
			ID:                 ft.ID,
			Title:              ft.Title,
			Body:               ft.Body,
			AcceptanceCriteria: ft.AcceptanceCriteria,
			Labels:             ft.Labels,
			Dependencies:       ft.DependsOn,
		})
	}
	return out, nil
}

func hasAllLabels(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
