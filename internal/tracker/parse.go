package tracker

import (
	"strings"
)

// splitBody separates an issue body from its acceptance criteria. A
// heading line containing "acceptance criteria" starts the criteria
// section; bullet lines under it become individual criteria.
func splitBody(text string) (body string, criteria []string) {
	lines := strings.Split(text, "\n")
	var bodyLines []string
	inCriteria := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(strings.Trim(trimmed, "#* :"))

		if lower == "acceptance criteria" {
			inCriteria = true
			continue
		}

		if inCriteria {
			item := strings.TrimSpace(strings.TrimLeft(trimmed, "-*+ \t"))
			if item == "" {
				continue
			}
			// Checklist markers from GitHub/GitLab bodies
			item = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(item, "[ ]"), "[x]"))
			if item != "" {
				criteria = append(criteria, item)
			}
			continue
		}

		bodyLines = append(bodyLines, line)
	}

	return strings.TrimSpace(strings.Join(bodyLines, "\n")), criteria
}

// parseDependsOn extracts ticket IDs from "Depends on: A, B" lines, the
// convention file and forge sources use since they have no native link
// type for blocking relationships.
func parseDependsOn(text string) []string {
	var deps []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if !strings.HasPrefix(lower, "depends on:") && !strings.HasPrefix(lower, "depends-on:") {
			continue
		}
		rest := trimmed[strings.Index(trimmed, ":")+1:]
		for _, dep := range strings.Split(rest, ",") {
			dep = strings.Trim(strings.TrimSpace(dep), "#")
			if dep != "" {
				deps = append(deps, dep)
			}
		}
	}
	return deps
}
