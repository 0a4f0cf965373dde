// Package github reads issue label histories from the GitHub REST API.
package github

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRef is returned for issue references not shaped like owner/repo#123.
var ErrInvalidRef = errors.New("github issue reference must look like owner/repo#123")

// IssueRef identifies an issue within a repository.
type IssueRef struct {
	Owner  string
	Repo   string
	Number int
}

// ParseIssueRef parses "owner/repo#123".
func ParseIssueRef(s string) (IssueRef, error) {
	repoPart, numPart, ok := strings.Cut(strings.TrimSpace(s), "#")
	if !ok {
		return IssueRef{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	owner, repo, ok := strings.Cut(repoPart, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return IssueRef{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return IssueRef{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	return IssueRef{Owner: owner, Repo: repo, Number: n}, nil
}

func (r IssueRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// Label is a GitHub issue label.
type Label struct {
	Name string `json:"name"`
}

// Issue is the subset of the issue payload we read.
type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Labels    []Label   `json:"labels"`
	CreatedAt time.Time `json:"created_at"`
}

// IssueEvent is one entry of /issues/{n}/events.
type IssueEvent struct {
	ID        int64     `json:"id"`
	Event     string    `json:"event"`
	CreatedAt time.Time `json:"created_at"`
	Label     *Label    `json:"label,omitempty"`
}
