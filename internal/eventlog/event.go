package eventlog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"sla-clock/internal/sla"
)

// ErrParse is returned when a source record carries a malformed timestamp.
var ErrParse = errors.New("malformed event timestamp")

// ErrInvalidRef is returned for issue references with an unknown source.
var ErrInvalidRef = errors.New("issue reference must be jira:KEY, github:owner/repo#N or file:PATH")

// Source identifies where an issue's history comes from.
type Source string

const (
	SourceJira   Source = "jira"
	SourceGitHub Source = "github"
	SourceFile   Source = "file"
)

// Ref points at one issue in one source.
type Ref struct {
	Source Source
	Key    string
}

// ParseRef parses "jira:PROJ-1", "github:owner/repo#12" or "file:events.json".
// A bare Jira-looking key ("PROJ-1") is accepted as a Jira reference.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	src, key, ok := strings.Cut(s, ":")
	if !ok {
		if strings.Contains(s, "-") && !strings.ContainsAny(s, "/#") {
			return Ref{Source: SourceJira, Key: s}, nil
		}
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}

	switch Source(strings.ToLower(src)) {
	case SourceJira, SourceGitHub, SourceFile:
		if key == "" {
			return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
		}
		return Ref{Source: Source(strings.ToLower(src)), Key: key}, nil
	default:
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
}

func (r Ref) String() string {
	return string(r.Source) + ":" + r.Key
}

// Issue is the canonical, source-independent view of an issue history.
type Issue struct {
	Ref      Ref
	Priority sla.Priority
	Events   []sla.StatusEvent
}

// IssueEvent is the persisted form of a status event in the JSONL cache.
type IssueEvent struct {
	// IssueKey is the source key (e.g., PROJ-123 or owner/repo#12).
	IssueKey string `json:"issueKey"`
	// Priority is the issue priority at fetch time.
	Priority string `json:"priority,omitempty"`
	// Label is the status the issue moved to.
	Label string `json:"label"`
	// Timestamp is when the change happened (Unix microseconds).
	Timestamp int64 `json:"ts"`
	// Sequence preserves source order among equal timestamps.
	Sequence int `json:"seq"`
	// Header marks the per-issue row that records the issue was fetched,
	// so histories without status changes replay from the cache too.
	Header bool `json:"header,omitempty"`
}

func toIssueEvents(issue Issue) []IssueEvent {
	out := make([]IssueEvent, 0, len(issue.Events)+1)
	out = append(out, IssueEvent{IssueKey: issue.Ref.Key, Priority: string(issue.Priority), Header: true})
	for _, e := range issue.Events {
		out = append(out, IssueEvent{
			IssueKey:  issue.Ref.Key,
			Priority:  string(issue.Priority),
			Label:     e.Label,
			Timestamp: e.Timestamp.UnixMicro(),
			Sequence:  e.Sequence,
		})
	}
	return out
}

func toStatusEvents(events []IssueEvent) []sla.StatusEvent {
	out := make([]sla.StatusEvent, 0, len(events))
	for _, e := range events {
		if e.Header {
			continue
		}
		out = append(out, sla.StatusEvent{
			Label:     e.Label,
			Timestamp: time.UnixMicro(e.Timestamp).UTC(),
			Sequence:  e.Sequence,
		})
	}
	return out
}
