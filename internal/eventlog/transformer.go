package eventlog

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"sla-clock/internal/github"
	"sla-clock/internal/jira"
	"sla-clock/internal/sla"
)

// FromJira converts a Jira issue and its changelog into status events.
//
// The issue's creation is emitted first, carrying the status the issue was
// born in, so work created directly in an active status is clocked from
// creation. Every status item of every history entry follows, in changelog
// order. registry may be nil; it only fills in names missing from items.
func FromJira(dto jira.IssueDTO, registry *jira.NameRegistry) (Issue, error) {
	issue := Issue{
		Ref:      Ref{Source: SourceJira, Key: dto.Key},
		Priority: sla.ParsePriority(dto.Fields.Priority.Name),
	}

	created, err := jira.ParseTime(dto.Fields.Created)
	if err != nil {
		return Issue{}, fmt.Errorf("%s created %q: %w: %v", dto.Key, dto.Fields.Created, ErrParse, err)
	}

	var histories []jira.HistoryDTO
	if dto.Changelog != nil {
		histories = append(histories, dto.Changelog.Histories...)
	}
	if newestFirst(histories) {
		slices.Reverse(histories)
	}

	// Parse once; the stable sort keeps changelog order within a millisecond.
	type parsed struct {
		history jira.HistoryDTO
		created int64
	}
	entries := make([]parsed, 0, len(histories))
	for _, h := range histories {
		ts, err := jira.ParseTime(h.Created)
		if err != nil {
			return Issue{}, fmt.Errorf("%s history %s created %q: %w: %v", dto.Key, h.ID, h.Created, ErrParse, err)
		}
		entries = append(entries, parsed{history: h, created: ts.UnixMicro()})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].created < entries[j].created
	})

	// Initial status: the "from" side of the first status change, else the current status.
	initial := statusName(dto.Fields.Status.Name, dto.Fields.Status.ID, registry)
	for _, e := range entries {
		if item := statusItem(e.history); item != nil {
			initial = statusName(item.FromString, item.From, registry)
			break
		}
	}

	seq := 0
	if initial != "" {
		issue.Events = append(issue.Events, sla.StatusEvent{Label: initial, Timestamp: created, Sequence: seq})
		seq++
	}

	for _, e := range entries {
		ts, _ := jira.ParseTime(e.history.Created)
		for _, item := range e.history.Items {
			if !strings.EqualFold(item.Field, "status") {
				continue
			}
			issue.Events = append(issue.Events, sla.StatusEvent{
				Label:     statusName(item.ToString, item.To, registry),
				Timestamp: ts,
				Sequence:  seq,
			})
			seq++
		}
	}

	return issue, nil
}

// newestFirst reports whether the changelog is in descending order, judged by
// its first and last entries. Unparseable timestamps are reported later.
func newestFirst(histories []jira.HistoryDTO) bool {
	if len(histories) < 2 {
		return false
	}
	first, err1 := jira.ParseTime(histories[0].Created)
	last, err2 := jira.ParseTime(histories[len(histories)-1].Created)
	return err1 == nil && err2 == nil && first.After(last)
}

func statusItem(h jira.HistoryDTO) *jira.ItemDTO {
	for i := range h.Items {
		if strings.EqualFold(h.Items[i].Field, "status") {
			return &h.Items[i]
		}
	}
	return nil
}

func statusName(name, id string, registry *jira.NameRegistry) string {
	if name != "" {
		return name
	}
	return registry.GetStatusName(id)
}

// GitHub issue event types turned into synthetic status labels.
const (
	LabelClosed    = "closed"
	LabelReopened  = "reopened"
	LabelUnlabeled = "unlabeled"
)

// FromGitHub converts a GitHub issue and its event history into status events.
// "labeled" events carry the label name; "closed" and "reopened" become the
// synthetic labels LabelClosed and LabelReopened. Removing the label the issue
// currently sits in emits LabelUnlabeled; removing any other label is ignored.
// Everything else is dropped.
// The priority is the first issue label that parses as a configured code.
func FromGitHub(ref github.IssueRef, meta *github.Issue, events []github.IssueEvent, priorities []sla.Priority) Issue {
	issue := Issue{Ref: Ref{Source: SourceGitHub, Key: ref.String()}}

	if meta != nil {
		issue.Priority = priorityFromLabels(meta.Labels, priorities)
	}

	var current string
	for i, e := range events {
		var label string
		switch e.Event {
		case "labeled":
			if e.Label == nil {
				continue
			}
			label = e.Label.Name
		case "unlabeled":
			if e.Label == nil || current == "" || !strings.EqualFold(e.Label.Name, current) {
				continue
			}
			label = LabelUnlabeled
		case "closed":
			label = LabelClosed
		case "reopened":
			label = LabelReopened
		default:
			continue
		}
		current = label
		issue.Events = append(issue.Events, sla.StatusEvent{Label: label, Timestamp: e.CreatedAt, Sequence: i})
	}
	return issue
}

func priorityFromLabels(labels []github.Label, priorities []sla.Priority) sla.Priority {
	for _, l := range labels {
		p := sla.ParsePriority(l.Name)
		for _, known := range priorities {
			if p == known {
				return p
			}
		}
	}
	return ""
}
