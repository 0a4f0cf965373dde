package sla

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrMissingTimestamp is returned when a status event carries no timestamp.
var ErrMissingTimestamp = errors.New("status event has no timestamp")

// StatusEvent is one raw status change of an issue.
type StatusEvent struct {
	// Label is the status name as reported by the source (e.g. "In Progress").
	Label string `json:"label"`
	// Timestamp is when the status change happened.
	Timestamp time.Time `json:"timestamp"`
	// Sequence preserves source order for events sharing a timestamp.
	Sequence int `json:"sequence"`
}

// Category is the static classification of a status label.
type Category int

const (
	// Neutral labels have no effect on the clock.
	Neutral Category = iota
	// Active labels start the clock.
	Active
	// Paused labels stop the clock and keep the time accumulated so far.
	Paused
	// Ignored labels stop the clock and discard the running period.
	Ignored
)

func (c Category) String() string {
	switch c {
	case Active:
		return "active"
	case Paused:
		return "paused"
	case Ignored:
		return "ignored"
	default:
		return "neutral"
	}
}

// Categories holds the configured label sets.
type Categories struct {
	Active  []string
	Paused  []string
	Ignored []string
}

// Transition is a classified, clock-relevant status change.
type Transition struct {
	Category Category
	At       time.Time
	Label    string
}

// Of returns the category of a label. Matching ignores case and surrounding
// whitespace; a label listed in several sets resolves as Ignored, then Paused.
func (c Categories) Of(label string) Category {
	switch {
	case containsLabel(c.Ignored, label):
		return Ignored
	case containsLabel(c.Paused, label):
		return Paused
	case containsLabel(c.Active, label):
		return Active
	default:
		return Neutral
	}
}

// Classify maps events to transitions, dropping Neutral ones. The result is
// ordered by timestamp, with Sequence breaking ties and the input order
// preserved for full ties.
func (c Categories) Classify(events []StatusEvent) ([]Transition, error) {
	ordered := slices.Clone(events)
	for i, e := range ordered {
		if e.Timestamp.IsZero() {
			return nil, fmt.Errorf("event %d (%q): %w", i, e.Label, ErrMissingTimestamp)
		}
	}

	slices.SortStableFunc(ordered, func(a, b StatusEvent) int {
		if n := a.Timestamp.Compare(b.Timestamp); n != 0 {
			return n
		}
		return cmp.Compare(a.Sequence, b.Sequence)
	})

	transitions := make([]Transition, 0, len(ordered))
	for _, e := range ordered {
		cat := c.Of(e.Label)
		if cat == Neutral {
			continue
		}
		transitions = append(transitions, Transition{Category: cat, At: e.Timestamp, Label: e.Label})
	}
	return transitions, nil
}

func containsLabel(set []string, label string) bool {
	label = strings.TrimSpace(label)
	for _, s := range set {
		if strings.EqualFold(strings.TrimSpace(s), label) {
			return true
		}
	}
	return false
}
