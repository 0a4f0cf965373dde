package sla

import (
	"strings"
	"time"
)

// Priority is an issue priority code such as "P1".
type Priority string

const (
	P1 Priority = "P1"
	P2 Priority = "P2"
	P3 Priority = "P3"
	P4 Priority = "P4"
)

// ParsePriority normalizes raw priority labels ("p1", " P2 ", "priority: P3").
// Unrecognized input is returned upper-cased and resolves to the default threshold.
func ParsePriority(raw string) Priority {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.LastIndexAny(s, ":/ "); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	return Priority(s)
}

// Thresholds maps priorities to their allowed business seconds.
type Thresholds struct {
	Table map[Priority]int64
	// Default applies to priorities missing from Table. Zero means the
	// largest value in Table.
	Default int64
}

// DefaultThresholds is 2, 3, 4 and 5 business days of 8 hours for P1..P4.
func DefaultThresholds() Thresholds {
	hours := func(h int64) int64 { return h * int64(time.Hour/time.Second) }
	return Thresholds{
		Table: map[Priority]int64{
			P1: hours(16),
			P2: hours(24),
			P3: hours(32),
			P4: hours(40),
		},
	}
}

// For returns the threshold of p and whether p was found in the table.
func (t Thresholds) For(p Priority) (int64, bool) {
	if v, ok := t.Table[p]; ok {
		return v, true
	}
	return t.fallback(), false
}

func (t Thresholds) fallback() int64 {
	if t.Default > 0 {
		return t.Default
	}
	var largest int64
	for _, v := range t.Table {
		largest = max(largest, v)
	}
	return largest
}

// Breached reports whether elapsed strictly exceeds threshold.
func Breached(elapsed, threshold int64) bool {
	return elapsed > threshold
}
