// Package sla interprets status-change streams and runs the SLA clock over
// them. Everything here is pure: no I/O, no logging, no wall-clock reads.
package sla

import (
	"errors"
	"time"

	"sla-clock/internal/calendar"
)

// ErrNoCalendar is returned when ComputeSLA is called without a calendar.
var ErrNoCalendar = errors.New("business calendar is required")

const (
	VerdictBreached  = "Breached"
	VerdictWithinSLA = "WithinSLA"
)

// Result is the verdict for one issue.
type Result struct {
	Priority         Priority `json:"priority"`
	ElapsedSeconds   int64    `json:"elapsed_seconds"`
	ThresholdSeconds int64    `json:"threshold_seconds"`
	Breached         bool     `json:"breached"`
}

// Verdict renders Breached as "Breached" or "WithinSLA".
func (r Result) Verdict() string {
	if r.Breached {
		return VerdictBreached
	}
	return VerdictWithinSLA
}

// ElapsedHours returns the elapsed time in whole hours, rounded down.
func (r Result) ElapsedHours() int64 {
	return r.ElapsedSeconds / int64(time.Hour/time.Second)
}

// Options carries optional collaborators of ComputeSLA.
type Options struct {
	Observer Observer
}

// ComputeSLA classifies events, runs a fresh clock over them and compares the
// accumulated business time with the priority's threshold. A clock still
// running at the end of the stream is closed at evaluationInstant.
func ComputeSLA(
	events []StatusEvent,
	priority Priority,
	cal *calendar.Calendar,
	cats Categories,
	thresholds Thresholds,
	evaluationInstant time.Time,
	opts ...Options,
) (Result, error) {
	if cal == nil {
		return Result{}, ErrNoCalendar
	}

	var observer Observer
	for _, o := range opts {
		if o.Observer != nil {
			observer = o.Observer
		}
	}

	transitions, err := cats.Classify(events)
	if err != nil {
		return Result{}, err
	}

	elapsed := RunClock(cal, transitions, evaluationInstant, observer)
	threshold, _ := thresholds.For(priority)

	return Result{
		Priority:         priority,
		ElapsedSeconds:   elapsed,
		ThresholdSeconds: threshold,
		Breached:         Breached(elapsed, threshold),
	}, nil
}
