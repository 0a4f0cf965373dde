package sla

import (
	"time"

	"sla-clock/internal/calendar"
)

// Phase is the running state of the SLA clock.
type Phase int

const (
	// Idle means the clock is stopped.
	Idle Phase = iota
	// Running means the clock accumulates business time since ActiveStart.
	Running
)

func (p Phase) String() string {
	if p == Running {
		return "running"
	}
	return "idle"
}

// Observer receives every transition the clock processes. It is the hook for
// diagnostic tracing; the clock itself has no side effects.
type Observer interface {
	Observe(step Step)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(step Step)

// Observe calls f(step).
func (f ObserverFunc) Observe(step Step) { f(step) }

// Step describes one processed transition.
type Step struct {
	Transition Transition
	From       Phase
	To         Phase
	// Added is the business time accumulated by this step, in seconds.
	Added int64
	// Discarded is the running time dropped by an Ignored transition, in seconds.
	Discarded   int64
	Accumulated int64
}

// Clock is the SLA state machine. A Clock is created per evaluation and must
// not be shared between goroutines.
type Clock struct {
	cal         *calendar.Calendar
	observer    Observer
	phase       Phase
	activeStart time.Time
	accumulated int64
}

// NewClock returns an idle clock over cal. observer may be nil.
func NewClock(cal *calendar.Calendar, observer Observer) *Clock {
	return &Clock{cal: cal, observer: observer}
}

// Phase returns the current phase.
func (c *Clock) Phase() Phase { return c.phase }

// ActiveStart returns the normalized start of the running period, if any.
func (c *Clock) ActiveStart() (time.Time, bool) {
	return c.activeStart, c.phase == Running
}

// Accumulated returns the business seconds accumulated so far.
func (c *Clock) Accumulated() int64 { return c.accumulated }

// Apply processes one transition.
func (c *Clock) Apply(tr Transition) {
	step := Step{Transition: tr, From: c.phase}

	switch c.phase {
	case Idle:
		if tr.Category == Active {
			c.phase = Running
			c.activeStart = c.cal.Adjust(tr.At)
		}
	case Running:
		switch tr.Category {
		case Paused:
			step.Added = c.cal.BusinessSeconds(c.activeStart, tr.At)
			c.accumulated += step.Added
			c.stop()
		case Ignored:
			step.Discarded = c.cal.BusinessSeconds(c.activeStart, tr.At)
			c.stop()
		}
	}

	step.To = c.phase
	step.Accumulated = c.accumulated
	c.notify(step)
}

// Finish closes a running period at evaluationInstant and returns the total.
// The clock is idle afterwards.
func (c *Clock) Finish(evaluationInstant time.Time) int64 {
	if c.phase == Running {
		step := Step{
			Transition: Transition{Category: Paused, At: evaluationInstant, Label: "(evaluation)"},
			From:       Running,
			To:         Idle,
			Added:      c.cal.BusinessSeconds(c.activeStart, evaluationInstant),
		}
		c.accumulated += step.Added
		c.stop()
		step.Accumulated = c.accumulated
		c.notify(step)
	}
	return c.accumulated
}

func (c *Clock) stop() {
	c.phase = Idle
	c.activeStart = time.Time{}
}

func (c *Clock) notify(step Step) {
	if c.observer != nil {
		c.observer.Observe(step)
	}
}

// RunClock runs a fresh clock over transitions and closes it at evaluationInstant.
func RunClock(cal *calendar.Calendar, transitions []Transition, evaluationInstant time.Time, observer Observer) int64 {
	clock := NewClock(cal, observer)
	for _, tr := range transitions {
		clock.Apply(tr)
	}
	return clock.Finish(evaluationInstant)
}
