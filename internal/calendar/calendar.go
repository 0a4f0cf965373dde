// Package calendar normalizes instants to a weekly business window and
// measures business time between them.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidHours is returned when the daily window is empty or outside 0..24.
	ErrInvalidHours = errors.New("business hours must satisfy 0 <= start < end <= 24")
	// ErrInvalidWeekday is returned when a weekday bound is not a time.Weekday.
	ErrInvalidWeekday = errors.New("weekday must be between Sunday and Saturday")
)

// Config describes the recurring weekly window in which time counts.
type Config struct {
	// Timezone is the IANA name of the civil calendar used for all comparisons.
	Timezone string
	// WeekdayStart and WeekdayEnd bound the business week (inclusive).
	// The range may wrap, e.g. Saturday..Wednesday.
	WeekdayStart time.Weekday
	WeekdayEnd   time.Weekday
	// HourStart and HourEnd bound the business day as [HourStart, HourEnd).
	HourStart int
	HourEnd   int
}

// Calendar is a compiled, immutable business calendar.
type Calendar struct {
	loc          *time.Location
	weekdayStart time.Weekday
	weekdayEnd   time.Weekday
	hourStart    int
	hourEnd      int
}

// Default returns the Asia/Kolkata Mon-Fri 10:00-18:00 calendar.
func Default() Config {
	return Config{
		Timezone:     "Asia/Kolkata",
		WeekdayStart: time.Monday,
		WeekdayEnd:   time.Friday,
		HourStart:    10,
		HourEnd:      18,
	}
}

// New validates cfg and loads its timezone.
func New(cfg Config) (*Calendar, error) {
	if cfg.HourStart < 0 || cfg.HourEnd > 24 || cfg.HourStart >= cfg.HourEnd {
		return nil, fmt.Errorf("%w: got %d..%d", ErrInvalidHours, cfg.HourStart, cfg.HourEnd)
	}
	if !validWeekday(cfg.WeekdayStart) || !validWeekday(cfg.WeekdayEnd) {
		return nil, fmt.Errorf("%w: got %d..%d", ErrInvalidWeekday, cfg.WeekdayStart, cfg.WeekdayEnd)
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	return &Calendar{
		loc:          loc,
		weekdayStart: cfg.WeekdayStart,
		weekdayEnd:   cfg.WeekdayEnd,
		hourStart:    cfg.HourStart,
		hourEnd:      cfg.HourEnd,
	}, nil
}

// MustNew is New for static configurations known to be valid.
func MustNew(cfg Config) *Calendar {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// Location returns the civil timezone of the calendar.
func (c *Calendar) Location() *time.Location { return c.loc }

// IsBusinessDay reports whether d falls inside the configured weekday range.
func (c *Calendar) IsBusinessDay(d time.Weekday) bool {
	if c.weekdayStart <= c.weekdayEnd {
		return d >= c.weekdayStart && d <= c.weekdayEnd
	}
	return d >= c.weekdayStart || d <= c.weekdayEnd
}

// InWindow reports whether t lies inside a business window.
func (c *Calendar) InWindow(t time.Time) bool {
	t = t.In(c.loc)
	return c.IsBusinessDay(t.Weekday()) && t.Hour() >= c.hourStart && t.Hour() < c.hourEnd
}

// Adjust moves t forward to the nearest instant inside a business window.
// Instants already inside a window are returned unchanged (in the calendar's location).
func (c *Calendar) Adjust(t time.Time) time.Time {
	t = t.In(c.loc)

	switch {
	case !c.IsBusinessDay(t.Weekday()):
		return c.nextOpening(t)
	case t.Hour() < c.hourStart:
		o := c.opening(t)
		if o.Before(t) {
			o = t
		}
		if o.Hour() >= c.hourEnd {
			// a DST gap swallowed the whole window
			return c.nextOpening(t)
		}
		return o
	case t.Hour() >= c.hourEnd:
		return c.nextOpening(t)
	default:
		return t
	}
}

// opening returns HourStart:00:00 on t's civil date. When that wall time
// falls in a DST gap, the first instant after the gap is returned instead.
func (c *Calendar) opening(t time.Time) time.Time {
	y, m, d := t.Date()
	return c.wall(y, m, d, c.hourStart)
}

// closing returns HourEnd:00:00 on t's civil date; HourEnd 24 rolls to the next midnight.
func (c *Calendar) closing(t time.Time) time.Time {
	y, m, d := t.Date()
	return c.wall(y, m, d, c.hourEnd)
}

// wall returns hour:00 on the given civil date. A wall time that does not
// exist because of a DST gap resolves to the first instant after the gap.
func (c *Calendar) wall(y int, m time.Month, d, hour int) time.Time {
	w := time.Date(y, m, d, hour, 0, 0, 0, c.loc)
	if hour == 24 || w.Hour() == hour {
		return w
	}

	want := time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
	got := time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), 0, 0, time.UTC)
	start, end := w.ZoneBounds()
	if got.Before(want) {
		// resolved with the offset from before the gap
		if !end.IsZero() {
			return end.In(c.loc)
		}
		return w
	}
	if !start.IsZero() {
		return start.In(c.loc)
	}
	return w
}

// nextOpening returns the opening of the first business day strictly after
// t's date whose window is not empty.
func (c *Calendar) nextOpening(t time.Time) time.Time {
	y, m, d := t.Date()
	for {
		d++
		day := time.Date(y, m, d, 12, 0, 0, 0, c.loc)
		if !c.IsBusinessDay(day.Weekday()) {
			continue
		}
		if o := c.opening(day); o.Hour() < c.hourEnd {
			return o
		}
	}
}

func validWeekday(d time.Weekday) bool {
	return d >= time.Sunday && d <= time.Saturday
}
