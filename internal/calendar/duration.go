package calendar

import "time"

// BusinessSeconds returns the business time in [start, end) in whole seconds.
//
// start is normalized with Adjust first; end is used as-is and acts as the
// exclusive horizon. An empty or inverted interval yields 0.
func (c *Calendar) BusinessSeconds(start, end time.Time) int64 {
	return int64(c.BusinessDuration(start, end) / time.Second)
}

// BusinessDuration is BusinessSeconds without truncation to whole seconds.
func (c *Calendar) BusinessDuration(start, end time.Time) time.Duration {
	start = c.Adjust(start)
	end = end.In(c.loc)
	if !end.After(start) {
		return 0
	}

	var total time.Duration
	y, m, d := start.Date()
	for day := time.Date(y, m, d, 0, 0, 0, 0, c.loc); day.Before(end); day = day.AddDate(0, 0, 1) {
		if !c.IsBusinessDay(day.Weekday()) {
			continue
		}

		lo := maxTime(c.opening(day), start)
		hi := minTime(c.closing(day), end)
		if hi.After(lo) {
			total += hi.Sub(lo)
		}
	}
	return total
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
