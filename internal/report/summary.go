package report

import "slices"

// Summary aggregates a report.
type Summary struct {
	Count                int     `json:"count"`
	Breached             int     `json:"breached"`
	Failed               int     `json:"failed"`
	MedianElapsedSeconds float64 `json:"median_elapsed_seconds"`
}

// Summarize counts rows and takes the median elapsed time of the rows that
// evaluated successfully.
func Summarize(rows []Row) Summary {
	var s Summary
	elapsed := make([]int64, 0, len(rows))
	for _, r := range rows {
		if r.Error != "" {
			s.Failed++
			continue
		}
		s.Count++
		if r.Breached {
			s.Breached++
		}
		elapsed = append(elapsed, r.ElapsedSeconds)
	}
	s.MedianElapsedSeconds = MedianDiscrete(elapsed)
	return s
}

// MedianDiscrete finds the median value in a slice of integers.
func MedianDiscrete(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}

	// Work on a copy to avoid mutating the original
	temp := slices.Clone(values)
	slices.Sort(temp)

	n := len(temp)
	if n%2 == 1 {
		return float64(temp[n/2])
	}
	return float64(temp[n/2-1]+temp[n/2]) / 2.0
}
