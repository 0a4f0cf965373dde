// Package report renders evaluation batches as text, JSON and Prometheus
// textfile metrics.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"sla-clock/internal/evaluate"
	"sla-clock/internal/sla"
)

// Row is one issue in a report.
type Row struct {
	Issue            string       `json:"issue"`
	Priority         sla.Priority `json:"priority,omitempty"`
	ElapsedSeconds   int64        `json:"elapsed_seconds"`
	ThresholdSeconds int64        `json:"threshold_seconds"`
	Breached         bool         `json:"breached"`
	Verdict          string       `json:"verdict,omitempty"`
	Error            string       `json:"error,omitempty"`
}

// Report is the rendered form of an evaluation batch.
type Report struct {
	RunID       string    `json:"run_id"`
	EvaluatedAt time.Time `json:"evaluated_at"`
	Results     []Row     `json:"results"`
	Summary     Summary   `json:"summary"`
}

// Build flattens a batch into report rows, keeping batch order.
func Build(batch *evaluate.Batch) Report {
	rows := make([]Row, 0, len(batch.Outcomes))
	for _, o := range batch.Outcomes {
		row := Row{Issue: o.Ref.String()}
		if o.Err != nil {
			row.Error = o.Err.Error()
		} else {
			row.Priority = o.Result.Priority
			row.ElapsedSeconds = o.Result.ElapsedSeconds
			row.ThresholdSeconds = o.Result.ThresholdSeconds
			row.Breached = o.Result.Breached
			row.Verdict = o.Result.Verdict()
		}
		rows = append(rows, row)
	}

	return Report{
		RunID:       batch.RunID,
		EvaluatedAt: batch.EvaluatedAt,
		Results:     rows,
		Summary:     Summarize(rows),
	}
}

// WriteResult prints the three-line verdict of a single evaluation.
func WriteResult(w io.Writer, res sla.Result) error {
	_, err := fmt.Fprintf(w, "Total Hours: %d\nTotal Seconds: %d\nSLA Breached: %s\n",
		res.ElapsedHours(), res.ElapsedSeconds, res.Verdict())
	return err
}

// WriteText prints every row followed by the batch summary.
func WriteText(w io.Writer, r Report) error {
	for _, row := range r.Results {
		if _, err := fmt.Fprintf(w, "%s", row.Issue); err != nil {
			return err
		}
		if row.Priority != "" {
			if _, err := fmt.Fprintf(w, " [%s]", row.Priority); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}

		if row.Error != "" {
			if _, err := fmt.Fprintf(w, "Error: %s\n\n", row.Error); err != nil {
				return err
			}
			continue
		}

		res := sla.Result{
			Priority:         row.Priority,
			ElapsedSeconds:   row.ElapsedSeconds,
			ThresholdSeconds: row.ThresholdSeconds,
			Breached:         row.Breached,
		}
		if err := WriteResult(w, res); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	s := r.Summary
	_, err := fmt.Fprintf(w, "Evaluated: %d  Breached: %d  Failed: %d  Median Hours: %.1f\n",
		s.Count, s.Breached, s.Failed, s.MedianElapsedSeconds/3600)
	return err
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
