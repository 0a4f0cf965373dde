package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

var issueLabels = []string{"issue", "priority"}

// Registry builds a fresh registry holding one gauge sample per evaluated
// issue. Rows with errors are skipped.
func Registry(r Report) *prometheus.Registry {
	elapsed := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sla_elapsed_seconds",
		Help: "Business seconds the SLA clock has accumulated for the issue.",
	}, issueLabels)
	threshold := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sla_threshold_seconds",
		Help: "Business seconds allowed for the issue's priority.",
	}, issueLabels)
	breached := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sla_breached",
		Help: "1 when elapsed business time exceeds the threshold.",
	}, issueLabels)
	evaluatedAt := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sla_evaluation_timestamp_seconds",
		Help: "Evaluation instant of the run that produced these samples.",
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(elapsed, threshold, breached, evaluatedAt)

	for _, row := range r.Results {
		if row.Error != "" {
			continue
		}
		labels := prometheus.Labels{"issue": row.Issue, "priority": string(row.Priority)}
		elapsed.With(labels).Set(float64(row.ElapsedSeconds))
		threshold.With(labels).Set(float64(row.ThresholdSeconds))
		v := 0.0
		if row.Breached {
			v = 1
		}
		breached.With(labels).Set(v)
	}
	if !r.EvaluatedAt.IsZero() {
		evaluatedAt.Set(float64(r.EvaluatedAt.Unix()))
	}
	return reg
}

// WriteMetrics writes the report in the node_exporter textfile format.
func WriteMetrics(path string, r Report) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, Registry(r)); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
