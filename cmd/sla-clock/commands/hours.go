package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sla-clock/internal/evaluate"
	"sla-clock/internal/report"
	"sla-clock/internal/sla"
)

var hoursCmd = &cobra.Command{
	Use:   "hours START END PRIORITY",
	Short: "Business hours between two instants and the SLA verdict",
	Long: `Hours treats START as the moment the ticket went active and END as the evaluation
instant. Timestamps are ISO 8601; those without an offset are read in the policy timezone.`,
	Example: `  sla-clock hours 2024-07-05T17:00:00+05:30 2024-07-08T11:00:00+05:30 P1`,
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cal, err := policy.Calendar()
		if err != nil {
			return err
		}

		start, err := parseInstant(args[0], cal.Location())
		if err != nil {
			return fmt.Errorf("START: %w", err)
		}
		end, err := parseInstant(args[1], cal.Location())
		if err != nil {
			return fmt.Errorf("END: %w", err)
		}

		ev := &evaluate.Evaluator{Policy: policy}
		res, err := ev.Interval(start, end, sla.ParsePriority(args[2]))
		if err != nil {
			return err
		}
		return report.WriteResult(cmd.OutOrStdout(), res)
	},
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func parseInstant(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as an ISO 8601 timestamp", raw)
}

func init() {
	rootCmd.AddCommand(hoursCmd)
}
