package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"sla-clock/internal/evaluate"
	"sla-clock/internal/eventlog"
	"sla-clock/internal/github"
	"sla-clock/internal/jira"
	"sla-clock/internal/report"
	"sla-clock/internal/sla"
)

var evalFlags struct {
	priority    string
	now         string
	format      string
	metricsFile string
	cacheDir    string
	offline     bool
	concurrency int
	jql         string
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [REF...]",
	Short: "Evaluate the SLA of one or more issues",
	Long: `Evaluate fetches the status history of each issue and runs it through the SLA clock.

References:
  jira:PROJ-123           Jira issue (a bare PROJ-123 also works)
  github:owner/repo#42    GitHub issue; priority comes from a P1..P4 label
  file:events.json        JSON list of {"label", "timestamp", "sequence"}

With --jql, every Jira issue matched by the query is evaluated as well.`,
	Example: `  sla-clock evaluate SUP-101 github:acme/support#42
  sla-clock evaluate --jql 'project = SUP AND resolved >= -7d' --format json`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && evalFlags.jql == "" {
			return fmt.Errorf("requires at least one REF or --jql")
		}
		return nil
	},
	RunE: runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	refs := make([]eventlog.Ref, 0, len(args))
	for _, a := range args {
		ref, err := eventlog.ParseRef(a)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}

	now, err := parseNow(evalFlags.now)
	if err != nil {
		return err
	}

	switch evalFlags.format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown --format %q (want text or json)", evalFlags.format)
	}

	cacheDir := cfg.CacheDir
	if cmd.Flags().Changed("cache-dir") {
		cacheDir = evalFlags.cacheDir
	}
	concurrency := cfg.Concurrency
	if cmd.Flags().Changed("concurrency") {
		concurrency = evalFlags.concurrency
	}

	opts := eventlog.ProviderOptions{
		GitHub:     github.NewClient(cfg.GitHub),
		CacheDir:   cacheDir,
		Offline:    evalFlags.offline,
		Priorities: policy.Priorities(),
	}
	if cfg.Jira.BaseURL != "" {
		opts.Jira = jira.NewClient(cfg.Jira)
	}
	provider := eventlog.NewLogProvider(opts)

	if evalFlags.jql != "" {
		found, err := provider.Search(cmd.Context(), evalFlags.jql)
		if err != nil {
			return err
		}
		refs = append(refs, found...)
		if len(refs) == 0 {
			log.Warn().Str("jql", evalFlags.jql).Msg("No issues matched")
		}
	}

	ev := &evaluate.Evaluator{
		Policy:      policy,
		Provider:    provider,
		Now:         func() time.Time { return now },
		Concurrency: concurrency,
		RunID:       runID,
	}
	if evalFlags.priority != "" {
		ev.Priority = sla.ParsePriority(evalFlags.priority)
	}

	batch, err := ev.Run(cmd.Context(), refs)
	if err != nil {
		return err
	}
	if err := provider.Flush(); err != nil {
		log.Warn().Err(err).Msg("Failed to save cache")
	}

	rep := report.Build(batch)
	out := cmd.OutOrStdout()
	if evalFlags.format == "json" {
		err = report.WriteJSON(out, rep)
	} else {
		err = report.WriteText(out, rep)
	}
	if err != nil {
		return err
	}

	if evalFlags.metricsFile != "" {
		if err := report.WriteMetrics(evalFlags.metricsFile, rep); err != nil {
			return err
		}
		log.Info().Str("path", evalFlags.metricsFile).Msg("Metrics written")
	}

	if failed := batch.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d issues could not be evaluated", failed, len(refs))
	}
	return nil
}

func parseNow(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--now must be RFC 3339: %w", err)
	}
	return t, nil
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&evalFlags.priority, "priority", "", "override every issue's priority (e.g. P2)")
	f.StringVar(&evalFlags.now, "now", "", "evaluation instant in RFC 3339 (default: current time)")
	f.StringVar(&evalFlags.format, "format", "text", "output format: text or json")
	f.StringVar(&evalFlags.metricsFile, "metrics-file", "", "also write Prometheus textfile metrics to this path")
	f.StringVar(&evalFlags.cacheDir, "cache-dir", "", "event cache directory (default: $DATA_PATH/cache)")
	f.BoolVar(&evalFlags.offline, "offline", false, "serve jira and github issues from the cache only")
	f.StringVar(&evalFlags.jql, "jql", "", "also evaluate every Jira issue matched by this JQL query")
	f.IntVar(&evalFlags.concurrency, "concurrency", 4, "issues fetched in parallel (default: $SLA_CONCURRENCY or 4)")

	rootCmd.AddCommand(evaluateCmd)
}
