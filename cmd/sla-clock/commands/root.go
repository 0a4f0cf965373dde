package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"sla-clock/internal/config"
	"sla-clock/internal/logging"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose    bool
	policyPath string

	runID  string
	cfg    *config.AppConfig
	policy *config.Policy
)

var rootCmd = &cobra.Command{
	Use:   "sla-clock",
	Short: "sla-clock measures support tickets against business-hour SLAs",
	Long: `sla-clock replays the status history of Jira or GitHub issues through an SLA clock
that only counts configured business hours, and reports whether each issue has breached
the threshold for its priority.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		runID, err = logging.Init(verbose)
		if err != nil {
			log.Warn().Err(err).Msg("File logging disabled")
		}

		// Load configuration
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		path := cfg.PolicyFile
		if cmd.Flags().Changed("policy") {
			path = policyPath
		}
		policy, err = config.LoadPolicy(path)
		if err != nil {
			return err
		}

		log.Debug().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Str("policy", path).
			Msg("sla-clock starting")
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "SLA policy YAML file (default: $SLA_POLICY_FILE or the built-in policy)")
}
