package commands

import (
	"github.com/spf13/cobra"

	"github.com/telemetrydock/duckport/pkg/logging"
)

var (
	logLevel string
	pretty   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "duckport",
	Short: "Parallel analytics export into DuckDB",
	Long: `duckport pulls raw events and user profiles from an analytics API and
stores them in a local DuckDB database.

Large date ranges are split into fixed-width chunks that are fetched and
stored in parallel, bounded by a concurrency limit and the remote rate
budget. Failed chunks do not abort the run; their intervals are reported
at the end so they can be re-run individually.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logging.Config{
			Level:  logging.LogLevel(logLevel),
			Pretty: pretty,
		})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "human-readable log output instead of JSON")
}
