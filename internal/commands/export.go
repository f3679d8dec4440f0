package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/telemetrydock/duckport/pkg/checkpoint"
	"github.com/telemetrydock/duckport/pkg/client"
	"github.com/telemetrydock/duckport/pkg/export"
	"github.com/telemetrydock/duckport/pkg/logging"
	"github.com/telemetrydock/duckport/pkg/ratebudget"
	"github.com/telemetrydock/duckport/pkg/store"
	"github.com/telemetrydock/duckport/pkg/timerange"
)

// envAPISecret names the environment variable holding the API secret. The
// secret is never accepted as a flag so it cannot leak into shell history.
const envAPISecret = "DUCKPORT_API_SECRET"

var (
	exportFrom        string
	exportTo          string
	exportDB          string
	exportTable       string
	exportChunkDays   int
	exportConcurrency int
	exportAppend      bool
	exportResume      bool
	exportRedis       string
	exportAPIURL      string
	exportProgress    bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data from the analytics API into DuckDB",
	Long: `Export data for a date interval into a DuckDB table.

The interval is split into chunks of --chunk-days days which are fetched
and stored in parallel, at most --concurrency at a time. A chunk that
fails is reported at the end; the remaining chunks still run.

The API secret is read from the ` + envAPISecret + ` environment variable.

Examples:
  # Export January's events, four weeks in parallel pairs
  duckport export events --from 2024-01-01 --to 2024-01-31 --db ./analytics.db

  # Re-run a failed week into the same table
  duckport export events --from 2024-01-15 --to 2024-01-21 --db ./analytics.db --append

  # Resume an interrupted run, skipping completed chunks via Redis
  duckport export events --from 2024-01-01 --to 2024-03-31 --db ./analytics.db \
    --redis localhost:6379 --resume`,
}

var exportEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Export raw events for a date interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context(), store.SchemaEvents)
	},
}

var exportProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Export user profiles for a date interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context(), store.SchemaProfiles)
	},
}

func init() {
	exportCmd.PersistentFlags().StringVar(&exportFrom, "from", "", "start date, inclusive (YYYY-MM-DD)")
	exportCmd.PersistentFlags().StringVar(&exportTo, "to", "", "end date, inclusive (YYYY-MM-DD)")
	exportCmd.PersistentFlags().StringVar(&exportDB, "db", "", "DuckDB database file (empty for in-memory)")
	exportCmd.PersistentFlags().StringVar(&exportTable, "table", "", "target table name (default: events or profiles)")
	exportCmd.PersistentFlags().IntVar(&exportChunkDays, "chunk-days", 7, "maximum chunk width in days")
	exportCmd.PersistentFlags().IntVar(&exportConcurrency, "concurrency", 2, "maximum chunks in flight (1 for sequential)")
	exportCmd.PersistentFlags().BoolVar(&exportAppend, "append", false, "allow writing into a table that already holds rows")
	exportCmd.PersistentFlags().BoolVar(&exportResume, "resume", false, "skip chunks already completed (requires --redis)")
	exportCmd.PersistentFlags().StringVar(&exportRedis, "redis", "", "Redis address for shared rate budget and checkpoints")
	exportCmd.PersistentFlags().StringVar(&exportAPIURL, "api-url", "https://data.example-analytics.com", "analytics API base URL")
	exportCmd.PersistentFlags().BoolVar(&exportProgress, "progress", false, "print progress after each completed chunk")

	exportCmd.AddCommand(exportEventsCmd)
	exportCmd.AddCommand(exportProfilesCmd)
	rootCmd.AddCommand(exportCmd)
}

func runExport(parent context.Context, schema store.Schema) error {
	if exportFrom == "" || exportTo == "" {
		return fmt.Errorf("--from and --to are required")
	}
	if exportResume && exportRedis == "" {
		return fmt.Errorf("--resume requires --redis")
	}

	apiSecret := os.Getenv(envAPISecret)
	if apiSecret == "" {
		return fmt.Errorf("%s environment variable is not set", envAPISecret)
	}

	from, err := timerange.ParseDate(exportFrom)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := timerange.ParseDate(exportTo)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}
	iv, err := timerange.NewInterval(from, to)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if exportRedis != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: exportRedis})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to Redis at %s: %w", exportRedis, err)
		}
	}

	apiClient, err := newAPIClient(apiSecret, redisClient)
	if err != nil {
		return err
	}

	db, err := store.Open(exportDB, schema)
	if err != nil {
		return err
	}
	defer db.Close()

	table := exportTable
	if table == "" {
		table = string(schema)
	}

	opts := export.Options{
		Table:         table,
		ChunkDays:     exportChunkDays,
		MaxConcurrent: exportConcurrency,
		Append:        exportAppend,
	}
	if exportResume {
		opts.Checkpoints = checkpoint.NewStore(redisClient, checkpoint.DefaultTTL)
	}
	if exportProgress {
		opts.OnProgress = printProgress
	}

	var fetcher export.PageFetcher
	switch schema {
	case store.SchemaProfiles:
		fetcher = apiClient.Profiles()
	default:
		fetcher = apiClient.Events()
	}

	result, err := export.NewRunner(fetcher, db).Run(ctx, iv, opts)
	if err != nil {
		return err
	}

	fmt.Println(result.Summary())
	return exportError(result)
}

// exportError turns a partial run into a non-zero exit, naming failed and
// cancelled chunks separately.
func exportError(result *export.Result) error {
	if !result.Failed() {
		return nil
	}
	if result.ChunksCancelled > 0 {
		return fmt.Errorf("%d of %d chunks did not complete (%d failed, %d cancelled)",
			len(result.Failures), result.ChunksTotal, result.ChunksFailed, result.ChunksCancelled)
	}
	return fmt.Errorf("%d of %d chunks failed", result.ChunksFailed, result.ChunksTotal)
}

func newAPIClient(apiSecret string, redisClient *redis.Client) (*client.Client, error) {
	cfg := client.DefaultConfig(exportAPIURL, apiSecret)
	if redisClient != nil {
		// Shared budget so concurrent duckport processes see one window.
		cfg.Budget = ratebudget.NewTracker(ratebudget.NewRedisStore(redisClient), logging.NewLogger("rate-budget"))
	}
	return client.New(cfg)
}

func printProgress(snap export.Snapshot) {
	fmt.Printf("progress: %d/%d chunks done (%d failed), %d rows, %s elapsed\n",
		snap.Completed+snap.Failed, snap.Total, snap.Failed, snap.Rows,
		snap.Elapsed.Round(time.Second))
}
