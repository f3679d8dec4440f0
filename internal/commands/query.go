package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/telemetrydock/duckport/pkg/store"
)

var queryDB string

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run SQL against an exported database",
	Long: `Run an ad-hoc SQL query against a previously exported DuckDB file
and print the result as a table.

Examples:
  duckport query --db ./analytics.db "SELECT COUNT(*) FROM events"
  duckport query --db ./analytics.db \
    "SELECT event, COUNT(*) AS n FROM events GROUP BY event ORDER BY n DESC LIMIT 10"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryDB, "db", "", "DuckDB database file")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryDB == "" {
		return fmt.Errorf("--db is required")
	}

	// Schema only matters for table creation; queries never create tables.
	db, err := store.Open(queryDB, store.SchemaEvents)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := db.Query(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for i, col := range result.Columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, col)
	}
	fmt.Fprintln(w)
	for _, row := range result.Rows {
		for i, v := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprintf(w, "%v", v)
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("(%d rows)\n", len(result.Rows))
	return nil
}
