package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/pipeline"
	"github.com/papapumpkin/pulsar/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a built index",
	Long: `Prints row counts for the index tables and the distributions with the
highest weight and volatility. Requires a completed build.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().String("db", "", "override database path")
	statsCmd.Flags().IntP("top", "n", 10, "how many distributions to list per metric")
	statsCmd.Flags().Bool("history", false, "also print previous run summaries from the report")

	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DBPath = v
	}
	top, _ := cmd.Flags().GetInt("top")

	ctx := cmd.Context()
	s, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store %s: %w", cfg.DBPath, err)
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	if err := printCounts(ctx, out, s); err != nil {
		return err
	}
	if err := printTop(ctx, out, s, "weight", top); err != nil {
		return err
	}
	if err := printTop(ctx, out, s, "volatility", top); err != nil {
		return err
	}

	if history, _ := cmd.Flags().GetBool("history"); history && cfg.ReportDir != "" {
		if err := printHistory(out, cfg.ReportDir); err != nil {
			return err
		}
	}
	return nil
}

func printCounts(ctx context.Context, out io.Writer, s *store.Store) error {
	fmt.Fprintln(out, "Tables:")
	for _, table := range []string{"author", "distribution", "module", "dependency", "requires", "ticket"} {
		n, err := s.Count(ctx, table)
		if err != nil {
			return fmt.Errorf("count %s: %w", table, err)
		}
		fmt.Fprintf(out, "  %-14s %d\n", table, n)
	}
	return nil
}

// printTop lists the distributions with the largest values in column, which
// must be one of the metric columns on the distribution table.
func printTop(ctx context.Context, out io.Writer, s *store.Store, column string, n int) error {
	rows, err := s.Query(ctx, fmt.Sprintf(
		`SELECT name, %s FROM distribution ORDER BY %s DESC, name LIMIT ?`, column, column), n)
	if err != nil {
		return fmt.Errorf("query top %s: %w", column, err)
	}
	defer rows.Close()

	fmt.Fprintf(out, "\nTop %s:\n", column)
	for rows.Next() {
		var name string
		var value int
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("scan top %s: %w", column, err)
		}
		fmt.Fprintf(out, "  %-40s %d\n", name, value)
	}
	return rows.Err()
}

func printHistory(out io.Writer, reportDir string) error {
	history, err := pipeline.LoadHistory(reportDir)
	if err != nil {
		return fmt.Errorf("load report history: %w", err)
	}
	fmt.Fprintln(out, "\nPrevious runs:")
	if len(history) == 0 {
		fmt.Fprintln(out, "  (none)")
		return nil
	}
	for _, h := range history {
		fmt.Fprintf(out, "  %s  %d rows in %s\n",
			h.StartedAt.Format(time.RFC3339), h.TotalRows,
			time.Duration(h.DurationNs).Round(time.Millisecond))
	}
	return nil
}
