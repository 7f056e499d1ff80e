package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cachePattern string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the query cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show query cache statistics",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached result",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate [index]",
	Short: "Remove cached results of an index",
	Long: `Remove cached results of an index. With --pattern only entries whose
query signature contains the pattern are removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runCacheInvalidate,
}

func init() {
	cacheInvalidateCmd.Flags().StringVar(&cachePattern, "pattern", "", "only remove entries whose signature contains this text")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}

	stats := e.Cache().Stats(cmd.Context())
	if jsonOutput {
		return printJSON(cmd, stats)
	}

	s := stylesFor(cmd.OutOrStdout())
	cmd.Println(s.Render(s.Title, "Query Cache"))
	if !stats.Enabled {
		cmd.Println(s.Render(s.Warning, "  Disabled"))
		return nil
	}
	cmd.Printf("  Entries:     %d\n", stats.Entries)
	cmd.Printf("  Hits:        %d\n", stats.Hits)
	cmd.Printf("  Misses:      %d\n", stats.Misses)
	cmd.Printf("  Hit rate:    %.1f%%\n", stats.HitRate*100)
	cmd.Printf("  Writes:      %d\n", stats.Writes)
	cmd.Printf("  Evictions:   %d\n", stats.Evictions)
	cmd.Printf("  Avg hits:    %.2f\n", stats.AvgHits)
	cmd.Printf("  Avg age:     %.0fs\n", stats.AvgAgeSecs)
	if stats.Errors > 0 {
		cmd.Println(s.Render(s.Error, fmt.Sprintf("  Errors:      %d", stats.Errors)))
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}
	n := e.Cache().Clear(cmd.Context())
	cmd.Printf("Removed %d cached results\n", n)
	return nil
}

func runCacheInvalidate(cmd *cobra.Command, args []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}

	var n int
	if cachePattern != "" {
		n = e.Cache().InvalidateByQuery(cmd.Context(), args[0], cachePattern)
	} else {
		n = e.Cache().Invalidate(cmd.Context(), args[0])
	}
	cmd.Printf("Removed %d cached results for %s\n", n, args[0])
	return nil
}
