package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

var (
	indexStrategy     string
	indexSingleColumn bool
	indexSpatial      bool
	indexFields       []string

	termsMinFrequency int
	termsLimit        int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage indices",
	Long:  `Create, drop, inspect and maintain search indices.`,
}

var indexCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create an index",
	Long: `Create an index with the given fields.

Fields are given as name[:boost], e.g. --field title:3 --field content.
Without --field the indexer fields from the settings file are used.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndexCreate,
}

var indexDropCmd = &cobra.Command{
	Use:   "drop [name]",
	Short: "Drop an index and all of its documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexDrop,
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indices",
	Args:  cobra.NoArgs,
	RunE:  runIndexList,
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats [name]",
	Short: "Show document, chunk, spatial and term counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexStats,
}

var indexMigrateCmd = &cobra.Command{
	Use:   "migrate [name]",
	Short: "Convert an embedded-content index to external content",
	Long: `Rebuild an embedded-content index so the full-text table references the
document table instead of storing its own copy of the text.

The spatial table is recreated empty; re-add documents with coordinates.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndexMigrate,
}

var indexOptimizeCmd = &cobra.Command{
	Use:   "optimize [name]",
	Short: "Merge full-text segments and compact the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexOptimize,
}

var indexTermsCmd = &cobra.Command{
	Use:   "terms [name]",
	Short: "List indexed vocabulary by frequency",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexTerms,
}

var indexSpatialCmd = &cobra.Command{
	Use:   "spatial [name]",
	Short: "Add the spatial table to an index created without one",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexSpatial,
}

func init() {
	indexCreateCmd.Flags().StringVar(&indexStrategy, "strategy", "", "content strategy: external or embedded (default from settings)")
	indexCreateCmd.Flags().BoolVar(&indexSingleColumn, "single-column", false, "index every field into one boosted column")
	indexCreateCmd.Flags().BoolVar(&indexSpatial, "spatial", false, "create the spatial table up front")
	indexCreateCmd.Flags().StringSliceVarP(&indexFields, "field", "f", nil, "field as name[:boost]; repeatable")

	indexTermsCmd.Flags().IntVar(&termsMinFrequency, "min-frequency", 1, "minimum number of documents containing the term")
	indexTermsCmd.Flags().IntVarP(&termsLimit, "limit", "n", 50, "maximum number of terms")

	indexCmd.AddCommand(indexCreateCmd)
	indexCmd.AddCommand(indexDropCmd)
	indexCmd.AddCommand(indexListCmd)
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexMigrateCmd)
	indexCmd.AddCommand(indexOptimizeCmd)
	indexCmd.AddCommand(indexTermsCmd)
	indexCmd.AddCommand(indexSpatialCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexCreate(cmd *cobra.Command, args []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}

	fields, err := parseFieldFlags(indexFields)
	if err != nil {
		return err
	}

	strategy := domain.Strategy(indexStrategy)
	switch strategy {
	case "", domain.StrategyExternal, domain.StrategyEmbedded:
	default:
		return fmt.Errorf("unknown strategy %q: %w", indexStrategy, domain.ErrInvalidInput)
	}

	opts := domain.IndexOptions{
		Fields:      fields,
		Strategy:    strategy,
		MultiColumn: e.Settings().Search.MultiColumn && !indexSingleColumn,
		Spatial:     indexSpatial,
	}
	if err := e.CreateIndex(cmd.Context(), args[0], opts); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	s := stylesFor(cmd.OutOrStdout())
	cmd.Println(s.Render(s.Success, "Created index "+args[0]))
	return nil
}

// parseFieldFlags turns name[:boost] values into a field set. No values
// yields nil so the engine falls back to configured fields.
func parseFieldFlags(values []string) (domain.FieldSet, error) {
	if len(values) == 0 {
		return nil, nil
	}

	fields := make(domain.FieldSet, len(values))
	for _, v := range values {
		name, boostText, hasBoost := strings.Cut(v, ":")
		cfg := domain.DefaultFieldConfig()
		if hasBoost {
			boost, err := strconv.ParseFloat(boostText, 64)
			if err != nil {
				return nil, fmt.Errorf("field %q: invalid boost: %w", v, domain.ErrInvalidInput)
			}
			cfg.Boost = boost
		}
		fields[name] = cfg
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	return fields, nil
}

func runIndexDrop(cmd *cobra.Command, args []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}
	if err := e.DropIndex(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to drop index: %w", err)
	}
	cmd.Printf("Dropped index %s\n", args[0])
	return nil
}

func runIndexList(cmd *cobra.Command, _ []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}

	infos, err := e.ListIndices(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list indices: %w", err)
	}

	if jsonOutput {
		if infos == nil {
			infos = []domain.IndexInfo{}
		}
		return printJSON(cmd, infos)
	}

	if len(infos) == 0 {
		cmd.Println("No indices.")
		return nil
	}

	s := stylesFor(cmd.OutOrStdout())
	cmd.Println(s.Render(s.Title, "Indices:"))
	cmd.Println()
	for i := range infos {
		info := &infos[i]
		layout := "multi-column"
		if !info.MultiColumn {
			layout = "single-column"
		}
		cmd.Printf("  %s\n", s.Render(s.Subtitle, info.Name))
		cmd.Printf("    Strategy: %s, %s\n", info.Strategy, layout)
		cmd.Printf("    Fields: %s\n", formatFields(info.Fields))
		if info.Spatial {
			cmd.Println("    Spatial: yes")
		}
		cmd.Println()
	}
	cmd.Printf("Total: %d indices\n", len(infos))
	return nil
}

func formatFields(fields domain.FieldSet) string {
	parts := make([]string, 0, len(fields))
	for _, name := range fields.Names() {
		parts = append(parts, name+":"+strconv.FormatFloat(fields[name].Boost, 'g', -1, 64))
	}
	return strings.Join(parts, ", ")
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}

	stats, err := e.Stats(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, stats)
	}

	s := stylesFor(cmd.OutOrStdout())
	cmd.Println(s.Render(s.Title, "Index "+stats.Name))
	cmd.Printf("  Strategy:        %s\n", stats.Strategy)
	cmd.Printf("  Documents:       %d\n", stats.Documents)
	cmd.Printf("  Chunks:          %d\n", stats.Chunks)
	cmd.Printf("  Spatial entries: %d\n", stats.SpatialEntries)
	cmd.Printf("  Terms:           %d\n", stats.Terms)
	cmd.Printf("  Database size:   %s\n", formatBytes(stats.DatabaseBytes))
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func runIndexMigrate(cmd *cobra.Command, args []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}
	if err := e.MigrateToExternalContent(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to migrate index: %w", err)
	}
	cmd.Printf("Migrated index %s to external content\n", args[0])
	return nil
}

func runIndexOptimize(cmd *cobra.Command, args []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}
	if err := e.Optimize(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to optimize index: %w", err)
	}
	cmd.Printf("Optimized index %s\n", args[0])
	return nil
}

func runIndexTerms(cmd *cobra.Command, args []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}

	terms, err := e.Terms(cmd.Context(), args[0], termsMinFrequency, termsLimit)
	if err != nil {
		return fmt.Errorf("failed to list terms: %w", err)
	}

	if jsonOutput {
		if terms == nil {
			terms = []domain.TermStat{}
		}
		return printJSON(cmd, terms)
	}

	if len(terms) == 0 {
		cmd.Println("No terms found.")
		return nil
	}
	for _, t := range terms {
		cmd.Printf("  %-24s %6d docs %8d hits\n", t.Term, t.Documents, t.Count)
	}
	return nil
}

func runIndexSpatial(cmd *cobra.Command, args []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}
	if err := e.EnsureSpatialTableExists(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to create spatial table: %w", err)
	}
	cmd.Printf("Spatial table ready for %s\n", args[0])
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
