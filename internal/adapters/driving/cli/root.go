// Package cli implements the yetisearch command line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yetidevworks/yetisearch"
	"github.com/yetidevworks/yetisearch/internal/adapters/driven/config/file"
	"github.com/yetidevworks/yetisearch/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	dbPath     string
	configPath string
	verbose    bool
	jsonOutput bool
)

var (
	// settingsStore holds the loaded settings file.
	settingsStore *file.SettingsStore

	// engine is opened on first use. Tests may inject one.
	engine *yetisearch.Engine

	// engineOwned is true when the CLI opened engine and must close it.
	engineOwned bool
)

var rootCmd = &cobra.Command{
	Use:   "yetisearch",
	Short: "Full-text and geospatial search on SQLite",
	Long: `yetisearch indexes JSON documents into a SQLite database and searches them
with FTS5 full-text ranking, field boosts, fuzzy matching and radius or
bounding-box geo filters.

Settings are read from ~/.yetisearch/config.toml unless --config is given.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default from settings)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default ~/.yetisearch/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
}

// Execute runs the root command.
func Execute() {
	// cmd.Println writes to stderr unless an output is set.
	rootCmd.SetOut(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if cerr := closeEngine(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func setup(_ *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	return closeEngine()
}

// loadSettings opens the settings file once per process.
func loadSettings() (*file.SettingsStore, error) {
	if settingsStore != nil {
		return settingsStore, nil
	}
	store, err := file.NewSettingsStore(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	settingsStore = store
	return store, nil
}

// getEngine returns the injected engine or opens one from settings.
func getEngine(cmd *cobra.Command) (*yetisearch.Engine, error) {
	if engine != nil {
		return engine, nil
	}

	store, err := loadSettings()
	if err != nil {
		return nil, err
	}
	settings := store.Settings()
	if dbPath != "" {
		settings.Storage.Path = dbPath
	}

	e, err := yetisearch.Open(cmd.Context(), settings)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	engine, engineOwned = e, true
	return e, nil
}

func closeEngine() error {
	if engine == nil || !engineOwned {
		return nil
	}
	err := engine.Close()
	engine, engineOwned = nil, false
	return err
}
