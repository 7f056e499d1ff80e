package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage engine settings",
	Long: `View and change the settings file used to open the database.

Fields are edited in the file itself under [indexer.fields].`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change one setting",
	Long: `Change one setting and save the file. The new value is validated before
it is written.

Keys:
  ` + settingsKeyList(),
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file path",
	Args:  cobra.NoArgs,
	RunE:  runSettingsPath,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsPathCmd)
	rootCmd.AddCommand(settingsCmd)
}

// settingFields maps a dotted key to the field it edits.
var settingFields = map[string]func(*domain.Settings) any{
	"storage.path":             func(s *domain.Settings) any { return &s.Storage.Path },
	"storage.external_content": func(s *domain.Settings) any { return &s.Storage.ExternalContent },
	"storage.busy_timeout_ms":  func(s *domain.Settings) any { return &s.Storage.BusyTimeoutMS },
	"indexer.batch_size":       func(s *domain.Settings) any { return &s.Indexer.BatchSize },
	"indexer.auto_flush":       func(s *domain.Settings) any { return &s.Indexer.AutoFlush },
	"indexer.chunk_size":       func(s *domain.Settings) any { return &s.Indexer.ChunkSize },
	"indexer.chunk_overlap":    func(s *domain.Settings) any { return &s.Indexer.ChunkOverlap },
	"cache.enabled":            func(s *domain.Settings) any { return &s.Cache.Enabled },
	"cache.ttl_seconds":        func(s *domain.Settings) any { return &s.Cache.TTLSeconds },
	"cache.max_size":           func(s *domain.Settings) any { return &s.Cache.MaxSize },
	"cache.table_name":         func(s *domain.Settings) any { return &s.Cache.TableName },
	"search.default_limit":     func(s *domain.Settings) any { return &s.Search.DefaultLimit },
	"search.distance_weight":   func(s *domain.Settings) any { return &s.Search.DistanceWeight },
	"search.decay_k":           func(s *domain.Settings) any { return &s.Search.DecayK },
	"search.multi_column":      func(s *domain.Settings) any { return &s.Search.MultiColumn },
	"search.fuzzy":             func(s *domain.Settings) any { return &s.Search.Fuzzy },
	"search.highlight_tag":     func(s *domain.Settings) any { return &s.Search.HighlightTag },
}

func settingsKeyList() string {
	keys := make([]string, 0, len(settingFields))
	for k := range settingFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += "\n  "
		}
		out += k
	}
	return out
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	store, err := loadSettings()
	if err != nil {
		return err
	}
	settings := store.Settings()

	if jsonOutput {
		return printJSON(cmd, settings)
	}

	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	s := stylesFor(cmd.OutOrStdout())
	cmd.Println(s.Render(s.Muted, "# "+store.Path()))
	cmd.Print(string(data))
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]
	field, ok := settingFields[key]
	if !ok {
		return fmt.Errorf("unknown setting %q: %w", key, domain.ErrInvalidInput)
	}

	store, err := loadSettings()
	if err != nil {
		return err
	}

	next := store.Settings()
	if err := setValue(field(&next), raw); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := store.Update(func(s *domain.Settings) { *s = next }); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	cmd.Printf("Set %s = %s\n", key, raw)
	return nil
}

func setValue(ptr any, raw string) error {
	switch p := ptr.(type) {
	case *string:
		*p = raw
	case *bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("expected true or false: %w", domain.ErrInvalidInput)
		}
		*p = v
	case *int:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("expected an integer: %w", domain.ErrInvalidInput)
		}
		*p = v
	case *float64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("expected a number: %w", domain.ErrInvalidInput)
		}
		*p = v
	default:
		return fmt.Errorf("unsupported setting type %T", ptr)
	}
	return nil
}

func runSettingsPath(cmd *cobra.Command, _ []string) error {
	store, err := loadSettings()
	if err != nil {
		return err
	}
	cmd.Println(store.Path())
	return nil
}
