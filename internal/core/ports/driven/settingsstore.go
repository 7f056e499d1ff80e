package driven

import "github.com/yetidevworks/yetisearch/internal/core/domain"

// SettingsStore provides access to the engine configuration.
// Implementations handle persistence (e.g., TOML files).
type SettingsStore interface {
	// Settings returns a copy of the current settings.
	Settings() domain.Settings

	// Update applies fn to the settings, validates and persists the result.
	Update(fn func(*domain.Settings)) error

	// Save persists the current settings.
	Save() error

	// Load reads settings from storage. Missing storage yields defaults.
	Load() error

	// Path returns the settings file path.
	Path() string
}
