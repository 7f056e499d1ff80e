package file

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
	"github.com/yetidevworks/yetisearch/internal/core/ports/driven"
)

// Ensure SettingsStore implements the interface.
var _ driven.SettingsStore = (*SettingsStore)(nil)

// FileName is the settings file inside the config directory.
const FileName = "config.toml"

// SettingsStore keeps engine settings in a TOML file. Keys absent from the
// file keep their default values.
type SettingsStore struct {
	mu       sync.RWMutex
	filePath string
	settings domain.Settings
}

// DefaultDir returns ~/.yetisearch.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".yetisearch"), nil
}

// NewSettingsStore opens the settings file at path and loads it.
// If path is empty, defaults to ~/.yetisearch/config.toml.
func NewSettingsStore(path string) (*SettingsStore, error) {
	if path == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, FileName)
	}

	s := &SettingsStore{filePath: path, settings: domain.DefaultSettings()}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads and validates settings from path. A missing file yields
// domain.DefaultSettings.
func Load(path string) (domain.Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, err
	}

	settings := domain.DefaultSettings()
	// A configured field set replaces the defaults rather than merging into them.
	settings.Indexer.Fields = nil
	if err := toml.Unmarshal(data, &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(settings.Indexer.Fields) == 0 {
		settings.Indexer.Fields = domain.DefaultFields()
	}
	if err := settings.Validate(); err != nil {
		return domain.Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return settings, nil
}

// Save writes settings to path as TOML, creating the directory if needed.
func Save(path string, settings domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := toml.Marshal(settings)
	if err != nil {
		return err
	}

	// Write with restricted permissions
	return os.WriteFile(path, data, 0600)
}

// Settings returns a copy of the current settings.
func (s *SettingsStore) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSettings(s.settings)
}

// Update applies fn to a copy of the settings, then validates and persists
// it. The stored settings are unchanged when validation or the write fails.
func (s *SettingsStore) Update(fn func(*domain.Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneSettings(s.settings)
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	if err := Save(s.filePath, next); err != nil {
		return err
	}
	s.settings = next
	return nil
}

// Save persists the current settings to disk.
func (s *SettingsStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Save(s.filePath, s.settings)
}

// Load reads settings from the TOML file.
func (s *SettingsStore) Load() error {
	settings, err := Load(s.filePath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// Path returns the settings file path.
func (s *SettingsStore) Path() string {
	return s.filePath
}

func cloneSettings(in domain.Settings) domain.Settings {
	out := in
	out.Indexer.Fields = maps.Clone(in.Indexer.Fields)
	return out
}
