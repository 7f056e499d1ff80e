package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/yetidevworks/yetisearch/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/yetidevworks/yetisearch/internal/core/domain"
	"github.com/yetidevworks/yetisearch/internal/core/ports/driven"
	"github.com/yetidevworks/yetisearch/internal/logger"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// registryTable records the configuration of every index.
const registryTable = "_indices"

// Store implements driven.Storage on SQLite FTS5 and R-tree tables.
type Store struct {
	db   *sql.DB
	path string
	log  *zap.Logger

	busyTimeoutMS int
	highlightTag  string
	decayK        float64
	now           func() time.Time

	mu      sync.RWMutex
	schemas map[string]*indexSchema
}

var _ driven.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBusyTimeout sets how long a connection waits on a locked database.
func WithBusyTimeout(ms int) Option {
	return func(s *Store) {
		if ms > 0 {
			s.busyTimeoutMS = ms
		}
	}
}

// WithHighlightTag sets the element name wrapped around highlighted terms.
func WithHighlightTag(tag string) Option {
	return func(s *Store) {
		if tag != "" {
			s.highlightTag = tag
		}
	}
}

// WithDecayK sets the default distance decay used when blending scores.
func WithDecayK(k float64) Option {
	return func(s *Store) {
		if k > 0 {
			s.decayK = k
		}
	}
}

// WithClock replaces the wall clock used for registry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore opens (creating if needed) the database at path.
// If path is empty, defaults to ~/.yetisearch/yetisearch.db.
func NewStore(path string, opts ...Option) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".yetisearch", "yetisearch.db")
	}

	s := &Store{
		path:          path,
		log:           logger.Named("storage"),
		busyTimeoutMS: 5000,
		highlightTag:  "mark",
		decayK:        domain.DefaultDecayK,
		now:           time.Now,
		schemas:       make(map[string]*indexSchema),
	}
	for _, opt := range opts {
		opt(s)
	}

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// Functions are only visible to connections opened after registration.
	registerFunctions()

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, s.busyTimeoutMS)
	if path != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == MemoryPath {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	s.db = db

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.log.Debug("storage opened", zap.String("path", path))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_registry.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		err = runTx(context.Background(), s.db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(string(content)); err != nil {
				return err
			}
			_, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version)
			return err
		})
		if err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// quoteIdent quotes a validated identifier for use in DDL and DML.
func quoteIdent(name string) string {
	return `"` + name + `"`
}

// isReserved reports whether name collides with the engine's own tables.
func isReserved(name string) bool {
	lower := strings.ToLower(name)
	return lower == registryTable || lower == "schema_migrations" || strings.HasPrefix(lower, "sqlite_")
}
