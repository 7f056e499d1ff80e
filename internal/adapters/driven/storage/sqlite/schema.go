package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

// ftsTokenizer is used by every full-text table.
const ftsTokenizer = "porter unicode61 remove_diacritics 2"

// singleColumn holds all searchable text when an index is not multi-column.
const singleColumn = "searchable"

// fieldColumnPrefix prefixes per-field full-text columns.
const fieldColumnPrefix = "f_"

// indexSchema is the registry entry of one index.
type indexSchema struct {
	name        string
	fields      domain.FieldSet
	strategy    domain.Strategy
	multiColumn bool
	spatial     bool
	createdAt   time.Time
	updatedAt   time.Time
}

func (x *indexSchema) docTable() string     { return quoteIdent(x.name) }
func (x *indexSchema) ftsName() string      { return x.name + "_fts" }
func (x *indexSchema) ftsTable() string     { return quoteIdent(x.ftsName()) }
func (x *indexSchema) spatialTable() string { return quoteIdent(x.name + "_spatial") }
func (x *indexSchema) vocabTable() string   { return quoteIdent(x.name + "_fts_vocab") }
func (x *indexSchema) external() bool       { return x.strategy == domain.StrategyExternal }

// key is the document-table column that full-text and spatial rows reference.
func (x *indexSchema) key() string {
	if x.external() {
		return "doc_id"
	}
	return "rowid"
}

// ftsFields returns the fields that own a full-text column, in column order.
// A nil result means the index uses the single searchable column.
func (x *indexSchema) ftsFields() []string {
	if !x.multiColumn {
		return nil
	}
	return x.fields.IndexedNames()
}

// ftsColumns returns the full-text column names in order.
func (x *indexSchema) ftsColumns() []string {
	fields := x.ftsFields()
	if len(fields) == 0 {
		return []string{singleColumn}
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = fieldColumnPrefix + f
	}
	return cols
}

// columnFor maps a field name to its full-text column, if it has one.
func (x *indexSchema) columnFor(field string) (string, bool) {
	for _, f := range x.ftsFields() {
		if f == field {
			return fieldColumnPrefix + f, true
		}
	}
	return "", false
}

func (x *indexSchema) info() domain.IndexInfo {
	return domain.IndexInfo{
		Name:        x.name,
		Fields:      x.fields,
		Strategy:    x.strategy,
		MultiColumn: x.multiColumn,
		Spatial:     x.spatial,
		CreatedAt:   x.createdAt,
		UpdatedAt:   x.updatedAt,
	}
}

// docTableDDL returns the CREATE TABLE statement for the document table.
func (x *indexSchema) docTableDDL(table string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" (\n")
	if x.external() {
		b.WriteString("\tdoc_id INTEGER PRIMARY KEY,\n\tid TEXT UNIQUE NOT NULL,\n")
	} else {
		b.WriteString("\tid TEXT PRIMARY KEY,\n")
	}
	b.WriteString(`	content TEXT NOT NULL DEFAULT '{}',
	metadata TEXT NOT NULL DEFAULT '{}',
	language TEXT,
	type TEXT NOT NULL DEFAULT 'default',
	timestamp INTEGER NOT NULL DEFAULT 0,
	indexed_at INTEGER NOT NULL DEFAULT 0,
	geo_lat REAL,
	geo_lng REAL,
	geo_bounds TEXT`)
	if x.external() {
		for _, c := range x.ftsColumns() {
			b.WriteString(",\n\t")
			b.WriteString(c)
			b.WriteString(" TEXT")
		}
	}
	b.WriteString("\n)")
	return b.String()
}

// docIndexesDDL returns the secondary indexes of the document table.
func (x *indexSchema) docIndexesDDL() []string {
	t := x.docTable()
	return []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(type)`, quoteIdent("idx_"+x.name+"_type"), t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(timestamp)`, quoteIdent("idx_"+x.name+"_timestamp"), t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(json_extract(metadata, '$.parent_id'))`,
			quoteIdent("idx_"+x.name+"_parent"), t),
	}
}

// ftsDDL returns the CREATE VIRTUAL TABLE statement for the full-text table.
func (x *indexSchema) ftsDDL() string {
	cols := x.ftsColumns()
	if x.external() {
		return fmt.Sprintf(
			"CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(%s, content='%s', content_rowid='doc_id', tokenize='%s')",
			x.ftsTable(), strings.Join(cols, ", "), x.name, ftsTokenizer)
	}
	return fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(id UNINDEXED, %s, tokenize='%s')",
		x.ftsTable(), strings.Join(cols, ", "), ftsTokenizer)
}

func (x *indexSchema) vocabDDL() string {
	return fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5vocab('%s', 'row')",
		x.vocabTable(), x.ftsName())
}

func (x *indexSchema) spatialDDL() string {
	return fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING rtree(id, minX, maxX, minY, maxY)",
		x.spatialTable())
}

// CreateIndex creates the document, full-text, vocabulary and (optionally)
// spatial tables of a new index and records it in the registry.
func (s *Store) CreateIndex(ctx context.Context, name string, opts domain.IndexOptions) error {
	if err := domain.ValidateIdentifier("create index", name); err != nil {
		return domain.NewSchemaError("create", name, err)
	}
	if isReserved(name) {
		return domain.NewSchemaError("create", name,
			domain.NewValidationError("create index", "reserved name", domain.ErrInvalidIdentifier))
	}
	fields := opts.Fields
	if len(fields) == 0 {
		fields = domain.DefaultFields()
	}
	if err := fields.Validate(); err != nil {
		return domain.NewSchemaError("create", name, err)
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = domain.StrategyExternal
	}
	if strategy != domain.StrategyExternal && strategy != domain.StrategyEmbedded {
		return domain.NewSchemaError("create", name,
			domain.NewValidationError("create index", fmt.Sprintf("unknown strategy %q", strategy), domain.ErrInvalidInput))
	}

	exists, err := s.IndexExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return domain.NewSchemaError("create", name, domain.ErrAlreadyExists)
	}

	now := s.now().UTC()
	x := &indexSchema{
		name:        name,
		fields:      fields,
		strategy:    strategy,
		multiColumn: opts.MultiColumn,
		spatial:     opts.Spatial,
		createdAt:   now,
		updatedAt:   now,
	}

	stmts := []string{x.docTableDDL(name)}
	stmts = append(stmts, x.docIndexesDDL()...)
	stmts = append(stmts, x.ftsDDL(), x.vocabDDL())
	if x.spatial {
		stmts = append(stmts, x.spatialDDL())
	}

	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
			}
		}
		return saveSchema(ctx, tx, x)
	})
	if err != nil {
		return domain.NewSchemaError("create", name, err)
	}

	s.cacheSchema(x)
	s.log.Debug("index created",
		zap.String("index", name),
		zap.String("strategy", string(strategy)),
		zap.Strings("columns", x.ftsColumns()),
		zap.Bool("spatial", x.spatial))
	return nil
}

// DropIndex removes every table of an index. Dropping a missing index is a no-op.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	if err := domain.ValidateIdentifier("drop index", name); err != nil {
		return domain.NewSchemaError("drop", name, err)
	}
	if isReserved(name) {
		return domain.NewSchemaError("drop", name,
			domain.NewValidationError("drop index", "reserved name", domain.ErrInvalidIdentifier))
	}
	x := &indexSchema{name: name}

	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, t := range []string{x.vocabTable(), x.ftsTable(), x.spatialTable(), x.docTable()} {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
				return fmt.Errorf("dropping %s: %w", t, err)
			}
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM "+registryTable+" WHERE name = ?", name)
		return err
	})
	if err != nil {
		return domain.NewSchemaError("drop", name, err)
	}

	s.forgetSchema(name)
	s.log.Debug("index dropped", zap.String("index", name))
	return nil
}

// IndexExists reports whether the index's document table exists.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	if !domain.IsValidIdentifier(name) {
		return false, nil
	}
	ok, err := tableExists(ctx, s.db, name)
	if err != nil {
		return false, domain.NewStorageError("exists", name, err)
	}
	return ok, nil
}

// schema returns the registry entry of an index, or a StorageError wrapping
// ErrIndexNotFound.
func (s *Store) schema(ctx context.Context, op, name string) (*indexSchema, error) {
	if err := domain.ValidateIdentifier(op, name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	x, ok := s.schemas[name]
	s.mu.RUnlock()
	if ok {
		return x, nil
	}

	x, err := loadSchema(ctx, s.db, name)
	if errors.Is(err, sql.ErrNoRows) {
		x, err = s.detectSchema(ctx, name)
	}
	if err != nil {
		return nil, domain.NewStorageError(op, name, err)
	}

	s.cacheSchema(x)
	return x, nil
}

func (s *Store) cacheSchema(x *indexSchema) {
	s.mu.Lock()
	s.schemas[x.name] = x
	s.mu.Unlock()
}

func (s *Store) forgetSchema(name string) {
	s.mu.Lock()
	delete(s.schemas, name)
	s.mu.Unlock()
}

// detectSchema reconstructs the registry entry of an index created without
// one, from the tables themselves, and records it.
func (s *Store) detectSchema(ctx context.Context, name string) (*indexSchema, error) {
	ok, err := tableExists(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrIndexNotFound
	}

	x := &indexSchema{name: name, strategy: domain.StrategyEmbedded}

	var ftsSQL sql.NullString
	err = s.db.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", x.ftsName()).Scan(&ftsSQL)
	if err != nil {
		return nil, fmt.Errorf("reading full-text schema: %w", err)
	}
	if strings.Contains(strings.ReplaceAll(ftsSQL.String, " ", ""), "content=") {
		x.strategy = domain.StrategyExternal
	}

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", x.ftsName())
	if err != nil {
		return nil, fmt.Errorf("reading full-text columns: %w", err)
	}
	x.fields = domain.FieldSet{}
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			rows.Close()
			return nil, err
		}
		if strings.HasPrefix(col, fieldColumnPrefix) {
			x.fields[strings.TrimPrefix(col, fieldColumnPrefix)] = domain.DefaultFieldConfig()
			x.multiColumn = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(x.fields) == 0 {
		x.fields = domain.DefaultFields()
	}

	if x.spatial, err = tableExists(ctx, s.db, name+"_spatial"); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	x.createdAt, x.updatedAt = now, now
	if err := runTx(ctx, s.db, func(tx *sql.Tx) error { return saveSchema(ctx, tx, x) }); err != nil {
		return nil, err
	}
	s.log.Debug("index schema detected", zap.String("index", name), zap.String("strategy", string(x.strategy)))
	return x, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableExists(ctx context.Context, q queryer, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return n > 0, nil
}

func saveSchema(ctx context.Context, tx *sql.Tx, x *indexSchema) error {
	fieldsJSON, err := json.Marshal(x.fields)
	if err != nil {
		return fmt.Errorf("marshalling field config: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO `+registryTable+` (name, field_config, strategy, multi_column, spatial, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			field_config = excluded.field_config,
			strategy = excluded.strategy,
			multi_column = excluded.multi_column,
			spatial = excluded.spatial,
			updated_at = excluded.updated_at
	`, x.name, string(fieldsJSON), string(x.strategy), x.multiColumn, x.spatial,
		x.createdAt.UnixMilli(), x.updatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving index registry: %w", err)
	}
	return nil
}

func loadSchema(ctx context.Context, q queryer, name string) (*indexSchema, error) {
	row := q.QueryRowContext(ctx, `
		SELECT name, field_config, strategy, multi_column, spatial, created_at, updated_at
		FROM `+registryTable+` WHERE name = ?
	`, name)
	return scanSchema(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchema(row scanner) (*indexSchema, error) {
	var (
		x                    indexSchema
		fieldsJSON, strategy string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&x.name, &fieldsJSON, &strategy, &x.multiColumn, &x.spatial, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &x.fields); err != nil {
		return nil, fmt.Errorf("unmarshalling field config: %w", err)
	}
	x.strategy = domain.Strategy(strategy)
	x.createdAt = time.UnixMilli(createdAt).UTC()
	x.updatedAt = time.UnixMilli(updatedAt).UTC()
	return &x, nil
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
