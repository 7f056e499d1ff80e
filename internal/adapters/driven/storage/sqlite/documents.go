package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

// jsonNull is the JSON representation of null.
const jsonNull = "null"

// Insert upserts a single document.
func (s *Store) Insert(ctx context.Context, name string, doc *domain.Document) error {
	return s.InsertBatch(ctx, name, []*domain.Document{doc})
}

// InsertBatch upserts documents in one transaction. Every document is
// validated before anything is written.
func (s *Store) InsertBatch(ctx context.Context, name string, docs []*domain.Document) error {
	x, err := s.schema(ctx, "insert", name)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		if err := validateDocument(doc); err != nil {
			return err
		}
	}

	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		w, err := newWriter(ctx, tx, x)
		if err != nil {
			return err
		}
		defer w.close()
		for _, doc := range docs {
			if err := w.upsert(ctx, doc); err != nil {
				return fmt.Errorf("writing document %q: %w", doc.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.NewStorageError("insert", name, err)
	}

	s.log.Debug("documents written", zap.String("index", name), zap.Int("count", len(docs)))
	return nil
}

// Update replaces the stored fields, full-text entry and spatial entry of
// an existing document.
func (s *Store) Update(ctx context.Context, name, id string, doc *domain.Document) error {
	x, err := s.schema(ctx, "update", name)
	if err != nil {
		return err
	}
	if doc == nil {
		return domain.NewValidationError("update", "document is nil", domain.ErrInvalidInput)
	}
	if doc.ID == "" {
		doc.ID = id
	}
	if doc.ID != id {
		return domain.NewValidationError("update", fmt.Sprintf("document id %q does not match %q", doc.ID, id), domain.ErrInvalidInput)
	}
	if err := validateDocument(doc); err != nil {
		return err
	}

	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		w, err := newWriter(ctx, tx, x)
		if err != nil {
			return err
		}
		defer w.close()
		old, err := w.current(ctx, id)
		if err != nil {
			return err
		}
		if old == nil {
			return domain.ErrNotFound
		}
		return w.upsert(ctx, doc)
	})
	if err != nil {
		return domain.NewStorageError("update", name, err)
	}
	return nil
}

// Delete removes a document and its chunks. Deleting a missing document is a no-op.
func (s *Store) Delete(ctx context.Context, name, id string) error {
	x, err := s.schema(ctx, "delete", name)
	if err != nil {
		return err
	}

	var removed int
	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		w, err := newWriter(ctx, tx, x)
		if err != nil {
			return err
		}
		defer w.close()
		removed, err = w.deleteWhere(ctx, "id = ? OR json_extract(metadata, '$.parent_id') = ?", id, id)
		return err
	})
	if err != nil {
		return domain.NewStorageError("delete", name, err)
	}

	s.log.Debug("document deleted", zap.String("index", name), zap.String("id", id), zap.Int("rows", removed))
	return nil
}

// DeleteChunks removes the chunk documents of parentID and returns how many were removed.
func (s *Store) DeleteChunks(ctx context.Context, name, parentID string) (int, error) {
	x, err := s.schema(ctx, "delete chunks", name)
	if err != nil {
		return 0, err
	}

	var removed int
	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		w, err := newWriter(ctx, tx, x)
		if err != nil {
			return err
		}
		defer w.close()
		removed, err = w.deleteWhere(ctx, "json_extract(metadata, '$.parent_id') = ?", parentID)
		return err
	})
	if err != nil {
		return 0, domain.NewStorageError("delete chunks", name, err)
	}
	return removed, nil
}

// Get returns a stored document by id.
func (s *Store) Get(ctx context.Context, name, id string) (*domain.Document, error) {
	x, err := s.schema(ctx, "get", name)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, metadata, language, type, timestamp, indexed_at, geo_lat, geo_lng, geo_bounds
		FROM `+x.docTable()+` WHERE id = ?
	`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewStorageError("get", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStorageError("get", name, err)
	}
	return doc, nil
}

func validateDocument(doc *domain.Document) error {
	if doc == nil {
		return domain.NewValidationError("insert", "document is nil", domain.ErrInvalidInput)
	}
	if doc.ID == "" {
		return domain.NewValidationError("insert", "document has no id", domain.ErrMissingID)
	}
	if doc.Geo != nil && !doc.Geo.Valid() {
		return domain.NewValidationError("insert",
			fmt.Sprintf("document %q has out-of-range geo point", doc.ID), domain.ErrInvalidGeo)
	}
	if doc.GeoBounds != nil && !doc.GeoBounds.Valid() {
		return domain.NewValidationError("insert",
			fmt.Sprintf("document %q has invalid geo bounds", doc.ID), domain.ErrInvalidGeo)
	}
	return nil
}

// writer holds the prepared statements of one write transaction.
type writer struct {
	x       *indexSchema
	tx      *sql.Tx
	cols    []string
	spatial bool

	selectOld     *sql.Stmt
	upsertDoc     *sql.Stmt
	insertFTS     *sql.Stmt
	deleteFTS     *sql.Stmt
	insertSpatial *sql.Stmt
	deleteSpatial *sql.Stmt
	deleteDoc     *sql.Stmt
}

// storedRow is the full-text state of an existing document row.
type storedRow struct {
	key  int64
	text []sql.NullString
}

func newWriter(ctx context.Context, tx *sql.Tx, x *indexSchema) (*writer, error) {
	w := &writer{x: x, tx: tx, cols: x.ftsColumns()}

	var err error
	w.spatial, err = tableExists(ctx, tx, x.name+"_spatial")
	if err != nil {
		return nil, err
	}

	key := x.key()
	selectCols := key
	if x.external() {
		selectCols += ", " + strings.Join(w.cols, ", ")
	}

	docCols := []string{"id", "content", "metadata", "language", "type", "timestamp", "indexed_at", "geo_lat", "geo_lng", "geo_bounds"}
	if x.external() {
		docCols = append(docCols, w.cols...)
	}
	updates := make([]string, 0, len(docCols)-1)
	for _, c := range docCols[1:] {
		updates = append(updates, c+" = excluded."+c)
	}

	ftsCols := append([]string{"rowid"}, w.cols...)
	if !x.external() {
		ftsCols = append([]string{"rowid", "id"}, w.cols...)
	}

	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&w.selectOld, fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", selectCols, x.docTable())},
		{&w.upsertDoc, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s RETURNING %s",
			x.docTable(), strings.Join(docCols, ", "), placeholders(len(docCols)), strings.Join(updates, ", "), key)},
		{&w.insertFTS, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			x.ftsTable(), strings.Join(ftsCols, ", "), placeholders(len(ftsCols)))},
		{&w.deleteDoc, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", x.docTable(), key)},
	}
	if x.external() {
		stmts = append(stmts, struct {
			dst   **sql.Stmt
			query string
		}{&w.deleteFTS, fmt.Sprintf("INSERT INTO %s (%s, rowid, %s) VALUES ('delete', ?, %s)",
			x.ftsTable(), x.ftsName(), strings.Join(w.cols, ", "), placeholders(len(w.cols)))})
	} else {
		stmts = append(stmts, struct {
			dst   **sql.Stmt
			query string
		}{&w.deleteFTS, fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", x.ftsTable())})
	}
	if w.spatial {
		stmts = append(stmts,
			struct {
				dst   **sql.Stmt
				query string
			}{&w.insertSpatial, fmt.Sprintf("INSERT OR REPLACE INTO %s (id, minX, maxX, minY, maxY) VALUES (?, ?, ?, ?, ?)", x.spatialTable())},
			struct {
				dst   **sql.Stmt
				query string
			}{&w.deleteSpatial, fmt.Sprintf("DELETE FROM %s WHERE id = ?", x.spatialTable())},
		)
	}

	for _, st := range stmts {
		stmt, err := tx.PrepareContext(ctx, st.query)
		if err != nil {
			w.close()
			return nil, fmt.Errorf("preparing %q: %w", st.query, err)
		}
		*st.dst = stmt
	}
	return w, nil
}

func (w *writer) close() {
	for _, stmt := range []*sql.Stmt{w.selectOld, w.upsertDoc, w.insertFTS, w.deleteFTS, w.insertSpatial, w.deleteSpatial, w.deleteDoc} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// current returns the full-text state of the row with id, or nil.
func (w *writer) current(ctx context.Context, id string) (*storedRow, error) {
	row := &storedRow{}
	dest := []any{&row.key}
	if w.x.external() {
		row.text = make([]sql.NullString, len(w.cols))
		for i := range row.text {
			dest = append(dest, &row.text[i])
		}
	}
	if err := w.selectOld.QueryRowContext(ctx, id).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading current row: %w", err)
	}
	return row, nil
}

// unindex removes the full-text and spatial entries of a stored row.
func (w *writer) unindex(ctx context.Context, row *storedRow) error {
	args := []any{row.key}
	if w.x.external() {
		for _, t := range row.text {
			args = append(args, t)
		}
	}
	if _, err := w.deleteFTS.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("removing full-text entry: %w", err)
	}
	if w.spatial {
		if _, err := w.deleteSpatial.ExecContext(ctx, row.key); err != nil {
			return fmt.Errorf("removing spatial entry: %w", err)
		}
	}
	return nil
}

// upsert writes the document row first, then its full-text and spatial
// entries keyed by the row's key.
func (w *writer) upsert(ctx context.Context, doc *domain.Document) error {
	old, err := w.current(ctx, doc.ID)
	if err != nil {
		return err
	}
	if old != nil {
		if err := w.unindex(ctx, old); err != nil {
			return err
		}
	}

	text := ftsText(w.x, doc)
	args, err := docArgs(w.x, doc)
	if err != nil {
		return err
	}
	if w.x.external() {
		args = append(args, text...)
	}

	var key int64
	if err := w.upsertDoc.QueryRowContext(ctx, args...).Scan(&key); err != nil {
		return fmt.Errorf("upserting row: %w", err)
	}

	ftsArgs := []any{key}
	if !w.x.external() {
		ftsArgs = append(ftsArgs, doc.ID)
	}
	ftsArgs = append(ftsArgs, text...)
	if _, err := w.insertFTS.ExecContext(ctx, ftsArgs...); err != nil {
		return fmt.Errorf("writing full-text entry: %w", err)
	}

	if w.spatial && doc.HasGeo() {
		minX, maxX, minY, maxY := spatialBox(doc)
		if _, err := w.insertSpatial.ExecContext(ctx, key, minX, maxX, minY, maxY); err != nil {
			return fmt.Errorf("writing spatial entry: %w", err)
		}
	}
	return nil
}

// deleteWhere removes every row matching where, with its index entries.
func (w *writer) deleteWhere(ctx context.Context, where string, args ...any) (int, error) {
	rows, err := w.tx.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE %s", w.x.docTable(), where), args...)
	if err != nil {
		return 0, fmt.Errorf("selecting rows: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		old, err := w.current(ctx, id)
		if err != nil {
			return 0, err
		}
		if old == nil {
			continue
		}
		if err := w.unindex(ctx, old); err != nil {
			return 0, err
		}
		if _, err := w.deleteDoc.ExecContext(ctx, old.key); err != nil {
			return 0, fmt.Errorf("deleting row: %w", err)
		}
	}
	return len(ids), nil
}

// docArgs returns the document-table values in writer column order.
func docArgs(x *indexSchema, doc *domain.Document) ([]any, error) {
	contentJSON, err := json.Marshal(storedContent(x, doc))
	if err != nil {
		return nil, fmt.Errorf("marshalling content: %w", err)
	}
	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshalling metadata: %w", err)
	}

	docType := doc.Type
	if docType == "" {
		docType = domain.DefaultDocumentType
	}

	var lat, lng, bounds any
	if doc.Geo != nil {
		lat, lng = doc.Geo.Lat, doc.Geo.Lng
	}
	if doc.GeoBounds != nil {
		b, err := json.Marshal(doc.GeoBounds)
		if err != nil {
			return nil, fmt.Errorf("marshalling geo bounds: %w", err)
		}
		bounds = string(b)
	}

	return []any{
		doc.ID, string(contentJSON), string(metadataJSON), nullString(doc.Language), docType,
		doc.Timestamp, doc.IndexedAt, lat, lng, bounds,
	}, nil
}

// storedContent keeps the declared fields whose config asks for storage.
func storedContent(x *indexSchema, doc *domain.Document) map[string]any {
	out := make(map[string]any, len(doc.Content))
	for field, value := range doc.Content {
		if cfg, ok := x.fields[field]; ok && cfg.Store {
			out[field] = value
		}
	}
	return out
}

// ftsText returns the full-text column values in column order. Analyzed
// text supplied by the indexer wins; otherwise raw field text is used, and
// single-column indices repeat each field in proportion to its boost.
func ftsText(x *indexSchema, doc *domain.Document) []any {
	fields := x.ftsFields()
	if len(fields) > 0 {
		out := make([]any, len(fields))
		for i, f := range fields {
			if t, ok := doc.Searchable[f]; ok {
				out[i] = t
			} else if t, ok := doc.FieldText(f); ok {
				out[i] = t
			}
		}
		return out
	}

	if doc.SearchText != "" {
		return []any{doc.SearchText}
	}
	var parts []string
	for _, f := range x.fields.IndexedNames() {
		t, ok := doc.Searchable[f]
		if !ok {
			t, ok = doc.FieldText(f)
		}
		if !ok || t == "" {
			continue
		}
		for range boostRepeat(x.fields[f].Boost) {
			parts = append(parts, t)
		}
	}
	return []any{strings.Join(parts, " ")}
}

// boostRepeat is how many times a field's text is repeated for its boost.
func boostRepeat(boost float64) int {
	if boost <= 0 {
		return 0
	}
	return max(1, int(math.Round(boost)))
}

// spatialBox returns the R-tree entry (X is longitude, Y is latitude).
// Areas crossing the antimeridian span every longitude; searches re-test
// candidates against the stored bounds.
func spatialBox(doc *domain.Document) (minX, maxX, minY, maxY float64) {
	if doc.GeoBounds == nil {
		return doc.Geo.Lng, doc.Geo.Lng, doc.Geo.Lat, doc.Geo.Lat
	}
	b := *doc.GeoBounds
	minX, maxX, minY, maxY = b.MinLng, b.MaxLng, b.MinLat, b.MaxLat
	if b.CrossesDateline() {
		minX, maxX = -180, 180
	}
	if p := doc.Geo; p != nil {
		minY, maxY = math.Min(minY, p.Lat), math.Max(maxY, p.Lat)
		if !b.CrossesDateline() {
			minX, maxX = math.Min(minX, p.Lng), math.Max(maxX, p.Lng)
		}
	}
	return minX, maxX, minY, maxY
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// scanDocument decodes the common document columns:
// id, content, metadata, language, type, timestamp, indexed_at, geo_lat, geo_lng, geo_bounds.
func scanDocument(row scanner, extra ...any) (*domain.Document, error) {
	var (
		doc                   domain.Document
		contentJSON, metaJSON string
		language, bounds      sql.NullString
		lat, lng              sql.NullFloat64
	)
	dest := append([]any{&doc.ID, &contentJSON, &metaJSON, &language, &doc.Type,
		&doc.Timestamp, &doc.IndexedAt, &lat, &lng, &bounds}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(contentJSON), &doc.Content); err != nil {
		return nil, fmt.Errorf("unmarshalling content: %w", err)
	}
	if metaJSON != "" && metaJSON != jsonNull {
		if err := json.Unmarshal([]byte(metaJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata: %w", err)
		}
	}
	doc.Language = language.String
	if lat.Valid && lng.Valid {
		doc.Geo = &domain.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	if bounds.Valid && bounds.String != "" {
		var b domain.GeoBounds
		if err := json.Unmarshal([]byte(bounds.String), &b); err != nil {
			return nil, fmt.Errorf("unmarshalling geo bounds: %w", err)
		}
		doc.GeoBounds = &b
	}
	return &doc, nil
}
