package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

// Optimize merges the full-text index b-trees. It is safe to call at any time.
func (s *Store) Optimize(ctx context.Context, name string) error {
	x, err := s.schema(ctx, "optimize", name)
	if err != nil {
		return err
	}
	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s(%s) VALUES('optimize')", x.ftsTable(), x.ftsName()))
		return err
	})
	if err != nil {
		return domain.NewStorageError("optimize", name, err)
	}
	s.log.Debug("index optimized", zap.String("index", name))
	return nil
}

// MigrateToExternalContent converts an embedded-content index in place.
// Documents keep their ids and content, the full-text index is rebuilt
// from the new document table, and the spatial table is recreated empty.
// Either every step commits or the original schema is left untouched.
func (s *Store) MigrateToExternalContent(ctx context.Context, name string) error {
	x, err := s.schema(ctx, "migrate", name)
	if err != nil {
		return err
	}
	if x.external() {
		return nil
	}

	nx := *x
	nx.strategy = domain.StrategyExternal
	nx.updatedAt = s.now().UTC()

	tmp := name + "_migrating"
	cols := nx.ftsColumns()
	docCols := "id, content, metadata, language, type, timestamp, indexed_at, geo_lat, geo_lng, geo_bounds"
	srcCols := make([]string, 0, 10+len(cols))
	for _, c := range strings.Split(docCols, ", ") {
		srcCols = append(srcCols, "d."+c)
	}
	for _, c := range cols {
		srcCols = append(srcCols, "f."+c)
	}

	stmts := []string{
		"DROP TABLE IF EXISTS " + quoteIdent(tmp),
		nx.docTableDDL(tmp),
		fmt.Sprintf("INSERT INTO %s (%s, %s) SELECT %s FROM %s d LEFT JOIN %s f ON f.rowid = d.rowid ORDER BY d.rowid",
			quoteIdent(tmp), docCols, strings.Join(cols, ", "), strings.Join(srcCols, ", "), x.docTable(), x.ftsTable()),
		"DROP TABLE IF EXISTS " + x.vocabTable(),
		"DROP TABLE IF EXISTS " + x.ftsTable(),
		"DROP TABLE IF EXISTS " + x.spatialTable(),
		"DROP TABLE " + x.docTable(),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(tmp), nx.docTable()),
	}
	stmts = append(stmts, nx.docIndexesDDL()...)
	stmts = append(stmts,
		nx.ftsDDL(),
		fmt.Sprintf("INSERT INTO %s(%s) VALUES('rebuild')", nx.ftsTable(), nx.ftsName()),
		nx.vocabDDL(),
	)
	if nx.spatial {
		stmts = append(stmts, nx.spatialDDL())
	}

	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
			}
		}
		return saveSchema(ctx, tx, &nx)
	})
	if err != nil {
		s.forgetSchema(name)
		return domain.NewSchemaError("migrate", name, err)
	}

	s.cacheSchema(&nx)
	s.log.Info("index migrated to external content", zap.String("index", name))
	return nil
}

// EnsureSpatialTableExists creates the spatial table of an index that has
// none and fills it from the stored geo columns. Existing tables are left alone.
func (s *Store) EnsureSpatialTableExists(ctx context.Context, name string) error {
	x, err := s.schema(ctx, "ensure spatial", name)
	if err != nil {
		return err
	}

	var created int
	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		exists, err := tableExists(ctx, tx, x.name+"_spatial")
		if err != nil {
			return err
		}
		if !exists {
			if _, err := tx.ExecContext(ctx, x.spatialDDL()); err != nil {
				return fmt.Errorf("creating spatial table: %w", err)
			}
			if created, err = backfillSpatial(ctx, tx, x); err != nil {
				return err
			}
		}
		if x.spatial {
			return nil
		}
		nx := *x
		nx.spatial = true
		nx.updatedAt = s.now().UTC()
		return saveSchema(ctx, tx, &nx)
	})
	if err != nil {
		return domain.NewSchemaError("ensure spatial", name, err)
	}

	if !x.spatial {
		nx := *x
		nx.spatial = true
		s.cacheSchema(&nx)
	}
	s.log.Debug("spatial table ensured", zap.String("index", name), zap.Int("backfilled", created))
	return nil
}

func backfillSpatial(ctx context.Context, tx *sql.Tx, x *indexSchema) (int, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s, geo_lat, geo_lng, geo_bounds FROM %s WHERE geo_lat IS NOT NULL OR geo_bounds IS NOT NULL",
		x.key(), x.docTable()))
	if err != nil {
		return 0, fmt.Errorf("reading geo rows: %w", err)
	}

	type entry struct {
		key int64
		doc domain.Document
	}
	var entries []entry
	for rows.Next() {
		var (
			e        entry
			lat, lng sql.NullFloat64
			bounds   sql.NullString
		)
		if err := rows.Scan(&e.key, &lat, &lng, &bounds); err != nil {
			rows.Close()
			return 0, err
		}
		if lat.Valid && lng.Valid {
			e.doc.Geo = &domain.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
		}
		if bounds.Valid {
			var b domain.GeoBounds
			if err := json.Unmarshal([]byte(bounds.String), &b); err == nil {
				e.doc.GeoBounds = &b
			}
		}
		if e.doc.HasGeo() {
			entries = append(entries, e)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (id, minX, maxX, minY, maxY) VALUES (?, ?, ?, ?, ?)", x.spatialTable()))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, e := range entries {
		minX, maxX, minY, maxY := spatialBox(&e.doc)
		if _, err := stmt.ExecContext(ctx, e.key, minX, maxX, minY, maxY); err != nil {
			return 0, fmt.Errorf("backfilling spatial entry: %w", err)
		}
	}
	return len(entries), nil
}

// GetIndexStats reports document, chunk, spatial and vocabulary counts.
func (s *Store) GetIndexStats(ctx context.Context, name string) (*domain.IndexStats, error) {
	x, err := s.schema(ctx, "stats", name)
	if err != nil {
		return nil, err
	}
	stats := &domain.IndexStats{IndexInfo: x.info()}

	var total int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN json_extract(metadata, '$.%s') THEN 1 ELSE 0 END), 0)
		FROM %s`, domain.MetaIsChunk, x.docTable())).Scan(&total, &stats.Chunks)
	if err != nil {
		return nil, domain.NewStorageError("stats", name, err)
	}
	stats.Documents = total - stats.Chunks

	if ok, err := tableExists(ctx, s.db, x.name+"_spatial"); err != nil {
		return nil, domain.NewStorageError("stats", name, err)
	} else if ok {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+x.spatialTable()).Scan(&stats.SpatialEntries); err != nil {
			return nil, domain.NewStorageError("stats", name, err)
		}
	}

	if ok, err := tableExists(ctx, s.db, x.name+"_fts_vocab"); err != nil {
		return nil, domain.NewStorageError("stats", name, err)
	} else if ok {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+x.vocabTable()).Scan(&stats.Terms); err != nil {
			return nil, domain.NewStorageError("stats", name, err)
		}
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").Scan(&stats.DatabaseBytes)
	if err != nil {
		return nil, domain.NewStorageError("stats", name, err)
	}
	return stats, nil
}

// ListIndices returns every registered index ordered by name.
func (s *Store) ListIndices(ctx context.Context) ([]domain.IndexInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, field_config, strategy, multi_column, spatial, created_at, updated_at
		FROM `+registryTable+` ORDER BY name
	`)
	if err != nil {
		return nil, domain.NewStorageError("list", "", err)
	}
	defer rows.Close()

	infos := []domain.IndexInfo{}
	for rows.Next() {
		x, err := scanSchema(rows)
		if err != nil {
			return nil, domain.NewStorageError("list", "", err)
		}
		infos = append(infos, x.info())
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list", "", err)
	}
	return infos, nil
}

// GetIndexedTerms returns vocabulary terms occurring at least minFrequency
// times, most frequent first. An empty name covers every index.
func (s *Store) GetIndexedTerms(ctx context.Context, name string, minFrequency, limit int) ([]domain.TermStat, error) {
	var names []string
	if name != "" {
		names = []string{name}
	} else {
		infos, err := s.ListIndices(ctx)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			names = append(names, info.Name)
		}
	}

	sqlLimit := limit
	if sqlLimit <= 0 {
		sqlLimit = -1
	}

	terms := []domain.TermStat{}
	for _, n := range names {
		x, err := s.schema(ctx, "terms", n)
		if err != nil {
			return nil, err
		}
		if _, err := s.db.ExecContext(ctx, x.vocabDDL()); err != nil {
			return nil, domain.NewStorageError("terms", n, err)
		}
		rows, err := s.db.QueryContext(ctx,
			"SELECT term, doc, cnt FROM "+x.vocabTable()+" WHERE cnt >= ? ORDER BY cnt DESC, term LIMIT ?",
			minFrequency, sqlLimit)
		if err != nil {
			return nil, domain.NewStorageError("terms", n, err)
		}
		for rows.Next() {
			t := domain.TermStat{Index: n}
			if err := rows.Scan(&t.Term, &t.Documents, &t.Count); err != nil {
				rows.Close()
				return nil, domain.NewStorageError("terms", n, err)
			}
			terms = append(terms, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, domain.NewStorageError("terms", n, err)
		}
	}

	sort.SliceStable(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
	if limit > 0 && len(terms) > limit {
		terms = terms[:limit]
	}
	return terms, nil
}
