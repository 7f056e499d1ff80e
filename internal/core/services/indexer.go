package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
	"github.com/yetidevworks/yetisearch/internal/core/ports/driven"
	"github.com/yetidevworks/yetisearch/internal/core/ports/driving"
	"github.com/yetidevworks/yetisearch/internal/logger"
	"github.com/yetidevworks/yetisearch/internal/postprocessors/chunker"
)

// Ensure Indexer implements the interface.
var _ driving.IndexService = (*Indexer)(nil)

// chunkedField is the content field split into chunk documents.
const chunkedField = "content"

// Indexer turns application documents into storage rows for one index.
// Long content is split into chunk documents. With auto flush disabled,
// documents are buffered and written once batch size is reached.
type Indexer struct {
	index    string
	storage  driven.Storage
	analyzer driven.Analyzer
	cache    driven.QueryCache
	chunker  *chunker.Processor
	log      *zap.Logger

	fields    domain.FieldSet
	indexOpts domain.IndexOptions
	batchSize int
	autoFlush bool
	now       func() time.Time
	newID     func() string

	// mu guards pending and lastFlush. Flushes hold it while writing so
	// buffered documents reach storage in arrival order.
	mu        sync.Mutex
	pending   [][]*domain.Document
	lastFlush time.Time

	indexed, failed, chunks, flushes atomic.Int64
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithIndexerCache invalidates the index's cached results after every write.
func WithIndexerCache(cache driven.QueryCache) IndexerOption {
	return func(ix *Indexer) { ix.cache = cache }
}

// WithIndexOptions sets the schema used when Clear recreates the index.
func WithIndexOptions(opts domain.IndexOptions) IndexerOption {
	return func(ix *Indexer) { ix.indexOpts = opts }
}

// WithIndexerClock replaces the wall clock used for indexed_at.
func WithIndexerClock(now func() time.Time) IndexerOption {
	return func(ix *Indexer) {
		if now != nil {
			ix.now = now
		}
	}
}

// WithIDGenerator replaces the generator of ids for documents without one.
func WithIDGenerator(newID func() string) IndexerOption {
	return func(ix *Indexer) {
		if newID != nil {
			ix.newID = newID
		}
	}
}

// NewIndexer creates an indexer writing into the named index.
func NewIndexer(
	index string,
	storage driven.Storage,
	analyzer driven.Analyzer,
	cfg domain.IndexerSettings,
	opts ...IndexerOption,
) *Indexer {
	fields := cfg.Fields
	if len(fields) == 0 {
		fields = domain.DefaultFields()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = domain.DefaultBatchSize
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = domain.DefaultChunkSize
	}

	ix := &Indexer{
		index:     index,
		storage:   storage,
		analyzer:  analyzer,
		chunker:   chunker.New(chunker.WithChunkSize(chunkSize), chunker.WithOverlap(cfg.ChunkOverlap)),
		log:       logger.Named("indexer").With(zap.String("index", index)),
		fields:    fields,
		indexOpts: domain.IndexOptions{Fields: fields, Strategy: domain.StrategyExternal, MultiColumn: true, Spatial: true},
		batchSize: batchSize,
		autoFlush: cfg.AutoFlush,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(ix)
	}
	if len(ix.indexOpts.Fields) == 0 {
		ix.indexOpts.Fields = fields
	}
	return ix
}

// Index processes doc and writes it, or buffers it when auto flush is off.
func (ix *Indexer) Index(ctx context.Context, doc domain.Document) error {
	rows, err := ix.processDocument(doc)
	if err != nil {
		ix.failed.Add(1)
		return err
	}

	if ix.autoFlush {
		if err := ix.write(ctx, rows); err != nil {
			ix.failed.Add(1)
			return domain.NewIndexError(rows[0].ID, err)
		}
		ix.recordWritten(1, len(rows)-1)
		ix.invalidate(ctx)
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.pending = append(ix.pending, rows)
	if len(ix.pending) >= ix.batchSize {
		return ix.flushLocked(ctx)
	}
	return nil
}

// IndexBatch processes every document independently. Documents that fail
// processing or storage are reported per id; the rest are written.
func (ix *Indexer) IndexBatch(ctx context.Context, docs []domain.Document) (domain.BatchResult, error) {
	result := domain.BatchResult{Errors: make(map[string]error)}

	groups := make([][]*domain.Document, 0, len(docs))
	for i := range docs {
		rows, err := ix.processDocument(docs[i])
		if err != nil {
			result.Failed++
			result.Errors[batchKey(docs[i].ID, i)] = err
			ix.failed.Add(1)
			continue
		}
		groups = append(groups, rows)
	}

	if !ix.autoFlush {
		ix.mu.Lock()
		ix.pending = append(ix.pending, groups...)
		result.Indexed = len(groups)
		result.IDs = groupIDs(groups, nil)
		var err error
		if len(ix.pending) >= ix.batchSize {
			err = ix.flushLocked(ctx)
		}
		ix.mu.Unlock()
		return result, err
	}

	written, errs := ix.writeGroups(ctx, groups)
	result.Indexed = written
	result.IDs = groupIDs(groups, errs)
	for id, err := range errs {
		result.Failed++
		result.Errors[id] = err
	}
	if written > 0 {
		ix.invalidate(ctx)
	}

	ix.log.Info("batch indexed", zap.Int("indexed", result.Indexed), zap.Int("failed", result.Failed))
	return result, nil
}

// Update replaces an existing document and its chunks.
func (ix *Indexer) Update(ctx context.Context, doc domain.Document) error {
	if doc.ID == "" {
		return domain.NewIndexError("", domain.NewValidationError("update", "id is required", domain.ErrMissingID))
	}
	if err := ix.Flush(ctx); err != nil {
		return err
	}

	rows, err := ix.processDocument(doc)
	if err != nil {
		ix.failed.Add(1)
		return err
	}
	if err := ix.storage.Update(ctx, ix.index, doc.ID, rows[0]); err != nil {
		ix.failed.Add(1)
		return domain.NewIndexError(doc.ID, err)
	}
	if _, err := ix.storage.DeleteChunks(ctx, ix.index, doc.ID); err != nil {
		return domain.NewIndexError(doc.ID, err)
	}
	if len(rows) > 1 {
		if err := ix.storage.InsertBatch(ctx, ix.index, rows[1:]); err != nil {
			return domain.NewIndexError(doc.ID, err)
		}
	}

	ix.recordWritten(1, len(rows)-1)
	ix.invalidate(ctx)
	return nil
}

// Delete removes a document and its chunks.
func (ix *Indexer) Delete(ctx context.Context, id string) error {
	if id == "" {
		return domain.NewValidationError("delete", "id is required", domain.ErrMissingID)
	}
	if err := ix.Flush(ctx); err != nil {
		return err
	}
	if err := ix.storage.Delete(ctx, ix.index, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	ix.invalidate(ctx)
	return nil
}

// Flush writes buffered documents.
func (ix *Indexer) Flush(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.flushLocked(ctx)
}

func (ix *Indexer) flushLocked(ctx context.Context) error {
	if len(ix.pending) == 0 {
		return nil
	}
	groups := ix.pending
	ix.pending = nil

	written, errs := ix.writeGroups(ctx, groups)
	ix.flushes.Add(1)
	ix.lastFlush = ix.now()
	if written > 0 {
		ix.invalidate(ctx)
	}
	ix.log.Debug("batch flushed", zap.Int("written", written), zap.Int("failed", len(errs)))

	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, 0, len(errs))
	for _, err := range errs {
		joined = append(joined, err)
	}
	return errors.Join(joined...)
}

// writeGroups writes every group in one storage batch, falling back to
// one write per group when the batch fails so a bad document cannot sink
// the others.
func (ix *Indexer) writeGroups(ctx context.Context, groups [][]*domain.Document) (int, map[string]error) {
	if len(groups) == 0 {
		return 0, nil
	}

	err := ix.writeAll(ctx, groups)
	if err == nil {
		for _, g := range groups {
			ix.recordWritten(1, len(g)-1)
		}
		return len(groups), nil
	}
	if len(groups) == 1 {
		ix.failed.Add(1)
		return 0, map[string]error{groups[0][0].ID: domain.NewIndexError(groups[0][0].ID, err)}
	}
	ix.log.Warn("batch write failed, retrying per document", zap.Int("documents", len(groups)), zap.Error(err))

	written := 0
	errs := make(map[string]error)
	for _, g := range groups {
		if err := ix.write(ctx, g); err != nil {
			ix.failed.Add(1)
			errs[g[0].ID] = domain.NewIndexError(g[0].ID, err)
			continue
		}
		ix.recordWritten(1, len(g)-1)
		written++
	}
	return written, errs
}

func (ix *Indexer) writeAll(ctx context.Context, groups [][]*domain.Document) error {
	var all []*domain.Document
	for _, g := range groups {
		if _, err := ix.storage.DeleteChunks(ctx, ix.index, g[0].ID); err != nil {
			return err
		}
		all = append(all, g...)
	}
	return ix.storage.InsertBatch(ctx, ix.index, all)
}

// write stores a parent and its chunks, replacing chunks of an earlier version.
func (ix *Indexer) write(ctx context.Context, rows []*domain.Document) error {
	if _, err := ix.storage.DeleteChunks(ctx, ix.index, rows[0].ID); err != nil {
		return err
	}
	return ix.storage.InsertBatch(ctx, ix.index, rows)
}

// Optimize flushes the buffer, then compacts the index.
func (ix *Indexer) Optimize(ctx context.Context) error {
	if err := ix.Flush(ctx); err != nil {
		return err
	}
	return ix.storage.Optimize(ctx, ix.index)
}

// Discard empties the buffer without writing it and returns how many
// documents were dropped.
func (ix *Indexer) Discard() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := len(ix.pending)
	ix.pending = nil
	return n
}

// Clear discards the buffer, then drops and recreates the index empty
// with its current schema.
func (ix *Indexer) Clear(ctx context.Context) error {
	ix.mu.Lock()
	ix.pending = nil
	ix.mu.Unlock()

	opts := ix.indexOpts
	infos, err := ix.storage.ListIndices(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if info.Name == ix.index {
			opts = domain.IndexOptions{
				Fields:      info.Fields,
				Strategy:    info.Strategy,
				MultiColumn: info.MultiColumn,
				Spatial:     info.Spatial,
			}
			break
		}
	}

	if err := ix.storage.DropIndex(ctx, ix.index); err != nil {
		return err
	}
	if err := ix.storage.CreateIndex(ctx, ix.index, opts); err != nil {
		return err
	}
	ix.invalidate(ctx)
	ix.log.Info("index cleared")
	return nil
}

// Rebuild clears the index, writes docs and optimizes.
func (ix *Indexer) Rebuild(ctx context.Context, docs []domain.Document) (domain.BatchResult, error) {
	if err := ix.Clear(ctx); err != nil {
		return domain.BatchResult{}, err
	}
	result, err := ix.IndexBatch(ctx, docs)
	if err != nil {
		return result, err
	}
	if err := ix.Optimize(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// Stats returns indexer counters and storage statistics.
func (ix *Indexer) Stats(ctx context.Context) (domain.IndexerStats, error) {
	ix.mu.Lock()
	stats := domain.IndexerStats{
		Index:     ix.index,
		Pending:   len(ix.pending),
		LastFlush: ix.lastFlush,
	}
	ix.mu.Unlock()

	stats.Indexed = ix.indexed.Load()
	stats.Failed = ix.failed.Load()
	stats.Chunks = ix.chunks.Load()
	stats.Flushes = ix.flushes.Load()

	storage, err := ix.storage.GetIndexStats(ctx, ix.index)
	if err != nil {
		return stats, err
	}
	stats.Storage = storage
	return stats, nil
}

func (ix *Indexer) recordWritten(docs, chunks int) {
	ix.indexed.Add(int64(docs))
	ix.chunks.Add(int64(chunks))
}

func (ix *Indexer) invalidate(ctx context.Context) {
	if ix.cache == nil {
		return
	}
	if n := ix.cache.Invalidate(ctx, ix.index); n > 0 {
		ix.log.Debug("cached results invalidated", zap.Int("entries", n))
	}
}

// processDocument selects, analyzes and chunks doc. The parent is always
// the first returned row, followed by its chunk documents.
func (ix *Indexer) processDocument(doc domain.Document) ([]*domain.Document, error) {
	if doc.ID == "" {
		doc.ID = ix.newID()
	}
	if doc.Geo != nil && !doc.Geo.Valid() {
		return nil, domain.NewIndexError(doc.ID,
			domain.NewValidationError("index", "geo point is out of range", domain.ErrInvalidGeo))
	}
	if doc.GeoBounds != nil && !doc.GeoBounds.Valid() {
		return nil, domain.NewIndexError(doc.ID,
			domain.NewValidationError("index", "geo bounds are out of range", domain.ErrInvalidGeo))
	}

	now := ix.now()
	parent := doc.Clone()
	parent.Content = make(map[string]any, len(ix.fields))
	for name, cfg := range ix.fields {
		if v, ok := doc.Content[name]; ok && cfg.Store {
			parent.Content[name] = v
		}
	}
	if parent.Type == "" {
		parent.Type = domain.DefaultDocumentType
	}
	if parent.Timestamp == 0 {
		parent.Timestamp = now.Unix()
	}
	parent.IndexedAt = now.Unix()
	parent.Searchable, parent.SearchText = ix.analyze(doc.Content, doc.Language)

	text, ok := doc.Content[chunkedField].(string)
	if !ok || !ix.chunker.NeedsChunking(text) {
		return []*domain.Document{&parent}, nil
	}

	pieces := ix.chunker.Split(text)
	if parent.Metadata == nil {
		parent.Metadata = make(map[string]any, 2)
	}
	parent.Metadata[domain.MetaChunked] = true
	parent.Metadata[domain.MetaChunks] = len(pieces)

	rows := make([]*domain.Document, 0, len(pieces)+1)
	rows = append(rows, &parent)
	for i, piece := range pieces {
		c := parent.Clone()
		c.ID = domain.ChunkID(parent.ID, i)
		delete(c.Metadata, domain.MetaChunked)
		delete(c.Metadata, domain.MetaChunks)
		c.Metadata[domain.MetaParentID] = parent.ID
		c.Metadata[domain.MetaChunkIndex] = i
		c.Metadata[domain.MetaIsChunk] = true

		source := make(map[string]any, len(doc.Content))
		for k, v := range doc.Content {
			source[k] = v
		}
		source[chunkedField] = piece.Text
		if _, stored := c.Content[chunkedField]; stored {
			c.Content[chunkedField] = piece.Text
		}
		c.Searchable, c.SearchText = ix.analyze(source, doc.Language)
		rows = append(rows, &c)
	}
	return rows, nil
}

// analyze returns the analyzed text of every indexed field and the
// boost-weighted stream across them, where a field's tokens are repeated
// once per unit of boost.
func (ix *Indexer) analyze(content map[string]any, language string) (map[string]string, string) {
	doc := domain.Document{Content: content}
	searchable := make(map[string]string)
	var stream []string
	for _, name := range ix.fields.IndexedNames() {
		text, ok := doc.FieldText(name)
		if !ok || text == "" {
			continue
		}
		tokens := ix.analyzer.Analyze(text, language)
		if len(tokens) == 0 {
			continue
		}
		analyzed := strings.Join(tokens, " ")
		searchable[name] = analyzed
		for range boostRepeat(ix.fields[name].Boost) {
			stream = append(stream, analyzed)
		}
	}
	return searchable, strings.Join(stream, " ")
}

func boostRepeat(boost float64) int {
	if boost <= 0 {
		return 0
	}
	return max(1, int(math.Round(boost)))
}

// groupIDs returns the parent id of every group without an error.
func groupIDs(groups [][]*domain.Document, errs map[string]error) []string {
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		if _, failed := errs[g[0].ID]; !failed {
			ids = append(ids, g[0].ID)
		}
	}
	return ids
}

func batchKey(id string, i int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("#%d", i)
}
