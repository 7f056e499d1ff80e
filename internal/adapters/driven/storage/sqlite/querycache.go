package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
	"github.com/yetidevworks/yetisearch/internal/core/ports/driven"
	"github.com/yetidevworks/yetisearch/internal/logger"
)

// purgeProbability is the chance that a Get also deletes expired rows.
const purgeProbability = 0.01

// evictionTarget is the share of max size kept after eviction.
const evictionTarget = 0.8

// signatureKeys are the search options that identify a cached result.
var signatureKeys = map[string]bool{
	"query":                      true,
	"filters":                    true,
	"limit":                      true,
	"offset":                     true,
	"sort":                       true,
	"language":                   true,
	"geoFilters":                 true,
	"field_weights":              true,
	"field_weight_candidate_cap": true,
	"fields":                     true,
	"fuzzy":                      true,
	"fuzziness":                  true,
	"boost":                      true,
	"unique_by_route":            true,
	"highlight":                  true,
}

// QueryCache persists search results in a table of the store's database.
// Persistence failures are logged and counted, never returned: a failing
// cache behaves as a miss.
type QueryCache struct {
	db      *sql.DB
	table   string
	log     *zap.Logger
	enabled bool
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	random  func() float64

	hits, misses, writes, evictions, errs atomic.Int64
}

var _ driven.QueryCache = (*QueryCache)(nil)

// CacheOption configures a QueryCache.
type CacheOption func(*QueryCache)

// WithCacheTable sets the cache table name.
func WithCacheTable(name string) CacheOption {
	return func(c *QueryCache) { c.table = name }
}

// WithCacheTTL sets the default entry lifetime.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *QueryCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheMaxSize bounds the number of rows.
func WithCacheMaxSize(n int) CacheOption {
	return func(c *QueryCache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithCacheEnabled turns the cache on or off.
func WithCacheEnabled(enabled bool) CacheOption {
	return func(c *QueryCache) { c.enabled = enabled }
}

// WithCacheClock replaces the wall clock.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *QueryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheRandom replaces the source deciding when to purge expired rows.
func WithCacheRandom(random func() float64) CacheOption {
	return func(c *QueryCache) {
		if random != nil {
			c.random = random
		}
	}
}

// QueryCache creates the result cache in the store's database.
func (s *Store) QueryCache(ctx context.Context, opts ...CacheOption) (*QueryCache, error) {
	return NewQueryCache(ctx, s.db, opts...)
}

// NewQueryCache creates the cache table and its indexes if needed. An
// unsafe table name fails with a ValidationError.
func NewQueryCache(ctx context.Context, db *sql.DB, opts ...CacheOption) (*QueryCache, error) {
	c := &QueryCache{
		db:      db,
		table:   domain.DefaultCacheTable,
		log:     logger.Named("cache"),
		enabled: true,
		ttl:     domain.DefaultCacheTTL * time.Second,
		maxSize: domain.DefaultCacheSize,
		now:     time.Now,
		random:  rand.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := domain.ValidateIdentifier("query cache", c.table); err != nil {
		return nil, err
	}

	t := quoteIdent(c.table)
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + t + ` (
			cache_key TEXT PRIMARY KEY,
			index_name TEXT NOT NULL,
			query_hash TEXT NOT NULL,
			result_data TEXT NOT NULL,
			result_count INTEGER NOT NULL DEFAULT 0,
			expires_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			hit_count INTEGER NOT NULL DEFAULT 0,
			last_accessed INTEGER NOT NULL
		)`,
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(expires_at)", quoteIdent("idx_"+c.table+"_expires"), t),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(index_name)", quoteIdent("idx_"+c.table+"_index"), t),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(last_accessed)", quoteIdent("idx_"+c.table+"_accessed"), t),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating query cache table: %w", err)
		}
	}
	return c, nil
}

// Enabled reports whether the cache serves and stores results.
func (c *QueryCache) Enabled() bool { return c.enabled }

// Get returns a fresh cached result, or nil on miss, bypass or failure.
func (c *QueryCache) Get(ctx context.Context, index string, opts domain.SearchOptions) *domain.SearchResults {
	if !c.enabled || opts.BypassCache {
		return nil
	}
	if c.random() < purgeProbability {
		c.purgeExpired(ctx)
	}

	hash, err := Signature(opts)
	if err != nil {
		c.fail("signature", err)
		return nil
	}
	key := cacheKey(index, hash)
	now := c.now().UnixMilli()

	var data string
	err = c.db.QueryRowContext(ctx,
		"SELECT result_data FROM "+quoteIdent(c.table)+" WHERE cache_key = ? AND expires_at > ?", key, now).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		c.misses.Add(1)
		return nil
	}
	if err != nil {
		c.fail("get", err)
		c.misses.Add(1)
		return nil
	}

	var results domain.SearchResults
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.fail("decode", err)
		c.misses.Add(1)
		return nil
	}

	_, err = c.db.ExecContext(ctx,
		"UPDATE "+quoteIdent(c.table)+" SET hit_count = hit_count + 1, last_accessed = ? WHERE cache_key = ?", now, key)
	if err != nil {
		c.fail("touch", err)
	}

	c.hits.Add(1)
	results.Cached = true
	return &results
}

// Set stores results, evicting least-recently-accessed rows first when
// the table is full. A ttlSeconds of zero uses the default lifetime.
func (c *QueryCache) Set(ctx context.Context, index string, opts domain.SearchOptions, results *domain.SearchResults, ttlSeconds int) {
	if !c.enabled || results == nil {
		return
	}
	hash, err := Signature(opts)
	if err != nil {
		c.fail("signature", err)
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		c.fail("encode", err)
		return
	}

	ttl := c.ttl
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	now := c.now()
	t := quoteIdent(c.table)

	err = runTx(ctx, c.db, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&count); err != nil {
			return err
		}
		if count >= c.maxSize {
			excess := count - int(float64(c.maxSize)*evictionTarget)
			res, err := tx.ExecContext(ctx, fmt.Sprintf(
				"DELETE FROM %s WHERE cache_key IN (SELECT cache_key FROM %s ORDER BY last_accessed ASC, created_at ASC LIMIT ?)",
				t, t), excess)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			c.evictions.Add(n)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO `+t+`
				(cache_key, index_name, query_hash, result_data, result_count, expires_at, created_at, hit_count, last_accessed)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		`, cacheKey(index, hash), index, hash, string(data), results.Total,
			now.Add(ttl).UnixMilli(), now.UnixMilli(), now.UnixMilli())
		return err
	})
	if err != nil {
		c.fail("set", err)
		return
	}
	c.writes.Add(1)
}

// Invalidate removes every entry of an index.
func (c *QueryCache) Invalidate(ctx context.Context, index string) int {
	return c.delete(ctx, "invalidate", "WHERE index_name = ?", index)
}

// InvalidateByQuery removes entries of an index whose signature hash
// contains pattern.
func (c *QueryCache) InvalidateByQuery(ctx context.Context, index, pattern string) int {
	return c.delete(ctx, "invalidate by query", "WHERE index_name = ? AND instr(query_hash, ?) > 0", index, pattern)
}

// Clear removes every entry.
func (c *QueryCache) Clear(ctx context.Context) int {
	return c.delete(ctx, "clear", "")
}

// Stats returns counters and table aggregates over live entries.
func (c *QueryCache) Stats(ctx context.Context) domain.CacheStats {
	stats := domain.CacheStats{
		Enabled:   c.enabled,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Writes:    c.writes.Load(),
		Evictions: c.evictions.Load(),
	}
	if lookups := stats.Hits + stats.Misses; lookups > 0 {
		stats.HitRate = float64(stats.Hits) / float64(lookups) * 100
	}

	now := c.now().UnixMilli()
	var avgAgeMS float64
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(hit_count), 0), COALESCE(AVG(? - created_at), 0)
		FROM `+quoteIdent(c.table)+` WHERE expires_at > ?
	`, now, now).Scan(&stats.Entries, &stats.AvgHits, &avgAgeMS)
	if err != nil {
		c.fail("stats", err)
	}
	stats.AvgAgeSecs = avgAgeMS / 1000
	stats.Errors = c.errs.Load()
	return stats
}

func (c *QueryCache) delete(ctx context.Context, op, where string, args ...any) int {
	res, err := c.db.ExecContext(ctx, "DELETE FROM "+quoteIdent(c.table)+" "+where, args...)
	if err != nil {
		c.fail(op, err)
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}

func (c *QueryCache) purgeExpired(ctx context.Context) {
	n := c.delete(ctx, "purge", "WHERE expires_at <= ?", c.now().UnixMilli())
	if n > 0 {
		c.log.Debug("expired cache entries purged", zap.Int("rows", n))
	}
}

func (c *QueryCache) fail(op string, err error) {
	c.errs.Add(1)
	c.log.Warn("query cache failure", zap.Error(domain.NewCacheError(op, err)))
}

// Signature returns the hex SHA-256 of the query-relevant options,
// serialised with sorted keys so that equal options hash equally.
func Signature(opts domain.SearchOptions) (string, error) {
	raw, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return "", err
	}
	relevant := make(map[string]any, len(all))
	for k, v := range all {
		if signatureKeys[k] {
			relevant[k] = v
		}
	}
	canonical, err := json.Marshal(relevant)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func cacheKey(index, hash string) string {
	return index + ":" + hash
}
