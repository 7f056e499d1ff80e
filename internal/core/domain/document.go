package domain

import (
	"fmt"
	"strings"
)

// DefaultDocumentType is assigned to documents that do not declare a type.
const DefaultDocumentType = "default"

// ChunkIDSeparator joins a parent id and a chunk ordinal.
const ChunkIDSeparator = "#chunk"

// Metadata keys written by the indexer on chunked documents.
const (
	MetaParentID   = "parent_id"
	MetaChunkIndex = "chunk_index"
	MetaIsChunk    = "is_chunk"
	MetaChunked    = "chunked"
	MetaChunks     = "chunks"
	MetaRoute      = "route"
)

// Document is the unit stored in an index.
// Content holds field values keyed by field name; only fields declared in
// the index field configuration are stored or indexed.
type Document struct {
	// ID is unique within an index.
	ID string `json:"id"`

	// Content maps field names to string or scalar values.
	Content map[string]any `json:"content"`

	// Metadata is stored verbatim and never tokenised.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Language is passed to the analyzer.
	Language string `json:"language,omitempty"`

	// Type defaults to DefaultDocumentType.
	Type string `json:"type,omitempty"`

	// Timestamp is the creation or ingestion time in unix seconds.
	Timestamp int64 `json:"timestamp,omitempty"`

	// IndexedAt is the wall time at which the indexer processed the document.
	IndexedAt int64 `json:"indexed_at,omitempty"`

	// Geo is an optional single coordinate.
	Geo *GeoPoint `json:"geo,omitempty"`

	// GeoBounds is an optional area for region documents.
	GeoBounds *GeoBounds `json:"geo_bounds,omitempty"`

	// Searchable holds analyzed text per field. When empty the storage
	// engine indexes the raw field text instead.
	Searchable map[string]string `json:"-"`

	// SearchText is the boost-weighted token stream across all indexed
	// fields, used by single-column full-text schemas.
	SearchText string `json:"-"`
}

// ChunkID returns the deterministic id of the chunk at index i of parentID.
func ChunkID(parentID string, i int) string {
	return fmt.Sprintf("%s%s%d", parentID, ChunkIDSeparator, i)
}

// IsChunk reports whether the document was produced by chunking a parent.
func (d *Document) IsChunk() bool {
	if d.Metadata == nil {
		return false
	}
	v, _ := d.Metadata[MetaIsChunk].(bool)
	return v
}

// ParentID returns the parent id of a chunk document, or "".
func (d *Document) ParentID() string {
	if d.Metadata == nil {
		return ""
	}
	v, _ := d.Metadata[MetaParentID].(string)
	return v
}

// HasGeo reports whether the document carries any spatial information.
func (d *Document) HasGeo() bool {
	return d.Geo != nil || d.GeoBounds != nil
}

// FieldText renders a content value as text. Non-scalar values yield "".
func (d *Document) FieldText(field string) (string, bool) {
	v, ok := d.Content[field]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []string:
		return strings.Join(t, " "), true
	case fmt.Stringer:
		return t.String(), true
	case bool, int, int32, int64, float32, float64, uint, uint32, uint64:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}

// Clone returns a copy with independent Content and Metadata maps.
func (d *Document) Clone() Document {
	c := *d
	c.Content = make(map[string]any, len(d.Content))
	for k, v := range d.Content {
		c.Content[k] = v
	}
	if d.Metadata != nil {
		c.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	if d.Searchable != nil {
		c.Searchable = make(map[string]string, len(d.Searchable))
		for k, v := range d.Searchable {
			c.Searchable[k] = v
		}
	}
	if d.Geo != nil {
		g := *d.Geo
		c.Geo = &g
	}
	if d.GeoBounds != nil {
		b := *d.GeoBounds
		c.GeoBounds = &b
	}
	return c
}

// FieldConfig describes how a single field is handled.
type FieldConfig struct {
	// Boost weights the field's contribution to relevance. Must be >= 0.
	Boost float64 `json:"boost" toml:"boost"`

	// Store keeps the raw value in the document table.
	Store bool `json:"store" toml:"store"`

	// Index makes the field searchable.
	Index bool `json:"index" toml:"index"`
}

// DefaultFieldConfig returns boost 1, stored and indexed.
func DefaultFieldConfig() FieldConfig {
	return FieldConfig{Boost: 1, Store: true, Index: true}
}

// FieldSet is the per-index field configuration keyed by field name.
type FieldSet map[string]FieldConfig

// Names returns field names in a stable order: descending boost, then name.
// Full-text column order and bm25 weight order both follow it.
func (fs FieldSet) Names() []string {
	names := make([]string, 0, len(fs))
	for n := range fs {
		names = append(names, n)
	}
	sortFieldNames(names, fs)
	return names
}

// IndexedNames returns the names of fields with Index set, in Names order.
func (fs FieldSet) IndexedNames() []string {
	var out []string
	for _, n := range fs.Names() {
		if fs[n].Index {
			out = append(out, n)
		}
	}
	return out
}

// Validate checks every field name and boost.
func (fs FieldSet) Validate() error {
	if len(fs) == 0 {
		return NewValidationError("fields", "at least one field is required", ErrInvalidInput)
	}
	for name, cfg := range fs {
		if !IsValidIdentifier(name) {
			return NewValidationError("fields", fmt.Sprintf("invalid field name %q", name), ErrInvalidInput)
		}
		if cfg.Boost < 0 {
			return NewValidationError("fields", fmt.Sprintf("field %q has negative boost", name), ErrInvalidInput)
		}
	}
	return nil
}

func sortFieldNames(names []string, fs FieldSet) {
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && fieldLess(names[j], names[j-1], fs); j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
}

func fieldLess(a, b string, fs FieldSet) bool {
	if fs[a].Boost != fs[b].Boost {
		return fs[a].Boost > fs[b].Boost
	}
	return a < b
}
