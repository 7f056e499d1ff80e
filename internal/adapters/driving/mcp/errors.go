// Package mcp provides an MCP (Model Context Protocol) server adapter for yetisearch.
// It lets AI assistants search indices and add documents to them.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")

// ErrMissingCatalog is returned by index tools when no catalog is configured.
var ErrMissingCatalog = errors.New("mcp: index catalog is not configured")
