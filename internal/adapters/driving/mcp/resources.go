package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for yetisearch resources.
	uriScheme = "yetisearch://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing indices.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "indices",
		Name:        "indices",
		Description: "Registered indices with their fields and schema strategy",
		MIMEType:    "application/json",
	}, s.handleIndicesResource)

	// Template for a stored document.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "indices/{index}/documents/{documentId}",
		Name:        "document",
		Description: "A stored document with its content and metadata",
		MIMEType:    "application/json",
	}, s.handleDocumentResource)
}

// handleIndicesResource returns every registered index.
func (s *Server) handleIndicesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Catalog == nil {
		return jsonResource(req.Params.URI, []domain.IndexInfo{})
	}

	infos, err := s.ports.Catalog.ListIndices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing indices: %w", err)
	}
	if infos == nil {
		infos = []domain.IndexInfo{}
	}
	return jsonResource(req.Params.URI, infos)
}

// handleDocumentResource returns one stored document.
func (s *Server) handleDocumentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Catalog == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	index, id := parseDocumentURI(req.Params.URI)
	if index == "" || id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Catalog.Get(ctx, index, id)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrIndexNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return jsonResource(req.Params.URI, doc)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// parseDocumentURI splits yetisearch://indices/{index}/documents/{documentId}.
// Document ids may contain slashes; index names cannot.
func parseDocumentURI(uri string) (index, id string) {
	const prefix = uriScheme + "indices/"
	const middle = "/documents/"

	rest, ok := strings.CutPrefix(uri, prefix)
	if !ok {
		return "", ""
	}
	index, id, ok = strings.Cut(rest, middle)
	if !ok || strings.Contains(index, "/") {
		return "", ""
	}
	return index, id
}
