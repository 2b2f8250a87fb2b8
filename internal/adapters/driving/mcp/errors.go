// Package mcp provides an MCP (Model Context Protocol) server adapter for Keepsake.
// It lets AI assistants search the local store, inspect ingestion runs and
// drive the plan lifecycle: create, confirm with the plan hash, cancel.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")
