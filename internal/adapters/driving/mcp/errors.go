// Package mcp provides an MCP (Model Context Protocol) server adapter for
// sercha-mirror. It lets assistants and orchestrators start, pause, resume,
// inspect and reindex sync units.
package mcp

import "errors"

// ErrMissingSyncController is returned when the sync controller is not provided.
var ErrMissingSyncController = errors.New("mcp: sync controller is required")
