package tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/unishare/unishare-sw/internal/cache"
)

// CacheMatchHandler returns the MCP tool handler for the "cache-match" tool.
func CacheMatchHandler(storage cache.Storage, current string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		url, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		generation := req.GetString("generation", current)

		key, resp, err := Lookup(storage, generation, url)
		if errors.Is(err, cache.ErrNotFound) {
			return mcp.NewToolResultText("Not cached: " + key.String()), nil
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(FormatEntry(key, resp)), nil
	}
}
