package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/unishare/unishare-sw/internal/cache"
)

// CacheGenerationsHandler returns the MCP tool handler for the "cache-generations" tool.
func CacheGenerationsHandler(storage cache.Storage, current string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		names, err := storage.Keys()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(FormatGenerations(names, current)), nil
	}
}
