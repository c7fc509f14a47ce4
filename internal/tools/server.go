package tools

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/unishare/unishare-sw/internal/cache"
)

// NewServer builds the MCP server exposing cache inspection tools.
func NewServer(storage cache.Storage, current, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"UniShare SW cache",
		version,
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)

	toolGenerations := mcp.NewTool("cache-generations",
		mcp.WithDescription(multiline(
			"Lists the cache generations held by the UniShare offline gateway",
			"- The generation owned by the running build is marked (current)",
			"- Older generations are removed when a new build activates",
		)),
	)
	s.AddTool(toolGenerations, CacheGenerationsHandler(storage, current))

	toolMatch := mcp.NewTool("cache-match",
		mcp.WithDescription(multiline(
			"Looks up a cached GET response by absolute URL",
			"\nUsage notes:",
			"- The URL must be the origin URL, e.g. https://unishare.example/dashboard",
			"- HTML pages are returned as Markdown with their title",
			"- This tool is read-only",
		)),
		mcp.WithString("url", mcp.Required(), mcp.Description("Absolute URL of the cached request")),
		mcp.WithString("generation", mcp.Description("Cache generation to search; defaults to the current one")),
	)
	s.AddTool(toolMatch, CacheMatchHandler(storage, current))
	return s
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }
