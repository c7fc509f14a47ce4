package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/unishare/unishare-sw/internal/logger"
	"github.com/unishare/unishare-sw/internal/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve cache inspection tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		storage, err := openStorage(cfg, true)
		if err != nil {
			return err
		}
		defer storage.Close()
		s := tools.NewServer(storage, cfg.CacheVersion, version)
		logger.Infof("Starting MCP server on stdio")
		return server.ServeStdio(s)
	},
}
