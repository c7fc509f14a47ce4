package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unishare/unishare-sw/internal/config"
	"github.com/unishare/unishare-sw/internal/logger"
	"github.com/unishare/unishare-sw/internal/worker"
)

// version is set at link time.
var version = "dev"

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "unishare-sw",
	Short:         "Offline-first gateway for the UniShare web app",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.InitFromEnv(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if cfg.CacheVersion == "" {
			cfg.CacheVersion = worker.CacheVersion
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, cachesCmd, mcpCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
