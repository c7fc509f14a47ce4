package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unishare/unishare-sw/internal/cache"
	"github.com/unishare/unishare-sw/internal/tools"
)

var cachesCmd = &cobra.Command{
	Use:   "caches",
	Short: "Inspect and manage cache generations",
}

var cachesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cache generations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		storage, err := openStorage(cfg, true)
		if err != nil {
			return err
		}
		defer storage.Close()
		names, err := storage.Keys()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tools.FormatGenerations(names, cfg.CacheVersion))
		return nil
	},
}

var cachesShowCmd = &cobra.Command{
	Use:   "show [generation]",
	Short: "List the entries of a generation, or render one with --url",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		generation := cfg.CacheVersion
		if len(args) == 1 {
			generation = args[0]
		}
		storage, err := openStorage(cfg, true)
		if err != nil {
			return err
		}
		defer storage.Close()
		out := cmd.OutOrStdout()

		if showURL != "" {
			key, resp, err := tools.Lookup(storage, generation, showURL)
			if errors.Is(err, cache.ErrNotFound) {
				return fmt.Errorf("not cached: %s", key)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, tools.FormatEntry(key, resp))
			return nil
		}

		ok, err := storage.Has(generation)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no cache generation %q", generation)
		}
		c, err := storage.Open(generation)
		if err != nil {
			return err
		}
		keys, err := c.Keys()
		if err != nil {
			return err
		}
		for _, key := range keys {
			resp, err := c.Match(key)
			if err != nil {
				fmt.Fprintf(out, "%s  error: %v\n", key, err)
				continue
			}
			fmt.Fprintln(out, tools.FormatEntryLine(key, resp))
		}
		return nil
	},
}

var cachesDeleteCmd = &cobra.Command{
	Use:   "delete <generation>",
	Short: "Delete a cache generation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		storage, err := openStorage(cfg, false)
		if err != nil {
			return err
		}
		defer storage.Close()
		deleted, err := storage.Delete(args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("no cache generation %q", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var showURL string

func init() {
	cachesShowCmd.Flags().StringVar(&showURL, "url", "", "render the entry cached for this absolute URL")
	cachesCmd.AddCommand(cachesListCmd, cachesShowCmd, cachesDeleteCmd)
}
