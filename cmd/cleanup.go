package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/genx3d/genx3d/internal/modelstore"
)

var cleanupMaxAge time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete generated model files older than a given age",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("cleanup"); err != nil {
			return err
		}
		store, err := modelstore.New(cfg.Models.Dir, cfg.Models.URLPrefix)
		if err != nil {
			return err
		}

		maxAge := cleanupMaxAge
		if maxAge == 0 {
			maxAge = time.Duration(cfg.Cleanup.MaxAgeHours) * time.Hour
		}

		stats, err := store.Sweep(maxAge)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, deleted %d (%d bytes freed), %d errors\n",
			stats.Scanned, stats.Deleted, stats.Freed, stats.Errors)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupMaxAge, "max-age", 0, "delete files older than this (default from config; negative deletes all)")
	rootCmd.AddCommand(cleanupCmd)
}
