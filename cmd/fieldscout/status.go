package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hyperjump/fieldscout/internal/cli"
	"github.com/hyperjump/fieldscout/internal/storage"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show database counts and disk usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(true)
			if err != nil {
				return err
			}
			defer s.close()
			store, err := openStorage(s.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(context.Background())
			if err != nil {
				return err
			}
			disk, err := storage.DiskUsageBytes(s.cfg.Storage.DatabasePath, s.cfg.Storage.DatabasePath+"-wal")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if s.format == cli.OutputJSON {
				return cli.WriteJSON(out, map[string]interface{}{
					"stats":            stats,
					"disk_usage_bytes": disk,
					"database_path":    s.cfg.Storage.DatabasePath,
					"model_version":    s.cfg.Model.Version,
				})
			}
			fmt.Fprintf(out, "Database:  %s (%s)\n", s.cfg.Storage.DatabasePath, formatSize(disk))
			fmt.Fprintf(out, "Fields:    %d\n", stats.Fields)
			fmt.Fprintf(out, "Captures:  %d (%d analyzed)\n", stats.Captures, stats.Analyzed)
			fmt.Fprintf(out, "Advice:    %d sessions\n", stats.AdviceSessions)
			if len(stats.ByClass) > 0 {
				classes := make([]string, 0, len(stats.ByClass))
				for c := range stats.ByClass {
					classes = append(classes, c)
				}
				sort.Slice(classes, func(i, j int) bool {
					if stats.ByClass[classes[i]] != stats.ByClass[classes[j]] {
						return stats.ByClass[classes[i]] > stats.ByClass[classes[j]]
					}
					return classes[i] < classes[j]
				})
				fmt.Fprintln(out, "By class:")
				for _, c := range classes {
					fmt.Fprintf(out, "  %-40s %d\n", c, stats.ByClass[c])
				}
			}
			return nil
		},
	}
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
