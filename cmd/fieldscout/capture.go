package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hyperjump/fieldscout/internal/cli"
	"github.com/hyperjump/fieldscout/internal/fileid"
	"github.com/hyperjump/fieldscout/internal/metrics"
	"github.com/hyperjump/fieldscout/internal/models"
	"github.com/hyperjump/fieldscout/internal/report"
	"github.com/hyperjump/fieldscout/internal/storage"
)

func newCaptureCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Register, list and analyze stored leaf photos",
	}
	cmd.AddCommand(
		newCaptureAddCmd(opts),
		newCaptureListCmd(opts),
		newCaptureShowCmd(opts),
		newCaptureDeleteCmd(opts),
		newCaptureAnalyzeCmd(opts),
		newCaptureImportCmd(opts),
	)
	return cmd
}

// registerCapture stores path as a capture under fieldID (may be empty).
func registerCapture(ctx context.Context, store storage.Storage, path, fieldID, source string) (*models.Capture, error) {
	uri, err := fileid.NormalizeURI(path)
	if err != nil {
		return nil, err
	}
	hash, err := fileid.HashFile(uri)
	if err != nil {
		return nil, err
	}
	c := &models.Capture{ID: uuid.NewString(), URI: uri, ContentHash: hash}
	if fieldID != "" {
		c.FieldID = &fieldID
	}
	if err := store.CreateCapture(ctx, c); err != nil {
		return nil, err
	}
	metrics.CapturesImported.WithLabelValues(source).Inc()
	return c, nil
}

func newCaptureAddCmd(opts *rootOptions) *cobra.Command {
	var fieldID string
	cmd := &cobra.Command{
		Use:   "add <image>...",
		Short: "Register image files as captures",
		Args:  cobra.MinimumNArgs(1),
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

			ctx := context.Background()
			var added []*models.Capture
			for _, path := range args {
				c, err := registerCapture(ctx, store, path, fieldID, "cli")
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				added = append(added, c)
			}
			return cli.WriteCaptures(cmd.OutOrStdout(), added, s.format)
		},
	}
	cmd.Flags().StringVar(&fieldID, "field", "", "field id to assign")
	return cmd
}

func newCaptureListCmd(opts *rootOptions) *cobra.Command {
	var (
		filter   storage.CaptureFilter
		pending  bool
		analyzed bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List captures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pending && analyzed {
				return errors.New("--pending and --analyzed are mutually exclusive")
			}
			if pending || analyzed {
				v := analyzed
				filter.Analyzed = &v
			}
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

			captures, err := store.ListCaptures(context.Background(), filter)
			if err != nil {
				return err
			}
			return cli.WriteCaptures(cmd.OutOrStdout(), captures, s.format)
		},
	}
	cmd.Flags().StringVar(&filter.FieldID, "field", "", "only captures in this field")
	cmd.Flags().StringVar(&filter.Class, "class", "", "only captures predicted as this class")
	cmd.Flags().BoolVar(&pending, "pending", false, "only captures not analyzed yet")
	cmd.Flags().BoolVar(&analyzed, "analyzed", false, "only analyzed captures")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum captures to list (0 = all)")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "captures to skip")
	return cmd
}

func newCaptureShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <capture-id>",
		Short: "Show one capture",
		Args:  cobra.ExactArgs(1),
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

			c, err := store.GetCapture(context.Background(), args[0])
			if err != nil {
				return err
			}
			return cli.WriteCapture(cmd.OutOrStdout(), c, s.format)
		},
	}
}

func newCaptureDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <capture-id>",
		Short: "Delete a capture and its advice history",
		Args:  cobra.ExactArgs(1),
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

			if err := store.DeleteCapture(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Capture deleted: %s\n", args[0])
			return nil
		},
	}
}

func newCaptureAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var (
		k       int
		pending bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [capture-id]...",
		Short: "Analyze stored captures and save their predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pending == (len(args) > 0) {
				return errors.New("give capture ids or --pending, not both")
			}
			s, err := opts.open(true)
			if err != nil {
				return err
			}
			defer s.close()
			comps, err := initializeComponents(s.cfg, s.logger)
			if err != nil {
				return err
			}
			defer comps.Close()

			ctx := context.Background()
			out := cmd.OutOrStdout()
			if pending {
				n, err := comps.Analyzer.AnalyzePending(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Analyzed %d pending captures\n", n)
				return nil
			}
			if !cmd.Flags().Changed("top-k") {
				k = s.cfg.Analysis.TopK
			}
			for _, id := range args {
				c, res, err := comps.Analyzer.AnalyzeCapture(ctx, id, k)
				if err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				if err := cli.WriteResult(out, c.URI, res, s.format); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 3, "number of predictions to show (default from config)")
	cmd.Flags().BoolVar(&pending, "pending", false, "analyze every capture without a prediction")
	return cmd
}

func newCaptureImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <workbook.xlsx>",
		Short: "Register captures listed in a spreadsheet (uri, field_id columns)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(true)
			if err != nil {
				return err
			}
			defer s.close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			rows, err := report.ReadCaptureImport(f)
			if err != nil {
				return err
			}

			store, err := openStorage(s.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			added, skipped := 0, 0
			for _, row := range rows {
				_, err := registerCapture(ctx, store, row.URI, row.FieldID, "import")
				switch {
				case err == nil:
					added++
				case errors.Is(err, storage.ErrDuplicate):
					skipped++
				default:
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", row.URI, err)
					skipped++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d captures (%d skipped)\n", added, skipped)
			return nil
		},
	}
}
