package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperjump/fieldscout/internal/knowledge"
	"github.com/hyperjump/fieldscout/internal/report"
	"github.com/hyperjump/fieldscout/internal/storage"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write reports (captures workbook, advice PDF)",
	}
	cmd.AddCommand(newExportCapturesCmd(opts), newExportAdviceCmd(opts))
	return cmd
}

func newExportCapturesCmd(opts *rootOptions) *cobra.Command {
	var (
		out    string
		filter storage.CaptureFilter
	)
	cmd := &cobra.Command{
		Use:   "captures",
		Short: "Export captures to an xlsx workbook",
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

			ctx := context.Background()
			captures, err := store.ListCaptures(ctx, filter)
			if err != nil {
				return err
			}
			fields, err := store.ListFields(ctx)
			if err != nil {
				return err
			}
			names := make(map[string]string, len(fields))
			for _, f := range fields {
				names[f.ID] = f.Name
			}
			if err := writeTo(out, func(f *os.File) error {
				return report.WriteCapturesWorkbook(f, captures, names)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d captures to %s\n", len(captures), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "captures.xlsx", "output file")
	cmd.Flags().StringVar(&filter.FieldID, "field", "", "only captures in this field")
	cmd.Flags().StringVar(&filter.Class, "class", "", "only captures predicted as this class")
	return cmd
}

func newExportAdviceCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "advice <advice-id>",
		Short: "Export one advice session as a PDF report",
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

			ctx := context.Background()
			advice, err := store.GetAdvice(ctx, args[0])
			if err != nil {
				return err
			}
			capture, err := store.GetCapture(ctx, advice.CaptureID)
			if err != nil {
				return err
			}
			sources := map[string]string{}
			if kb, err := knowledge.LoadFile(s.cfg.Advisor.KnowledgePath); err == nil {
				for _, id := range advice.SourceDocIDs {
					sources[id] = kb.TitleOf(id)
				}
				_ = kb.Close()
			}
			if out == "" {
				out = fmt.Sprintf("advice-%s.pdf", advice.ID)
			}
			rep := report.AdviceReport{Capture: capture, Advice: advice, Sources: sources}
			if err := writeTo(out, func(f *os.File) error { return report.WriteAdvicePDF(f, rep) }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default advice-<id>.pdf)")
	return cmd
}

// writeTo creates path and runs write on it, removing the file on failure.
func writeTo(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
