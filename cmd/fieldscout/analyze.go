package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/fieldscout/internal/cli"
	"github.com/hyperjump/fieldscout/internal/imageprep"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "analyze <image>...",
		Short: "Classify leaf photos without storing them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if !cmd.Flags().Changed("top-k") {
				k = s.cfg.Analysis.TopK
			}
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				res, err := comps.Analyzer.Analyze(context.Background(), imageprep.FileSource(path), k)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed++
					continue
				}
				if err := cli.WriteResult(out, path, res, s.format); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d images could not be analyzed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 3, "number of predictions to show (default from config)")
	return cmd
}
