package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/fieldscout/internal/advisor"
	"github.com/hyperjump/fieldscout/internal/cli"
)

func newAdviseCmd(opts *rootOptions) *cobra.Command {
	var analyzeFirst bool
	cmd := &cobra.Command{
		Use:   "advise <capture-id> [question...]",
		Short: "Generate advice for an analyzed capture",
		Long: "Generate advice for a capture from its predicted class and the knowledge base.\n" +
			"Without a question the default \"What should I do now?\" is asked.",
		Args: cobra.MinimumNArgs(1),
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

			ctx := context.Background()
			id, question := args[0], joinArgs(args[1:])
			session, err := comps.Advisor.Advise(ctx, id, question)
			if errors.Is(err, advisor.ErrNoPrediction) && analyzeFirst {
				if _, _, err = comps.Analyzer.AnalyzeCapture(ctx, id, s.cfg.Analysis.TopK); err != nil {
					return fmt.Errorf("analyze %s: %w", id, err)
				}
				session, err = comps.Advisor.Advise(ctx, id, question)
			}
			if errors.Is(err, advisor.ErrNoPrediction) {
				return fmt.Errorf("%w (run 'fieldscout capture analyze %s' or pass --analyze)", err, id)
			}
			if err != nil {
				return err
			}
			return cli.WriteAdvice(cmd.OutOrStdout(), session, comps.Knowledge.TitleOf, s.format)
		},
	}
	cmd.Flags().BoolVar(&analyzeFirst, "analyze", false, "analyze the capture first if it has no prediction")
	return cmd
}

func newAdviceCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advice",
		Short: "Browse stored advice",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list <capture-id>",
		Short: "List advice sessions of a capture, newest first",
		Args:  cobra.ExactArgs(1),
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

			sessions, err := comps.Advisor.History(context.Background(), args[0])
			if err != nil {
				return err
			}
			return cli.WriteAdviceHistory(cmd.OutOrStdout(), sessions, comps.Knowledge.TitleOf, s.format)
		},
	})
	return cmd
}
