package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/fieldscout/internal/classifier"
	"github.com/hyperjump/fieldscout/internal/cli"
	"github.com/hyperjump/fieldscout/internal/knowledge"
)

func newKBCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Inspect the knowledge base",
	}
	cmd.AddCommand(newKBSearchCmd(opts), newKBShowCmd(opts), newKBCheckCmd(opts))
	return cmd
}

// withKnowledge loads only the knowledge base; these commands never touch the model.
func withKnowledge(opts *rootOptions, fn func(s *session, kb *knowledge.Base) error) error {
	s, err := opts.open(true)
	if err != nil {
		return err
	}
	defer s.close()
	kb, err := knowledge.LoadFile(s.cfg.Advisor.KnowledgePath)
	if err != nil {
		return err
	}
	defer kb.Close()
	return fn(s, kb)
}

func newKBSearchCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Full-text search over knowledge entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := joinArgs(args)
			if query == "" {
				return fmt.Errorf("query is empty")
			}
			return withKnowledge(opts, func(s *session, kb *knowledge.Base) error {
				hits, err := kb.Search(context.Background(), query, limit)
				if err != nil {
					return err
				}
				suggestion := ""
				if len(hits) == 0 {
					if sug := kb.Suggest(query); !strings.EqualFold(sug, query) {
						suggestion = sug
					}
				}
				return cli.WriteKnowledgeHits(cmd.OutOrStdout(), query, hits, suggestion, s.format)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum entries")
	return cmd
}

func newKBShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <entry-id>",
		Short: "Show one knowledge entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKnowledge(opts, func(s *session, kb *knowledge.Base) error {
				e, ok := kb.Get(args[0])
				if !ok {
					return fmt.Errorf("knowledge entry %s not found", args[0])
				}
				return cli.WriteEntry(cmd.OutOrStdout(), e, s.format)
			})
		},
	}
}

func newKBCheckCmd(opts *rootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare knowledge classes with the model labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKnowledge(opts, func(s *session, kb *knowledge.Base) error {
				labels, err := classifier.LoadLabels(s.cfg.Model.LabelsPath)
				if err != nil {
					return err
				}
				cov := kb.Validate(labels)
				out := cmd.OutOrStdout()
				if s.format == cli.OutputJSON {
					if err := cli.WriteJSON(out, map[string]interface{}{
						"entries":  kb.Len(),
						"labels":   len(labels),
						"coverage": cov,
						"ok":       cov.OK(),
					}); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(out, "%d entries across %d classes; model has %d labels\n",
						kb.Len(), len(kb.Classes()), len(labels))
					for _, c := range cov.UnknownClasses {
						fmt.Fprintf(out, "  unknown class (no such label): %s\n", c)
					}
					for _, l := range cov.UncoveredLabels {
						fmt.Fprintf(out, "  label without entries:         %s\n", l)
					}
					if cov.OK() {
						fmt.Fprintln(out, "OK: every label has knowledge entries")
					}
				}
				if strict && !cov.OK() {
					return fmt.Errorf("knowledge base does not cover the model labels")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when coverage is incomplete")
	return cmd
}
