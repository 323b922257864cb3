package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hyperjump/fieldscout/internal/cli"
	"github.com/hyperjump/fieldscout/internal/models"
)

func newFieldCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "field",
		Short: "Manage fields (plots captures belong to)",
	}
	cmd.AddCommand(newFieldAddCmd(opts), newFieldListCmd(opts), newFieldDeleteCmd(opts))
	return cmd
}

func newFieldAddCmd(opts *rootOptions) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "add <name>...",
		Short: "Create a field",
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

			f := &models.Field{ID: uuid.NewString(), Name: joinArgs(args), Notes: notes}
			if err := store.CreateField(context.Background(), f); err != nil {
				return err
			}
			return cli.WriteFields(cmd.OutOrStdout(), []*models.Field{f}, s.format)
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	return cmd
}

func newFieldListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List fields",
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

			fields, err := store.ListFields(context.Background())
			if err != nil {
				return err
			}
			return cli.WriteFields(cmd.OutOrStdout(), fields, s.format)
		},
	}
}

func newFieldDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <field-id>",
		Short: "Delete a field; its captures are kept unassigned",
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

			if err := store.DeleteField(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Field deleted: %s\n", args[0])
			return nil
		},
	}
}
