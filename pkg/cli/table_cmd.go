package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mdstore/internal/service/catalog"
)

func newTableCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Manage tables",
	}
	cmd.AddCommand(newTableAddCmd(opts))
	cmd.AddCommand(newTableListCmd(opts))
	cmd.AddCommand(newTableRmCmd(opts))
	return cmd
}

func newTableAddCmd(opts *rootOptions) *cobra.Command {
	var (
		description string
		loc         locationFlags
	)
	cmd := &cobra.Command{
		Use:     "add <schema> <name>",
		Short:   "Add a table to a schema",
		Example: `  mdstore table add sales orders --type csv --location /data/sales/orders.csv`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withStore(ctx, nil, func(s *catalog.Store) error {
				schema, err := resolveSchema(ctx, s, args[0])
				if err != nil {
					return err
				}
				table, err := s.AddTable(ctx, schema.ID(), args[1], description, loc.location())
				if err != nil {
					return err
				}
				return opts.printTarget(cmd.OutOrStdout(), table)
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description")
	loc.register(cmd)
	return cmd
}

func newTableListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <schema>",
		Short: "List the tables of a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withStore(ctx, nil, func(s *catalog.Store) error {
				schema, err := resolveSchema(ctx, s, args[0])
				if err != nil {
					return err
				}
				tables, err := s.Tables(ctx, schema.ID())
				if err != nil {
					return err
				}
				return opts.printTargets(cmd.OutOrStdout(), tables)
			})
		},
	}
}

func newTableRmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <table>",
		Short: "Remove a table with its columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withStore(ctx, nil, func(s *catalog.Store) error {
				table, err := resolveTable(ctx, s, args[0])
				if err != nil {
					return err
				}
				if err := s.RemoveTable(ctx, table.ID()); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Removed table %s (%d)\n", table.Name(), table.ID())
				return nil
			})
		},
	}
}
