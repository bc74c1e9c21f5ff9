package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mdstore/internal/domain"
	"mdstore/internal/service/catalog"
)

func newColumnCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "column",
		Short: "Manage columns",
	}
	cmd.AddCommand(newColumnAddCmd(opts))
	cmd.AddCommand(newColumnListCmd(opts))
	cmd.AddCommand(newColumnRmCmd(opts))
	return cmd
}

func newColumnAddCmd(opts *rootOptions) *cobra.Command {
	var (
		description string
		index       int
		loc         locationFlags
	)
	cmd := &cobra.Command{
		Use:     "add <table> <name>",
		Short:   "Add a column to a table",
		Example: `  mdstore column add sales.orders amount --index 3`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			location := loc.location()
			if cmd.Flags().Changed("index") {
				location.Set(domain.LocationIndexKey, strconv.Itoa(index))
			}
			return opts.withStore(ctx, nil, func(s *catalog.Store) error {
				table, err := resolveTable(ctx, s, args[0])
				if err != nil {
					return err
				}
				col, err := s.AddColumn(ctx, table.ID(), args[1], description, location)
				if err != nil {
					return err
				}
				return opts.printTarget(cmd.OutOrStdout(), col)
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description")
	cmd.Flags().IntVar(&index, "index", 0, "Position of the column in its table")
	loc.register(cmd)
	return cmd
}

func newColumnListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <table>",
		Short: "List the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withStore(ctx, nil, func(s *catalog.Store) error {
				table, err := resolveTable(ctx, s, args[0])
				if err != nil {
					return err
				}
				cols, err := s.Columns(ctx, table.ID())
				if err != nil {
					return err
				}
				return opts.printTargets(cmd.OutOrStdout(), cols)
			})
		},
	}
}

func newColumnRmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <column>",
		Short: "Remove a column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withStore(ctx, nil, func(s *catalog.Store) error {
				col, err := resolveColumn(ctx, s, args[0])
				if err != nil {
					return err
				}
				if err := s.RemoveColumn(ctx, col.ID()); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Removed column %s (%d)\n", col.Name(), col.ID())
				return nil
			})
		},
	}
}
