package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mdstore/internal/domain"
	"mdstore/internal/service/catalog"
)

func newSchemaCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage schemas",
	}
	cmd.AddCommand(newSchemaAddCmd(opts))
	cmd.AddCommand(newSchemaListCmd(opts))
	cmd.AddCommand(newSchemaRmCmd(opts))
	cmd.AddCommand(newSchemaShowCmd(opts))
	return cmd
}

func newSchemaAddCmd(opts *rootOptions) *cobra.Command {
	var (
		description string
		loc         locationFlags
	)
	cmd := &cobra.Command{
		Use:     "add <name>",
		Short:   "Add a schema",
		Example: `  mdstore schema add sales --type csv --location /data/sales`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withStore(ctx, nil, func(s *catalog.Store) error {
				schema, err := s.AddSchema(ctx, args[0], description, loc.location())
				if err != nil {
					return err
				}
				return opts.printTarget(cmd.OutOrStdout(), schema)
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description")
	loc.register(cmd)
	return cmd
}

func newSchemaListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(cmd.Context(), nil, func(s *catalog.Store) error {
				schemas, err := s.Schemas(cmd.Context())
				if err != nil {
					return err
				}
				return opts.printTargets(cmd.OutOrStdout(), schemas)
			})
		},
	}
}

func newSchemaRmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <schema>",
		Short: "Remove a schema with all of its tables and columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withStore(ctx, nil, func(s *catalog.Store) error {
				schema, err := resolveSchema(ctx, s, args[0])
				if err != nil {
					return err
				}
				if err := s.RemoveSchema(ctx, schema.ID()); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Removed schema %s (%d)\n", schema.Name(), schema.ID())
				return nil
			})
		},
	}
}

// schemaTree is the JSON form of `schema show`.
type schemaTree struct {
	targetJSON
	Tables []tableTree `json:"tables"`
}

type tableTree struct {
	targetJSON
	Columns []targetJSON `json:"columns"`
}

func newSchemaShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <schema>",
		Short: "Show a schema with its tables and columns",
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

				tree := schemaTree{targetJSON: toTargetJSON(schema), Tables: []tableTree{}}
				all := []*domain.Target{schema}
				for _, t := range tables {
					cols, err := s.Columns(ctx, t.ID())
					if err != nil {
						return err
					}
					tt := tableTree{targetJSON: toTargetJSON(t), Columns: []targetJSON{}}
					for _, c := range cols {
						tt.Columns = append(tt.Columns, toTargetJSON(c))
					}
					tree.Tables = append(tree.Tables, tt)
					all = append(all, t)
					all = append(all, cols...)
				}
				if opts.json() {
					return printJSON(cmd.OutOrStdout(), tree)
				}
				return opts.printTargets(cmd.OutOrStdout(), all)
			})
		},
	}
}
