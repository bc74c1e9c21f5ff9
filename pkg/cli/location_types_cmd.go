package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mdstore/internal/service/catalog"
)

func newLocationTypesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "location-types",
		Short: "List the location types stored in the catalog",
		Long: `List the location types stored in the catalog.

SQL and Redis stores remember every type they have stored, including types
whose targets were removed since. Memory stores list the types in use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return opts.withStore(ctx, nil, func(s *catalog.Store) error {
				types, err := s.LocationTypes(ctx)
				if err != nil {
					return err
				}
				if opts.json() {
					if types == nil {
						types = []string{}
					}
					return printJSON(cmd.OutOrStdout(), types)
				}
				for _, typ := range types {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), typ)
				}
				return nil
			})
		},
	}
}
