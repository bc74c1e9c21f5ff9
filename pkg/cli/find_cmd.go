package cli

import (
	"context"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"mdstore/internal/domain"
	"mdstore/internal/service/catalog"
)

func newFindCmd(opts *rootOptions) *cobra.Command {
	var (
		kind   string
		unique bool
	)
	cmd := &cobra.Command{
		Use:   "find <name>",
		Short: "Find targets by name anywhere in the catalog",
		Long: `Find schemas, tables and columns by name. A name containing '*', '?' or
'[' is matched as a glob pattern.`,
		Example: `  mdstore find orders --kind table
  mdstore find 'cust*' -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kinds []domain.TargetKind
			if kind != "" {
				k, err := domain.ParseTargetKind(kind)
				if err != nil {
					return err
				}
				kinds = []domain.TargetKind{k}
			} else {
				kinds = []domain.TargetKind{domain.KindSchema, domain.KindTable, domain.KindColumn}
			}
			name := args[0]

			return opts.withStore(cmd.Context(), nil, func(s *catalog.Store) error {
				matches, err := findTargets(cmd.Context(), s, name, kinds)
				if err != nil {
					return err
				}
				if unique {
					switch len(matches) {
					case 0:
						return domain.ErrNotFound("no target named %q", name)
					case 1:
					default:
						return &domain.AmbiguousNameError{Kind: matches[0].Kind(), Name: name, Count: len(matches)}
					}
				}
				return opts.printTargets(cmd.OutOrStdout(), matches)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Restrict to one kind: schema, table or column")
	cmd.Flags().BoolVar(&unique, "unique", false, "Fail unless exactly one target matches")
	return cmd
}

func isPattern(name string) bool {
	return strings.ContainsAny(name, "*?[")
}

func findTargets(ctx context.Context, s *catalog.Store, name string, kinds []domain.TargetKind) ([]*domain.Target, error) {
	want := make(map[domain.TargetKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	if !isPattern(name) {
		lookups := []struct {
			kind domain.TargetKind
			find func(context.Context, string) ([]*domain.Target, error)
		}{
			{domain.KindSchema, s.SchemasByName},
			{domain.KindTable, s.FindTablesByName},
			{domain.KindColumn, s.FindColumnsByName},
		}
		var out []*domain.Target
		for _, l := range lookups {
			if !want[l.kind] {
				continue
			}
			found, err := l.find(ctx, name)
			if err != nil {
				return nil, err
			}
			out = append(out, found...)
		}
		return out, nil
	}

	if _, err := path.Match(name, ""); err != nil {
		return nil, domain.ErrValidation("invalid pattern %q: %v", name, err)
	}
	var out []*domain.Target
	match := func(t *domain.Target) {
		if ok, _ := path.Match(name, t.Name()); ok && want[t.Kind()] {
			out = append(out, t)
		}
	}
	schemas, err := s.Schemas(ctx)
	if err != nil {
		return nil, err
	}
	for _, schema := range schemas {
		match(schema)
		if !want[domain.KindTable] && !want[domain.KindColumn] {
			continue
		}
		tables, err := s.Tables(ctx, schema.ID())
		if err != nil {
			return nil, err
		}
		for _, table := range tables {
			match(table)
			if !want[domain.KindColumn] {
				continue
			}
			cols, err := s.Columns(ctx, table.ID())
			if err != nil {
				return nil, err
			}
			for _, col := range cols {
				match(col)
			}
		}
	}
	return out, nil
}
