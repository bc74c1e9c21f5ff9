package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mdstore/internal/domain"
	"mdstore/internal/service/catalog"
)

func newCollectionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"coll"},
		Short:   "Manage constraint collections",
	}
	cmd.AddCommand(newCollectionCreateCmd(opts))
	cmd.AddCommand(newCollectionAddConstraintCmd(opts))
	cmd.AddCommand(newCollectionListCmd(opts))
	cmd.AddCommand(newCollectionShowCmd(opts))
	cmd.AddCommand(newCollectionRmCmd(opts))
	cmd.AddCommand(newCollectionKindsCmd(opts))
	return cmd
}

func resolveAll(cmd *cobra.Command, s *catalog.Store, refs []string) ([]domain.ID, error) {
	out := make([]domain.ID, 0, len(refs))
	for _, ref := range refs {
		t, err := resolveAny(cmd.Context(), s, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, t.ID())
	}
	return out, nil
}

func newCollectionCreateCmd(opts *rootOptions) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:     "create <target>...",
		Short:   "Create a constraint collection scoped to the given targets",
		Example: `  mdstore collection create sales sales.orders -d "nightly profile"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withStore(ctx, nil, func(s *catalog.Store) error {
				scope, err := resolveAll(cmd, s, args)
				if err != nil {
					return err
				}
				coll, err := s.CreateConstraintCollection(ctx, description, scope...)
				if err != nil {
					return err
				}
				return opts.printCollection(cmd.OutOrStdout(), s, coll, false)
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description")
	return cmd
}

func newCollectionAddConstraintCmd(opts *rootOptions) *cobra.Command {
	var (
		kind    string
		targets []string
		payload string
	)
	cmd := &cobra.Command{
		Use:   "add-constraint <collection>",
		Short: "Add a constraint to a collection",
		Example: `  mdstore collection add-constraint 1234 --kind tuple_count --targets sales.orders --payload '{"count":42}'
  mdstore collection add-constraint 1234 --kind unique_column_combination --targets sales.orders.id`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := domain.ParseID(args[0])
			if err != nil {
				return domain.ErrValidation("invalid collection id %q", args[0])
			}
			return opts.withStore(ctx, nil, func(s *catalog.Store) error {
				ids, err := resolveAll(cmd, s, targets)
				if err != nil {
					return err
				}
				c, err := s.DecodeConstraint(kind, ids, []byte(payload))
				if err != nil {
					return err
				}
				rec, err := s.AddConstraint(ctx, id, c)
				if err != nil {
					return err
				}
				row, err := constraintRow(s, rec)
				if err != nil {
					return err
				}
				if opts.json() {
					return printJSON(cmd.OutOrStdout(), row)
				}
				return printTable(cmd.OutOrStdout(), constraintHeaders, [][]string{row.cells()})
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Constraint kind (see 'collection kinds')")
	cmd.Flags().StringSliceVar(&targets, "targets", nil, "Targets the constraint is about, in order")
	cmd.Flags().StringVar(&payload, "payload", "", "Kind-specific JSON payload")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("targets")
	return cmd
}

func newCollectionListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List constraint collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(cmd.Context(), nil, func(s *catalog.Store) error {
				colls := s.ConstraintCollections()
				if opts.json() {
					out := make([]collectionJSON, 0, len(colls))
					for _, c := range colls {
						cj, err := toCollectionJSON(s, c, false)
						if err != nil {
							return err
						}
						out = append(out, cj)
					}
					return printJSON(cmd.OutOrStdout(), out)
				}
				rows := make([][]string, len(colls))
				for i, c := range colls {
					rows[i] = collectionRow(c)
				}
				return printTable(cmd.OutOrStdout(), collectionHeaders, rows)
			})
		},
	}
}

func newCollectionShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <collection>",
		Short: "Show a collection and its constraints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseID(args[0])
			if err != nil {
				return domain.ErrValidation("invalid collection id %q", args[0])
			}
			return opts.withStore(cmd.Context(), nil, func(s *catalog.Store) error {
				coll, err := s.ConstraintCollection(id)
				if err != nil {
					return err
				}
				return opts.printCollection(cmd.OutOrStdout(), s, coll, true)
			})
		},
	}
}

func newCollectionRmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <collection>",
		Short: "Remove a constraint collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := domain.ParseID(args[0])
			if err != nil {
				return domain.ErrValidation("invalid collection id %q", args[0])
			}
			return opts.withStore(ctx, nil, func(s *catalog.Store) error {
				if err := s.RemoveConstraintCollection(ctx, id); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Removed constraint collection %d\n", id)
				return nil
			})
		},
	}
}

func newCollectionKindsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the constraint kinds the store can hold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(cmd.Context(), nil, func(s *catalog.Store) error {
				kinds := s.ConstraintKinds()
				if opts.json() {
					return printJSON(cmd.OutOrStdout(), kinds)
				}
				for _, k := range kinds {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}
}

var (
	collectionHeaders = []string{"ID", "SCOPE", "CONSTRAINTS", "DESCRIPTION"}
	constraintHeaders = []string{"ID", "KIND", "TARGETS", "PAYLOAD"}
)

func formatIDs(ids []domain.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = domain.FormatID(id)
	}
	return strings.Join(parts, ",")
}

func collectionRow(c *domain.ConstraintCollection) []string {
	return []string{
		domain.FormatID(c.ID()),
		formatIDs(c.Scope()),
		strconv.Itoa(c.Len()),
		c.Description(),
	}
}

type constraintJSON struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Targets []domain.ID     `json:"targets"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (c constraintJSON) cells() []string {
	return []string{c.ID, c.Kind, formatIDs(c.Targets), string(c.Payload)}
}

func constraintRow(s *catalog.Store, rec domain.ConstraintRecord) (constraintJSON, error) {
	payload, err := s.EncodeConstraint(rec.Constraint)
	if err != nil {
		return constraintJSON{}, err
	}
	out := constraintJSON{ID: rec.ID, Kind: rec.Constraint.Kind(), Targets: rec.Constraint.TargetIDs()}
	if len(payload) > 0 {
		if !json.Valid(payload) {
			// Third-party serializers may use any encoding.
			payload, _ = json.Marshal(string(payload))
		}
		out.Payload = payload
	}
	return out, nil
}

type collectionJSON struct {
	ID          domain.ID        `json:"id"`
	Description string           `json:"description,omitempty"`
	Scope       []domain.ID      `json:"scope"`
	Size        int              `json:"size"`
	Constraints []constraintJSON `json:"constraints,omitempty"`
}

func toCollectionJSON(s *catalog.Store, c *domain.ConstraintCollection, withConstraints bool) (collectionJSON, error) {
	out := collectionJSON{ID: c.ID(), Description: c.Description(), Scope: c.Scope(), Size: c.Len()}
	if !withConstraints {
		return out, nil
	}
	out.Constraints = []constraintJSON{}
	for _, rec := range c.Constraints() {
		row, err := constraintRow(s, rec)
		if err != nil {
			return out, err
		}
		out.Constraints = append(out.Constraints, row)
	}
	return out, nil
}

func (o *rootOptions) printCollection(w io.Writer, s *catalog.Store, c *domain.ConstraintCollection, withConstraints bool) error {
	cj, err := toCollectionJSON(s, c, withConstraints)
	if err != nil {
		return err
	}
	if o.json() {
		return printJSON(w, cj)
	}
	if err := printTable(w, collectionHeaders, [][]string{collectionRow(c)}); err != nil {
		return err
	}
	if !withConstraints || len(cj.Constraints) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(w)
	rows := make([][]string, len(cj.Constraints))
	for i, row := range cj.Constraints {
		rows[i] = row.cells()
	}
	return printTable(w, constraintHeaders, rows)
}
