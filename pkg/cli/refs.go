package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"mdstore/internal/domain"
	"mdstore/internal/service/catalog"
)

// Targets are referenced on the command line by identifier or by dotted
// name: schema, schema.table or schema.table.column.

func resolveSchema(ctx context.Context, s *catalog.Store, ref string) (*domain.Target, error) {
	if id, err := domain.ParseID(ref); err == nil {
		return s.SchemaByID(ctx, id)
	}
	return s.SchemaByName(ctx, ref)
}

func resolveTable(ctx context.Context, s *catalog.Store, ref string) (*domain.Target, error) {
	if id, err := domain.ParseID(ref); err == nil {
		return s.TableByID(ctx, id)
	}
	schemaRef, name, ok := strings.Cut(ref, ".")
	if !ok {
		return nil, domain.ErrValidation("table reference %q must be an id or schema.table", ref)
	}
	schema, err := resolveSchema(ctx, s, schemaRef)
	if err != nil {
		return nil, err
	}
	return s.TableByName(ctx, schema.ID(), name)
}

func resolveColumn(ctx context.Context, s *catalog.Store, ref string) (*domain.Target, error) {
	if id, err := domain.ParseID(ref); err == nil {
		return s.ColumnByID(ctx, id)
	}
	i := strings.LastIndex(ref, ".")
	if i < 0 || !strings.Contains(ref[:i], ".") {
		return nil, domain.ErrValidation("column reference %q must be an id or schema.table.column", ref)
	}
	table, err := resolveTable(ctx, s, ref[:i])
	if err != nil {
		return nil, err
	}
	return s.ColumnByName(ctx, table.ID(), ref[i+1:])
}

// resolveAny resolves an identifier or dotted name of any depth.
func resolveAny(ctx context.Context, s *catalog.Store, ref string) (*domain.Target, error) {
	if id, err := domain.ParseID(ref); err == nil {
		return s.TargetByID(ctx, id)
	}
	switch strings.Count(ref, ".") {
	case 0:
		return resolveSchema(ctx, s, ref)
	case 1:
		return resolveTable(ctx, s, ref)
	default:
		return resolveColumn(ctx, s, ref)
	}
}

// locationFlags collects the location of a new target.
type locationFlags struct {
	typ   string
	path  string
	props map[string]string
}

func (l *locationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&l.typ, "type", "", "Location type, e.g. csv or jdbc")
	cmd.Flags().StringVar(&l.path, "location", "", "Location path")
	cmd.Flags().StringToStringVar(&l.props, "property", nil, "Extra location property key=value (repeatable)")
}

func (l *locationFlags) location() domain.Location {
	loc := domain.NewLocation(l.typ, l.path)
	for k, v := range l.props {
		loc.Set(k, v)
	}
	return loc
}
