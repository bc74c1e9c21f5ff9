package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdstore/internal/constraints"
	internaldb "mdstore/internal/db"
	"mdstore/internal/domain"
	"mdstore/internal/ids"
)

var codec = ids.DefaultCodec()

func setupGateway(t *testing.T) *SQLGateway {
	t.Helper()
	writeDB, readDB := internaldb.OpenTestSQLite(t)
	g := NewSQLGateway(writeDB, readDB, internaldb.DialectSQLite, slog.New(slog.NewTextHandler(io.Discard, nil)))
	constraints.RegisterBuiltins(g)
	return g
}

type fixture struct {
	schema, orders, amount, customers *domain.Target
}

func seed(t *testing.T, g *SQLGateway) fixture {
	t.Helper()
	ctx := context.Background()

	schemaLoc := domain.NewLocation("jdbc", "postgres://warehouse/sales")
	schemaLoc.Set("INDEX", "0")
	f := fixture{
		schema:    domain.NewTarget(domain.KindSchema, codec.Encode(0, 0, 0), 0, "sales", "sales data", schemaLoc),
		orders:    domain.NewTarget(domain.KindTable, codec.Encode(0, 1, 0), codec.Encode(0, 0, 0), "orders", "", domain.NewLocation("csv", "orders.csv")),
		customers: domain.NewTarget(domain.KindTable, codec.Encode(0, 2, 0), codec.Encode(0, 0, 0), "customers", "", domain.NewLocation("csv", "customers.csv")),
		amount:    domain.NewTarget(domain.KindColumn, codec.Encode(0, 1, 1), codec.Encode(0, 1, 0), "amount", "", domain.Location{}),
	}
	require.NoError(t, g.AddSchema(ctx, f.schema))
	require.NoError(t, g.AddTable(ctx, f.orders))
	require.NoError(t, g.AddTable(ctx, f.customers))
	require.NoError(t, g.AddColumn(ctx, f.amount))
	return f
}

func countRows(t *testing.T, g *SQLGateway, table string) int {
	t.Helper()
	var n int
	require.NoError(t, g.read.QueryRow("SELECT count(*) FROM "+table).Scan(&n))
	return n
}

func TestSQLGateway_Lifecycle(t *testing.T) {
	ctx := context.Background()
	g := setupGateway(t)

	exists, err := g.TablesExist(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	seed(t, g)
	require.NoError(t, g.SaveConfiguration(ctx, map[string]string{"table_bits": "12"}))

	require.NoError(t, g.DropIfExists(ctx))
	exists, err = g.TablesExist(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, g.Initialize(ctx))
	exists, err = g.TablesExist(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	schemas, err := g.LoadSchemas(ctx)
	require.NoError(t, err)
	assert.Empty(t, schemas)
	cfg, err := g.LoadConfiguration(ctx)
	require.NoError(t, err)
	assert.Empty(t, cfg)

	require.NoError(t, g.Flush(ctx))
	require.NoError(t, g.Close())
}

func TestSQLGateway_Configuration(t *testing.T) {
	ctx := context.Background()
	g := setupGateway(t)

	require.NoError(t, g.SaveConfiguration(ctx, map[string]string{"table_bits": "12", "column_bits": "11"}))
	require.NoError(t, g.SaveConfiguration(ctx, map[string]string{"table_bits": "10"}))

	cfg, err := g.LoadConfiguration(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"table_bits": "10", "column_bits": "11"}, cfg)
}

func TestSQLGateway_TargetsRoundTrip(t *testing.T) {
	ctx := context.Background()
	g := setupGateway(t)
	f := seed(t, g)

	t.Run("by id keeps fields and location", func(t *testing.T) {
		got, err := g.GetTargetByID(ctx, f.schema.ID())
		require.NoError(t, err)
		assert.Equal(t, domain.KindSchema, got.Kind())
		assert.Equal(t, "sales", got.Name())
		assert.Equal(t, "sales data", got.Description())
		assert.True(t, f.schema.Location().Equal(got.Location()), got.Location().Properties())

		col, err := g.GetTargetByID(ctx, f.amount.ID())
		require.NoError(t, err)
		parent, ok := col.Parent()
		require.True(t, ok)
		assert.Equal(t, f.orders.ID(), parent)
		assert.Equal(t, 0, col.Location().Len())
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := g.GetTargetByID(ctx, codec.Encode(7, 0, 0))
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("bulk loads are ordered by id", func(t *testing.T) {
		tables, err := g.LoadTables(ctx)
		require.NoError(t, err)
		require.Len(t, tables, 2)
		assert.Equal(t, "orders", tables[0].Name())
		assert.Equal(t, "customers", tables[1].Name())
		assert.Equal(t, "orders.csv", tables[0].Location().Properties()[domain.LocationPathKey])

		cols, err := g.LoadColumns(ctx)
		require.NoError(t, err)
		assert.Len(t, cols, 1)
	})

	t.Run("by name", func(t *testing.T) {
		found, err := g.GetTablesByName(ctx, "customers")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, f.customers.ID(), found[0].ID())

		found, err = g.GetSchemasByName(ctx, "orders")
		require.NoError(t, err)
		assert.Empty(t, found)

		found, err = g.GetColumnsByName(ctx, "amount")
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("location types are stored once", func(t *testing.T) {
		types, err := g.LocationTypes(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"csv", "jdbc"}, types)
	})
}

func TestSQLGateway_AddRejections(t *testing.T) {
	ctx := context.Background()
	g := setupGateway(t)
	f := seed(t, g)

	t.Run("duplicate id", func(t *testing.T) {
		dup := domain.NewTarget(domain.KindSchema, f.schema.ID(), 0, "again", "", domain.Location{})
		err := g.AddSchema(ctx, dup)
		var de *domain.DuplicateIdentifierError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, f.schema.ID(), de.ID)
	})

	t.Run("missing parent", func(t *testing.T) {
		orphan := domain.NewTarget(domain.KindTable, codec.Encode(3, 1, 0), codec.Encode(3, 0, 0), "t", "", domain.Location{})
		err := g.AddTable(ctx, orphan)
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("wrong kind", func(t *testing.T) {
		err := g.AddColumn(ctx, domain.NewTarget(domain.KindSchema, codec.Encode(4, 0, 0), 0, "s", "", domain.Location{}))
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("failed add leaves nothing behind", func(t *testing.T) {
		assert.Equal(t, 4, countRows(t, g, "mds_target"))
		assert.Equal(t, 3, countRows(t, g, "mds_location"))
	})
}

func TestSQLGateway_RemoveCascades(t *testing.T) {
	ctx := context.Background()
	g := setupGateway(t)
	f := seed(t, g)

	var nf *domain.NotFoundError
	require.ErrorAs(t, g.RemoveTable(ctx, f.schema.ID()), &nf, "kind must match")
	require.ErrorAs(t, g.RemoveColumn(ctx, codec.Encode(0, 1, 9)), &nf)

	require.NoError(t, g.RemoveTable(ctx, f.orders.ID()))
	_, err := g.GetTargetByID(ctx, f.amount.ID())
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 2, countRows(t, g, "mds_target"))

	require.NoError(t, g.RemoveSchema(ctx, f.schema.ID()))
	assert.Equal(t, 0, countRows(t, g, "mds_target"))
	assert.Equal(t, 0, countRows(t, g, "mds_location"))
	assert.Equal(t, 0, countRows(t, g, "mds_location_property"))

	// Types are shared and survive their last user.
	types, err := g.LocationTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, 2)
}

func TestSQLGateway_ConstraintCollections(t *testing.T) {
	ctx := context.Background()
	g := setupGateway(t)
	f := seed(t, g)

	coll := domain.NewConstraintCollection(codec.Encode(42, 0, 0), "profiling run", []domain.ID{f.orders.ID(), f.amount.ID()})
	require.NoError(t, g.AddConstraintCollection(ctx, coll))

	var de *domain.DuplicateIdentifierError
	require.ErrorAs(t, g.AddConstraintCollection(ctx, domain.NewConstraintCollection(coll.ID(), "", nil)), &de)

	recs := []domain.ConstraintRecord{
		{ID: domain.NewID(), Constraint: constraints.TupleCount{Table: f.orders.ID(), Count: 12}},
		{ID: domain.NewID(), Constraint: constraints.InclusionDependency{
			Dependent:  []domain.ID{f.amount.ID()},
			Referenced: []domain.ID{f.amount.ID()},
		}},
		{ID: domain.NewID(), Constraint: constraints.ColumnType{Column: f.amount.ID(), Type: "decimal"}},
	}
	for _, r := range recs {
		require.NoError(t, g.AddConstraint(ctx, coll.ID(), r))
	}

	t.Run("unknown collection", func(t *testing.T) {
		err := g.AddConstraint(ctx, codec.Encode(99, 0, 0), recs[0])
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("unregistered kind", func(t *testing.T) {
		err := g.AddConstraint(ctx, coll.ID(), domain.ConstraintRecord{ID: domain.NewID(), Constraint: foreign{}})
		var ns *domain.NoSerializerRegisteredError
		require.ErrorAs(t, err, &ns)
	})

	// Removing a target keeps the collection and what it says.
	require.NoError(t, g.RemoveTable(ctx, f.orders.ID()))

	loaded, err := g.LoadConstraintCollections(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0]
	assert.Equal(t, "profiling run", got.Description())
	assert.Equal(t, coll.Scope(), got.Scope())
	require.Equal(t, 3, got.Len())
	for i, r := range got.Constraints() {
		assert.Equal(t, recs[i].ID, r.ID)
		assert.Equal(t, recs[i].Constraint, r.Constraint)
	}

	require.NoError(t, g.RemoveConstraintCollection(ctx, coll.ID()))
	var nf *domain.NotFoundError
	require.ErrorAs(t, g.RemoveConstraintCollection(ctx, coll.ID()), &nf)
	assert.Equal(t, 0, countRows(t, g, "mds_scope"))
	assert.Equal(t, 0, countRows(t, g, "mds_constraint"))
	assert.Equal(t, 0, countRows(t, g, "mds_constraint_target"))
}

func TestSQLGateway_CollectionWithConstraintsStoredAtOnce(t *testing.T) {
	ctx := context.Background()
	g := setupGateway(t)
	f := seed(t, g)

	coll := domain.NewConstraintCollection(codec.Encode(5, 0, 0), "", []domain.ID{f.customers.ID()})
	coll = coll.WithConstraint(domain.ConstraintRecord{ID: domain.NewID(), Constraint: constraints.UniqueColumnCombination{
		Columns: []domain.ID{f.amount.ID()},
	}})
	require.NoError(t, g.AddConstraintCollection(ctx, coll))

	// Appends continue after the stored records.
	next := domain.ConstraintRecord{ID: domain.NewID(), Constraint: constraints.TupleCount{Table: f.customers.ID(), Count: 3}}
	require.NoError(t, g.AddConstraint(ctx, coll.ID(), next))

	loaded, err := g.LoadConstraintCollections(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	recs := loaded[0].Constraints()
	require.Len(t, recs, 2)
	assert.Equal(t, next.ID, recs[1].ID)
}

func TestSQLGateway_LoadFailsOnUnknownKind(t *testing.T) {
	ctx := context.Background()
	writeDB, readDB := internaldb.OpenTestSQLite(t)
	writer := NewSQLGateway(writeDB, readDB, internaldb.DialectSQLite, nil)
	constraints.RegisterBuiltins(writer)
	f := seed(t, writer)

	coll := domain.NewConstraintCollection(codec.Encode(5, 0, 0), "", nil)
	coll = coll.WithConstraint(domain.ConstraintRecord{ID: domain.NewID(), Constraint: constraints.TupleCount{Table: f.orders.ID(), Count: 1}})
	require.NoError(t, writer.AddConstraintCollection(ctx, coll))

	reader := NewSQLGateway(writeDB, readDB, internaldb.DialectSQLite, nil)
	_, err := reader.LoadConstraintCollections(ctx)
	var ns *domain.NoSerializerRegisteredError
	require.ErrorAs(t, err, &ns)
}

type foreign struct{}

func (foreign) Kind() string { return "foreign" }

func (foreign) TargetIDs() []domain.ID { return nil }
